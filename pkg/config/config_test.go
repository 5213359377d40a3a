package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	fails bool
}

func (s *sample) Validate() error {
	if s.fails {
		return errors.New("boom")
	}
	return nil
}

func TestLoad_ExpandsEnvAndKeepsDefaults(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "almanac")
	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: ${SAMPLE_NAME}\n"), 0o644))

	s := sample{Port: 8080}
	require.NoError(t, Load(path, &s))
	assert.Equal(t, "almanac", s.Name)
	assert.Equal(t, 8080, s.Port)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	var s sample
	assert.Error(t, Load(filepath.Join(dir, "missing.yaml"), &s))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("port: [1"), 0o644))
	assert.Error(t, Load(bad, &s))

	ok := filepath.Join(dir, "ok.yaml")
	require.NoError(t, os.WriteFile(ok, []byte("port: 1\n"), 0o644))
	s.fails = true
	assert.ErrorContains(t, Load(ok, &s), "validation failed")
}

func TestLoadOptional(t *testing.T) {
	s := sample{Port: 1}
	found, err := LoadOptional(filepath.Join(t.TempDir(), "none.yaml"), &s)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, 1, s.Port)

	s.fails = true
	_, err = LoadOptional(filepath.Join(t.TempDir(), "none.yaml"), &s)
	assert.Error(t, err, "defaults are still validated")
}
