package checksum

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOf_Stable(t *testing.T) {
	assert.Equal(t, Of("hello"), Of("hello"))
	assert.NotEqual(t, Of("hello"), Of("hello "))
	assert.Len(t, Of(""), 64)
}

func TestETag(t *testing.T) {
	tag := ETag("x")
	assert.Equal(t, `"`+Of("x")+`"`, tag)
	assert.Equal(t, Of("x"), ParseIfMatch(tag))
}

func TestParseIfMatch(t *testing.T) {
	sum := Of("body")
	cases := []struct{ in, want string }{
		{"", ""},
		{"*", ""},
		{sum, sum},
		{`"` + sum + `"`, sum},
		{`W/"` + sum + `"`, sum},
		{` "` + sum + `" `, sum},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, ParseIfMatch(c.in), c.in)
	}
}

func TestMatches(t *testing.T) {
	assert.True(t, Matches("a", Of("a")))
	assert.False(t, Matches("b", Of("a")))
}
