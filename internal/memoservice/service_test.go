package memoservice

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/almanac/internal/apperr"
	"github.com/starford/almanac/internal/autosave"
	"github.com/starford/almanac/internal/models"
	"github.com/starford/almanac/internal/testutil"
)

type recorder struct {
	mu      sync.Mutex
	memos   []string
	windows int
	plans   []string
}

func (r *recorder) MemoChanged(windowID string, _ int, deleted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if deleted {
		windowID = "-" + windowID
	}
	r.memos = append(r.memos, windowID)
}

func (r *recorder) WindowsChanged() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.windows++
}

func (r *recorder) PlanChanged(id string, _ bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans = append(r.plans, id)
}

func newSQLService(t *testing.T) (*Service, *recorder) {
	t.Helper()
	db := testutil.TestDB(t)
	rec := &recorder{}
	clock := clockwork.NewFakeClockAt(time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	return New(db, WithNotifier(rec), WithClock(clock)), rec
}

func TestWindows_AllFirst(t *testing.T) {
	s, rec := newSQLService(t)
	ctx := context.Background()

	_, err := s.CreateWindow(ctx, "  Work ", "")
	require.NoError(t, err)
	_, err = s.CreateWindow(ctx, "Home", "#22c55e")
	require.NoError(t, err)

	ws, err := s.Windows(ctx)
	require.NoError(t, err)
	require.Len(t, ws, 3)
	assert.Equal(t, models.AllWindowID, ws[0].ID)
	assert.True(t, ws[0].Fixed)
	assert.Equal(t, "Work", ws[1].Title)
	assert.Equal(t, models.DefaultColor, ws[1].Color)
	assert.Equal(t, "Home", ws[2].Title)
	assert.Equal(t, 2, rec.windows)
}

func TestCreateWindow_Validation(t *testing.T) {
	s, _ := newSQLService(t)
	ctx := context.Background()
	_, err := s.CreateWindow(ctx, "Work", "")
	require.NoError(t, err)

	cases := map[string]struct{ title, color string }{
		"empty":      {"   ", ""},
		"too long":   {strings.Repeat("x", models.MaxTitleLength+1), ""},
		"duplicate":  {"Work", ""},
		"reserved":   {"All", ""},
		"multi-line": {"a\nb", ""},
		"bad colour": {"Fun", "#123456"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.CreateWindow(ctx, tc.title, tc.color)
			assert.ErrorIs(t, err, apperr.ErrInvalid)
		})
	}

	_, err = s.CreateWindow(ctx, strings.Repeat("é", models.MaxTitleLength), "")
	assert.NoError(t, err, "length counts runes")
}

func TestFixedWindowIsProtected(t *testing.T) {
	s, _ := newSQLService(t)
	ctx := context.Background()
	_, err := s.UpdateWindow(ctx, models.AllWindowID, "Everything", "")
	assert.ErrorIs(t, err, apperr.ErrFixedWindow)
	assert.ErrorIs(t, s.DeleteWindow(ctx, models.AllWindowID), apperr.ErrFixedWindow)
}

func TestUpdateWindow(t *testing.T) {
	s, _ := newSQLService(t)
	ctx := context.Background()
	work, _ := s.CreateWindow(ctx, "Work", "")
	_, _ = s.CreateWindow(ctx, "Home", "")

	w, err := s.UpdateWindow(ctx, work.ID, "Job", "")
	require.NoError(t, err)
	assert.Equal(t, "Job", w.Title)
	assert.Equal(t, models.DefaultColor, w.Color)

	_, err = s.UpdateWindow(ctx, work.ID, "Home", "")
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = s.UpdateWindow(ctx, work.ID, "Job", "")
	assert.NoError(t, err, "keeping its own title is fine")

	_, err = s.UpdateWindow(ctx, "missing", "X", "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSetBody_BlankDeletes(t *testing.T) {
	s, rec := newSQLService(t)
	ctx := context.Background()
	w, _ := s.CreateWindow(ctx, "Work", "")

	require.NoError(t, s.SetBody(ctx, w.ID, 2025, "hello"))
	body, err := s.GetBody(ctx, w.ID, 2025)
	require.NoError(t, err)
	assert.Equal(t, "hello", body)

	require.NoError(t, s.SetBody(ctx, w.ID, 2025, " \n\t"))
	body, err = s.GetBody(ctx, w.ID, 2025)
	require.NoError(t, err)
	assert.Equal(t, "", body)

	assert.Equal(t, []string{w.ID, "-" + w.ID}, rec.memos)
}

func TestCombinedRoundTrip(t *testing.T) {
	s, _ := newSQLService(t)
	ctx := context.Background()
	work, _ := s.CreateWindow(ctx, "Work", "")
	home, _ := s.CreateWindow(ctx, "Home", "")

	require.NoError(t, s.SetBody(ctx, work.ID, 2025, "a\nb"))
	require.NoError(t, s.SetBody(ctx, home.ID, 2025, "c"))

	text, err := s.Combined(ctx, 2025)
	require.NoError(t, err)
	assert.Equal(t, "[Work]\na\nb\n\n[Home]\nc", text)

	viaAll, err := s.GetBody(ctx, models.AllWindowID, 2025)
	require.NoError(t, err)
	assert.Equal(t, text, viaAll)

	require.NoError(t, s.SaveCombined(ctx, 2025, "[Home]\nonly home"))
	body, _ := s.GetBody(ctx, work.ID, 2025)
	assert.Equal(t, "", body, "missing section clears the window")
	body, _ = s.GetBody(ctx, home.ID, 2025)
	assert.Equal(t, "only home", body)
}

func TestSessionOverService(t *testing.T) {
	s, _ := newSQLService(t)
	ctx := context.Background()
	work, _ := s.CreateWindow(ctx, "Work", "")

	sess := autosave.Open(ctx, s, s, 2025, autosave.CombinedID, autosave.WithQuietPeriod(time.Hour))
	require.NoError(t, sess.Edit("[Work]\nfrom session"))
	sess.Close()

	require.Eventually(t, func() bool {
		body, _ := s.GetBody(ctx, work.ID, 2025)
		return body == "from session"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPlans(t *testing.T) {
	s, rec := newSQLService(t)
	ctx := context.Background()
	day := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	_, err := s.CreatePlan(ctx, models.Plan{Title: " "})
	assert.ErrorIs(t, err, apperr.ErrInvalid)
	_, err = s.CreatePlan(ctx, models.Plan{Title: "Trip", Date: day, EndDate: day.AddDate(0, 0, -1)})
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	p, err := s.CreatePlan(ctx, models.Plan{Title: "Trip", WindowID: "w", Date: day, EndDate: day.AddDate(0, 0, 3)})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)

	p.Done = true
	updated, err := s.UpdatePlan(ctx, p.ID, p)
	require.NoError(t, err)
	assert.True(t, updated.Done)
	assert.Equal(t, p.CreatedAt, updated.CreatedAt)

	list, err := s.ListPlans(ctx, models.PlanFilter{WindowID: "w"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeletePlan(ctx, p.ID))
	assert.Equal(t, []string{p.ID, p.ID, p.ID}, rec.plans)
}

func TestPlans_UnsupportedBackend(t *testing.T) {
	s := New(testutil.TestVault(t))

	_, err := s.ListPlans(context.Background(), models.PlanFilter{})
	assert.ErrorIs(t, err, apperr.ErrUnsupported)
	_, err = s.CreatePlan(context.Background(), models.Plan{Title: "x", Date: time.Now()})
	assert.ErrorIs(t, err, apperr.ErrUnsupported)
}
