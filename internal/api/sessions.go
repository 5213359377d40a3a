package api

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/starford/almanac/internal/apperr"
	"github.com/starford/almanac/internal/autosave"
	"github.com/starford/almanac/internal/memoservice"
)

// FailureFunc receives autosave failures of a session.
type FailureFunc func(sessionID, message string)

// Sessions is the registry of server-side autosave sessions, one per open
// editor. It also forwards change notifications to the sessions so clean
// drafts pick up outside edits.
type Sessions struct {
	svc     *memoservice.Service
	opts    []autosave.Option
	onFail  FailureFunc
	logger  *slog.Logger
	baseCtx context.Context

	mu   sync.Mutex
	byID map[string]*autosave.Session
	year map[string]int
}

var _ memoservice.Notifier = (*Sessions)(nil)

// NewSessions creates an empty registry. opts apply to every session.
func NewSessions(ctx context.Context, svc *memoservice.Service, onFail FailureFunc, logger *slog.Logger, opts ...autosave.Option) *Sessions {
	if onFail == nil {
		onFail = func(string, string) {}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sessions{
		svc:     svc,
		opts:    opts,
		onFail:  onFail,
		logger:  logger,
		baseCtx: context.WithoutCancel(ctx),
		byID:    make(map[string]*autosave.Session),
		year:    make(map[string]int),
	}
}

// Open starts a session for windowID in year.
func (s *Sessions) Open(year int, windowID string) (string, *autosave.Session) {
	id := uuid.NewString()
	opts := append([]autosave.Option{
		autosave.WithLogger(s.logger.With(slog.String("session", id))),
		autosave.WithReporter(autosave.ReporterFunc(func(msg string) { s.onFail(id, msg) })),
	}, s.opts...)
	sess := autosave.Open(s.baseCtx, s.svc, s.svc, year, windowID, opts...)

	s.mu.Lock()
	s.byID[id] = sess
	s.year[id] = year
	s.mu.Unlock()
	return id, sess
}

// Get returns an open session.
func (s *Sessions) Get(id string) (*autosave.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.byID[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return sess, nil
}

// Close tears a session down and forgets it.
func (s *Sessions) Close(id string) error {
	s.mu.Lock()
	sess, ok := s.byID[id]
	delete(s.byID, id)
	delete(s.year, id)
	s.mu.Unlock()
	if !ok {
		return apperr.ErrNotFound
	}
	sess.Close()
	return nil
}

// CloseAll tears every session down and waits for their teardown flushes
// until ctx is done.
func (s *Sessions) CloseAll(ctx context.Context) {
	s.mu.Lock()
	all := s.byID
	s.byID = make(map[string]*autosave.Session)
	s.year = make(map[string]int)
	s.mu.Unlock()
	for _, sess := range all {
		sess.Close()
	}
	for id, sess := range all {
		select {
		case <-sess.Done():
		case <-ctx.Done():
			s.logger.Warn("sessions: teardown flush still running", slog.String("session", id))
			return
		}
	}
}

// Len returns the number of open sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *Sessions) forYear(year int) []*autosave.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*autosave.Session
	for id, sess := range s.byID {
		if year == 0 || s.year[id] == year {
			out = append(out, sess)
		}
	}
	return out
}

// MemoChanged refreshes sessions showing the window or the combined view.
func (s *Sessions) MemoChanged(windowID string, year int, _ bool) {
	for _, sess := range s.forYear(year) {
		_ = sess.Refresh(windowID)
	}
}

// WindowsChanged refreshes combined sessions, whose headers follow the list.
func (s *Sessions) WindowsChanged() {
	for _, sess := range s.forYear(0) {
		_ = sess.Refresh(autosave.CombinedID)
	}
}

// PlanChanged is a no-op; plans are not part of any draft.
func (s *Sessions) PlanChanged(string, bool) {}
