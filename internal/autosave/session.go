package autosave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultQuietPeriod is the inactivity delay after the last edit before an
// automatic save.
const DefaultQuietPeriod = 700 * time.Millisecond

// DefaultFlushTimeout bounds a single flush, including teardown flushes that
// outlive the session.
const DefaultFlushTimeout = 15 * time.Second

// ErrClosed is returned by Session methods after Close.
var ErrClosed = errors.New("autosave: session closed")

// State is a point-in-time copy of a session.
type State struct {
	Year        int    `json:"year"`
	Active      string `json:"active"`
	Draft       string `json:"draft"`
	Dirty       bool   `json:"dirty"`
	LastApplied string `json:"last_applied"`
	Seq         uint64 `json:"seq"`
	Loading     bool   `json:"loading"`
}

// Option configures a Session.
type Option func(*Session)

// WithClock sets the clock used for quiet-period timers.
func WithClock(c clockwork.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithQuietPeriod overrides DefaultQuietPeriod.
func WithQuietPeriod(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.quiet = d
		}
	}
}

// WithFlushTimeout overrides DefaultFlushTimeout.
func WithFlushTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.flushTimeout = d
		}
	}
}

// WithReporter sets where flush failures are reported.
func WithReporter(r Reporter) Option {
	return func(s *Session) { s.reporter = r }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

type editCmd struct {
	text string
	done chan struct{}
}

type switchCmd struct {
	windowID string
	done     chan struct{}
}

type refreshCmd struct {
	windowID string
	done     chan struct{}
}

type quietElapsed struct {
	seq uint64
}

type flushDone struct {
	seq      uint64
	windowID string
	err      error
}

type loadDone struct {
	gen      uint64
	windowID string
	text     string
	err      error
}

// Session owns the draft of one editor. Public methods hand commands to a
// single event loop goroutine, which is the only code touching draft state.
// Saves and loads run in their own goroutines and post their completion back
// to the loop.
//
// Flush completions are matched against seq, which moves on every edit, switch
// and flush start. A completion whose captured seq is no longer current leaves
// dirty and the draft alone.
type Session struct {
	store    Store
	dir      Directory
	reporter Reporter
	logger   *slog.Logger
	clock    clockwork.Clock

	year         int
	quiet        time.Duration
	flushTimeout time.Duration

	// loop-owned state
	active      string
	draft       string
	dirty       bool
	lastApplied string
	seq         uint64
	loadGen     uint64
	loading     bool
	timer       clockwork.Timer

	// latest flush started and the seq it ran under; while seq still
	// equals flushSeq the draft is exactly what that flush is writing
	flushSeq uint64
	flushing <-chan struct{}

	baseCtx context.Context
	cancel  context.CancelFunc

	cmds     chan any
	events   chan any
	snapCh   chan chan State
	stopCh   chan struct{}
	stopped  chan struct{}
	finished chan struct{}
	closed   atomic.Bool
}

// Open starts a session on windowID for year and begins loading its content.
func Open(ctx context.Context, store Store, dir Directory, year int, windowID string, opts ...Option) *Session {
	s := &Session{
		store:        store,
		dir:          dir,
		reporter:     ReporterFunc(func(string) {}),
		logger:       slog.Default(),
		clock:        clockwork.NewRealClock(),
		year:         year,
		quiet:        DefaultQuietPeriod,
		flushTimeout: DefaultFlushTimeout,
		cmds:         make(chan any),
		events:       make(chan any, 16),
		snapCh:       make(chan chan State),
		stopCh:       make(chan struct{}),
		stopped:      make(chan struct{}),
		finished:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.baseCtx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	s.active = windowID
	s.startLoad(windowID, nil)

	go s.run()
	return s
}

func (s *Session) run() {
	defer close(s.stopped)

	for {
		select {
		case <-s.stopCh:
			s.teardown()
			return

		case cmd := <-s.cmds:
			switch c := cmd.(type) {
			case editCmd:
				s.handleEdit(c.text)
				close(c.done)
			case switchCmd:
				s.handleSwitch(c.windowID)
				close(c.done)
			case refreshCmd:
				s.handleRefresh(c.windowID)
				close(c.done)
			}

		case ev := <-s.events:
			switch e := ev.(type) {
			case quietElapsed:
				s.handleQuiet(e)
			case flushDone:
				s.handleFlushDone(e)
			case loadDone:
				s.handleLoadDone(e)
			}

		case resp := <-s.snapCh:
			resp <- s.state()
		}
	}
}

func (s *Session) handleEdit(text string) {
	s.draft = text
	s.dirty = true
	s.seq++

	if s.timer != nil {
		s.timer.Stop()
	}
	seq := s.seq
	s.timer = s.clock.AfterFunc(s.quiet, func() {
		s.post(quietElapsed{seq: seq})
	})
}

func (s *Session) handleQuiet(e quietElapsed) {
	if e.seq != s.seq || !s.dirty {
		return
	}
	s.startFlush(s.active, s.draft)
}

func (s *Session) handleSwitch(windowID string) {
	s.stopTimer()

	var wait <-chan struct{}
	if s.dirty {
		done, running := s.inFlight()
		if !running {
			done = s.startFlush(s.active, s.draft)
		}
		if overlaps(s.active, windowID) {
			wait = done
		}
	}

	s.seq++
	s.active = windowID
	s.dirty = false
	s.draft = ""
	s.startLoad(windowID, wait)
}

func (s *Session) handleRefresh(windowID string) {
	if s.dirty {
		return
	}
	if windowID != s.active && s.active != CombinedID {
		return
	}
	s.startLoad(s.active, nil)
}

func (s *Session) handleFlushDone(e flushDone) {
	if e.err != nil {
		s.logger.Warn("autosave: flush failed",
			slog.String("window", e.windowID),
			slog.Int("year", s.year),
			slog.String("error", e.err.Error()))
		s.reporter.Report(fmt.Sprintf("Could not save memo: %v", e.err))
	}
	if e.seq != s.seq {
		s.logger.Debug("autosave: stale flush completion ignored",
			slog.Uint64("seq", e.seq), slog.Uint64("current", s.seq))
		return
	}
	// Failures clear dirty as well; the reporter has already told the user
	// and the next edit schedules another save.
	s.dirty = false
}

func (s *Session) handleLoadDone(e loadDone) {
	if e.gen != s.loadGen {
		return
	}
	s.loading = false
	if e.err != nil {
		s.logger.Warn("autosave: load failed",
			slog.String("window", e.windowID),
			slog.String("error", e.err.Error()))
		s.reporter.Report(fmt.Sprintf("Could not load memo: %v", e.err))
		return
	}
	if e.windowID != s.active || s.dirty {
		return
	}
	s.draft = e.text
	s.lastApplied = e.windowID
}

// startFlush persists text for windowID in the background and returns a
// channel closed when the write finished.
func (s *Session) startFlush(windowID, text string) <-chan struct{} {
	s.seq++
	seq := s.seq
	done := make(chan struct{})
	s.flushSeq, s.flushing = seq, done

	go func() {
		defer close(done)
		ctx, cancel := context.WithTimeout(context.WithoutCancel(s.baseCtx), s.flushTimeout)
		defer cancel()
		err := Flush(ctx, s.store, s.dir, s.year, windowID, text)
		s.post(flushDone{seq: seq, windowID: windowID, err: err})
	}()
	return done
}

func (s *Session) startLoad(windowID string, wait <-chan struct{}) {
	s.loadGen++
	gen := s.loadGen
	s.loading = true

	go func() {
		if wait != nil {
			select {
			case <-wait:
			case <-s.baseCtx.Done():
				return
			}
		}
		text, err := Load(s.baseCtx, s.store, s.dir, s.year, windowID)
		s.post(loadDone{gen: gen, windowID: windowID, text: text, err: err})
	}()
}

func (s *Session) teardown() {
	s.stopTimer()
	s.cancel()
	if !s.dirty {
		close(s.finished)
		return
	}
	if done, ok := s.inFlight(); ok {
		go func() {
			<-done
			close(s.finished)
		}()
		return
	}

	windowID, text, year := s.active, s.draft, s.year
	store, dir, logger, timeout := s.store, s.dir, s.logger, s.flushTimeout
	go func() {
		defer close(s.finished)
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := Flush(ctx, store, dir, year, windowID, text); err != nil {
			logger.Warn("autosave: teardown flush failed",
				slog.String("window", windowID),
				slog.String("error", err.Error()))
		}
	}()
}

// inFlight returns the done channel of a flush that already carries the
// current draft, whether or not its completion has been handled yet.
func (s *Session) inFlight() (<-chan struct{}, bool) {
	if s.flushing == nil || s.seq != s.flushSeq {
		return nil, false
	}
	return s.flushing, true
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) state() State {
	return State{
		Year:        s.year,
		Active:      s.active,
		Draft:       s.draft,
		Dirty:       s.dirty,
		LastApplied: s.lastApplied,
		Seq:         s.seq,
		Loading:     s.loading,
	}
}

func (s *Session) post(ev any) {
	select {
	case s.events <- ev:
	case <-s.stopped:
	}
}

func (s *Session) send(cmd any, done chan struct{}) error {
	if s.closed.Load() {
		return ErrClosed
	}
	select {
	case s.cmds <- cmd:
	case <-s.stopped:
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-s.stopped:
		return ErrClosed
	}
}

// Edit replaces the draft and restarts the quiet-period timer.
func (s *Session) Edit(text string) error {
	done := make(chan struct{})
	return s.send(editCmd{text: text, done: done}, done)
}

// Switch makes windowID the active window. A dirty draft of the previous
// window is flushed immediately; the new content loads in the background.
func (s *Session) Switch(windowID string) error {
	done := make(chan struct{})
	return s.send(switchCmd{windowID: windowID, done: done}, done)
}

// Refresh tells the session that windowID changed outside of it. The content
// is reloaded when the session shows that window and has no pending edits.
func (s *Session) Refresh(windowID string) error {
	done := make(chan struct{})
	return s.send(refreshCmd{windowID: windowID, done: done}, done)
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() (State, error) {
	if s.closed.Load() {
		return State{}, ErrClosed
	}
	resp := make(chan State, 1)
	select {
	case s.snapCh <- resp:
	case <-s.stopped:
		return State{}, ErrClosed
	}
	return <-resp, nil
}

// Close ends the session. A dirty draft is flushed in the background and
// failures are only logged.
func (s *Session) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.stopCh)
	}
	<-s.stopped
}

// Done is closed once the session has been closed and its teardown flush,
// if any, has finished.
func (s *Session) Done() <-chan struct{} {
	return s.finished
}

// overlaps reports whether content of b depends on a pending save of a.
func overlaps(a, b string) bool {
	return a == b || a == CombinedID || b == CombinedID
}
