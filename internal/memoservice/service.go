// Package memoservice is the domain layer over a storage backend: window
// validation, memo bodies including the combined view, and plans.
package memoservice

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/starford/almanac/internal/apperr"
	"github.com/starford/almanac/internal/autosave"
	"github.com/starford/almanac/internal/models"
	"github.com/starford/almanac/internal/storage"
)

// Service coordinates storage operations and change notifications.
// It satisfies autosave.Store and autosave.Directory.
type Service struct {
	backend storage.Backend
	plans   storage.PlanRepo
	notify  Notifier
	logger  *slog.Logger
	clock   clockwork.Clock
}

var (
	_ autosave.Store     = (*Service)(nil)
	_ autosave.Directory = (*Service)(nil)
)

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets the change notifier.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notify = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock sets the clock used for timestamps.
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// SetNotifier replaces the change notifier. Receivers that need the Service
// themselves (the session registry) are attached this way before serving.
func (s *Service) SetNotifier(n Notifier) {
	s.notify = n
}

// New creates a Service. Plan operations are available when backend also
// implements storage.PlanRepo.
func New(backend storage.Backend, opts ...Option) *Service {
	s := &Service{
		backend: backend,
		notify:  Notifiers(nil),
		logger:  slog.Default(),
		clock:   clockwork.NewRealClock(),
	}
	if pr, ok := backend.(storage.PlanRepo); ok {
		s.plans = pr
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Windows returns the synthetic All window followed by the user's windows in
// display order.
func (s *Service) Windows(ctx context.Context) ([]models.Window, error) {
	stored, err := s.backend.ListWindows(ctx)
	if err != nil {
		return nil, err
	}
	return append([]models.Window{models.AllWindow()}, models.WithoutAll(stored)...), nil
}

// CreateWindow validates and stores a new window at the end of the list.
func (s *Service) CreateWindow(ctx context.Context, title, color string) (models.Window, error) {
	existing, err := s.backend.ListWindows(ctx)
	if err != nil {
		return models.Window{}, err
	}
	title = strings.TrimSpace(title)
	if color == "" {
		color = models.DefaultColor
	}
	if err := validateWindow(title, color, existing, ""); err != nil {
		return models.Window{}, err
	}

	pos := 0
	for _, w := range existing {
		pos = max(pos, w.Position+1)
	}
	w := models.Window{
		ID:        uuid.NewString(),
		Title:     title,
		Color:     color,
		Position:  pos,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.backend.CreateWindow(ctx, w); err != nil {
		return models.Window{}, err
	}
	s.notify.WindowsChanged()
	return w, nil
}

// UpdateWindow renames and/or recolours a window. Empty arguments keep the
// current value.
func (s *Service) UpdateWindow(ctx context.Context, id, title, color string) (models.Window, error) {
	if id == models.AllWindowID {
		return models.Window{}, apperr.ErrFixedWindow
	}
	existing, err := s.backend.ListWindows(ctx)
	if err != nil {
		return models.Window{}, err
	}
	var cur *models.Window
	for i := range existing {
		if existing[i].ID == id {
			cur = &existing[i]
			break
		}
	}
	if cur == nil {
		return models.Window{}, apperr.ErrNotFound
	}

	w := *cur
	if t := strings.TrimSpace(title); title != "" {
		w.Title = t
	}
	if color != "" {
		w.Color = color
	}
	if err := validateWindow(w.Title, w.Color, existing, id); err != nil {
		return models.Window{}, err
	}
	if err := s.backend.UpdateWindow(ctx, w); err != nil {
		return models.Window{}, err
	}
	s.notify.WindowsChanged()
	return w, nil
}

// DeleteWindow removes a window together with its memos.
func (s *Service) DeleteWindow(ctx context.Context, id string) error {
	if id == models.AllWindowID {
		return apperr.ErrFixedWindow
	}
	if err := s.backend.DeleteWindow(ctx, id); err != nil {
		return err
	}
	s.notify.WindowsChanged()
	return nil
}

// GetBody returns the memo body of a window, or "" when none is stored.
// The All window and the combined id both read the combined document.
func (s *Service) GetBody(ctx context.Context, windowID string, year int) (string, error) {
	if isCombined(windowID) {
		return s.Combined(ctx, year)
	}
	m, err := s.backend.GetMemo(ctx, windowID, year)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return m.Body, nil
}

// SetBody stores a memo body. A whitespace-only body deletes the memo.
func (s *Service) SetBody(ctx context.Context, windowID string, year int, text string) error {
	if isCombined(windowID) {
		return s.SaveCombined(ctx, year, text)
	}
	if strings.TrimSpace(text) == "" {
		if err := s.backend.DeleteMemo(ctx, windowID, year); err != nil {
			return err
		}
		s.notify.MemoChanged(windowID, year, true)
		return nil
	}
	err := s.backend.PutMemo(ctx, models.Memo{
		WindowID:  windowID,
		Year:      year,
		Body:      text,
		UpdatedAt: s.clock.Now().UTC(),
	})
	if err != nil {
		return err
	}
	s.notify.MemoChanged(windowID, year, false)
	return nil
}

// Combined returns the combined memo document of a year.
func (s *Service) Combined(ctx context.Context, year int) (string, error) {
	return autosave.Load(ctx, s, s, year, autosave.CombinedID)
}

// SaveCombined splits a combined document and stores every window's body.
func (s *Service) SaveCombined(ctx context.Context, year int, text string) error {
	return autosave.Flush(ctx, s, s, year, autosave.CombinedID, text)
}

// ListPlans returns plans matching f.
func (s *Service) ListPlans(ctx context.Context, f models.PlanFilter) ([]models.Plan, error) {
	if s.plans == nil {
		return nil, apperr.ErrUnsupported
	}
	return s.plans.ListPlans(ctx, f)
}

// CreatePlan validates and stores a new plan.
func (s *Service) CreatePlan(ctx context.Context, p models.Plan) (models.Plan, error) {
	if s.plans == nil {
		return models.Plan{}, apperr.ErrUnsupported
	}
	p.Title = strings.TrimSpace(p.Title)
	if err := validatePlan(p); err != nil {
		return models.Plan{}, err
	}
	now := s.clock.Now().UTC()
	p.ID = uuid.NewString()
	p.CreatedAt, p.UpdatedAt = now, now
	if err := s.plans.PutPlan(ctx, p); err != nil {
		return models.Plan{}, err
	}
	s.notify.PlanChanged(p.ID, false)
	return p, nil
}

// UpdatePlan replaces the editable fields of an existing plan.
func (s *Service) UpdatePlan(ctx context.Context, id string, p models.Plan) (models.Plan, error) {
	if s.plans == nil {
		return models.Plan{}, apperr.ErrUnsupported
	}
	cur, err := s.plans.GetPlan(ctx, id)
	if err != nil {
		return models.Plan{}, err
	}
	p.Title = strings.TrimSpace(p.Title)
	if err := validatePlan(p); err != nil {
		return models.Plan{}, err
	}
	p.ID = cur.ID
	p.CreatedAt = cur.CreatedAt
	p.UpdatedAt = s.clock.Now().UTC()
	if err := s.plans.PutPlan(ctx, p); err != nil {
		return models.Plan{}, err
	}
	s.notify.PlanChanged(id, false)
	return p, nil
}

// DeletePlan removes a plan.
func (s *Service) DeletePlan(ctx context.Context, id string) error {
	if s.plans == nil {
		return apperr.ErrUnsupported
	}
	if err := s.plans.DeletePlan(ctx, id); err != nil {
		return err
	}
	s.notify.PlanChanged(id, true)
	return nil
}

func isCombined(windowID string) bool {
	return windowID == autosave.CombinedID || windowID == models.AllWindowID
}
