// Package supastore is the hosted storage backend. Windows, memos and plans
// live in Supabase tables and every row carries the owning user id.
package supastore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	"github.com/starford/almanac/internal/apperr"
	"github.com/starford/almanac/internal/models"
	"github.com/starford/almanac/internal/storage"
)

// Table names.
const (
	WindowsTable = "windows"
	MemosTable   = "memos"
	PlansTable   = "plans"
)

// Config holds connection settings.
type Config struct {
	URL string
	Key string
	// UserID scopes all rows. When empty it is resolved from AccessToken.
	UserID      string
	AccessToken string
}

// Store implements storage.Backend and storage.PlanRepo over Supabase.
type Store struct {
	client *supabase.Client
	userID string
}

var (
	_ storage.Backend  = (*Store)(nil)
	_ storage.PlanRepo = (*Store)(nil)
)

// New connects to Supabase and resolves the owning user.
func New(cfg Config) (*Store, error) {
	client, err := supabase.NewClient(cfg.URL, cfg.Key, nil)
	if err != nil {
		return nil, fmt.Errorf("supastore: create client: %w", err)
	}
	userID := cfg.UserID
	if userID == "" {
		if cfg.AccessToken == "" {
			return nil, errors.New("supastore: user id or access token required")
		}
		user, err := client.Auth.WithToken(cfg.AccessToken).GetUser()
		if err != nil {
			return nil, fmt.Errorf("supastore: resolve user: %w", err)
		}
		userID = user.ID.String()
	}
	return &Store{client: client, userID: userID}, nil
}

// UserID returns the id all rows are scoped to.
func (s *Store) UserID() string { return s.userID }

// Close is a no-op; the client holds no long-lived connections.
func (s *Store) Close() error { return nil }

type windowRow struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Color     string    `json:"color"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
}

type memoRow struct {
	UserID    string    `json:"user_id"`
	Year      int       `json:"year"`
	WindowID  string    `json:"window_id"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updated_at"`
}

type planRow struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	WindowID  string     `json:"window_id"`
	Title     string     `json:"title"`
	Note      string     `json:"note"`
	Date      time.Time  `json:"date"`
	EndDate   *time.Time `json:"end_date"`
	AllDay    bool       `json:"all_day"`
	Done      bool       `json:"done"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (r windowRow) model() models.Window {
	return models.Window{ID: r.ID, Title: r.Title, Color: r.Color, Position: r.Position, CreatedAt: r.CreatedAt}
}

func (r planRow) model() models.Plan {
	p := models.Plan{
		ID: r.ID, WindowID: r.WindowID, Title: r.Title, Note: r.Note,
		Date: r.Date, AllDay: r.AllDay, Done: r.Done,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
	if r.EndDate != nil {
		p.EndDate = *r.EndDate
	}
	return p
}

func (s *Store) owned(table string) *postgrest.FilterBuilder {
	return s.client.From(table).Select("*", "", false).Eq("user_id", s.userID)
}

// ListWindows returns the user's windows ordered by position.
func (s *Store) ListWindows(_ context.Context) ([]models.Window, error) {
	var rows []windowRow
	if _, err := s.owned(WindowsTable).
		Order("position", &postgrest.OrderOpts{Ascending: true}).
		ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("supastore: list windows: %w", err)
	}
	out := make([]models.Window, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// CreateWindow inserts a window.
func (s *Store) CreateWindow(ctx context.Context, w models.Window) error {
	if _, err := s.findWindow(w.ID); err == nil {
		return apperr.ErrAlreadyExists
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	row := windowRow{ID: w.ID, UserID: s.userID, Title: w.Title, Color: w.Color, Position: w.Position, CreatedAt: w.CreatedAt}
	if _, _, err := s.client.From(WindowsTable).Insert(row, false, "", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("supastore: create window: %w", err)
	}
	return nil
}

// UpdateWindow updates title, colour and position.
func (s *Store) UpdateWindow(_ context.Context, w models.Window) error {
	var rows []windowRow
	_, err := s.client.From(WindowsTable).
		Update(map[string]any{"title": w.Title, "color": w.Color, "position": w.Position}, "representation", "").
		Eq("user_id", s.userID).Eq("id", w.ID).
		ExecuteTo(&rows)
	if err != nil {
		return fmt.Errorf("supastore: update window: %w", err)
	}
	if len(rows) == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// DeleteWindow removes a window and all of its memos.
func (s *Store) DeleteWindow(_ context.Context, id string) error {
	var rows []windowRow
	_, err := s.client.From(WindowsTable).
		Delete("representation", "").
		Eq("user_id", s.userID).Eq("id", id).
		ExecuteTo(&rows)
	if err != nil {
		return fmt.Errorf("supastore: delete window: %w", err)
	}
	if len(rows) == 0 {
		return apperr.ErrNotFound
	}
	if _, _, err := s.client.From(MemosTable).
		Delete("minimal", "").
		Eq("user_id", s.userID).Eq("window_id", id).
		Execute(); err != nil {
		return fmt.Errorf("supastore: delete window memos: %w", err)
	}
	return nil
}

func (s *Store) findWindow(id string) (windowRow, error) {
	var rows []windowRow
	if _, err := s.owned(WindowsTable).Eq("id", id).ExecuteTo(&rows); err != nil {
		return windowRow{}, fmt.Errorf("supastore: get window: %w", err)
	}
	if len(rows) == 0 {
		return windowRow{}, apperr.ErrNotFound
	}
	return rows[0], nil
}

// GetMemo returns the stored body or apperr.ErrNotFound.
func (s *Store) GetMemo(_ context.Context, windowID string, year int) (models.Memo, error) {
	var rows []memoRow
	if _, err := s.owned(MemosTable).
		Eq("year", strconv.Itoa(year)).Eq("window_id", windowID).
		ExecuteTo(&rows); err != nil {
		return models.Memo{}, fmt.Errorf("supastore: get memo: %w", err)
	}
	if len(rows) == 0 {
		return models.Memo{}, apperr.ErrNotFound
	}
	r := rows[0]
	return models.Memo{WindowID: r.WindowID, Year: r.Year, Body: r.Body, UpdatedAt: r.UpdatedAt}, nil
}

// PutMemo upserts a memo keyed by user, year and window.
func (s *Store) PutMemo(_ context.Context, m models.Memo) error {
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now().UTC()
	}
	row := memoRow{UserID: s.userID, Year: m.Year, WindowID: m.WindowID, Body: m.Body, UpdatedAt: m.UpdatedAt}
	if _, _, err := s.client.From(MemosTable).
		Upsert(row, "user_id,year,window_id", "minimal", "").
		Execute(); err != nil {
		return fmt.Errorf("supastore: put memo: %w", err)
	}
	return nil
}

// DeleteMemo removes a memo if present.
func (s *Store) DeleteMemo(_ context.Context, windowID string, year int) error {
	if _, _, err := s.client.From(MemosTable).
		Delete("minimal", "").
		Eq("user_id", s.userID).Eq("year", strconv.Itoa(year)).Eq("window_id", windowID).
		Execute(); err != nil {
		return fmt.Errorf("supastore: delete memo: %w", err)
	}
	return nil
}

// ListMemos returns every memo stored for a year.
func (s *Store) ListMemos(_ context.Context, year int) ([]models.Memo, error) {
	var rows []memoRow
	if _, err := s.owned(MemosTable).Eq("year", strconv.Itoa(year)).ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("supastore: list memos: %w", err)
	}
	out := make([]models.Memo, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Memo{WindowID: r.WindowID, Year: r.Year, Body: r.Body, UpdatedAt: r.UpdatedAt})
	}
	return out, nil
}

// ListPlans returns plans matching f ordered by date.
func (s *Store) ListPlans(_ context.Context, f models.PlanFilter) ([]models.Plan, error) {
	q := s.owned(PlansTable)
	if f.WindowID != "" && f.WindowID != models.AllWindowID {
		q = q.Eq("window_id", f.WindowID)
	}
	if !f.From.IsZero() {
		q = q.Gte("date", f.From.UTC().Format(time.RFC3339))
	}
	if !f.To.IsZero() {
		q = q.Lt("date", f.To.UTC().Format(time.RFC3339))
	}
	var rows []planRow
	if _, err := q.Order("date", &postgrest.OrderOpts{Ascending: true}).ExecuteTo(&rows); err != nil {
		return nil, fmt.Errorf("supastore: list plans: %w", err)
	}
	out := make([]models.Plan, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// GetPlan returns one plan or apperr.ErrNotFound.
func (s *Store) GetPlan(_ context.Context, id string) (models.Plan, error) {
	var rows []planRow
	if _, err := s.owned(PlansTable).Eq("id", id).ExecuteTo(&rows); err != nil {
		return models.Plan{}, fmt.Errorf("supastore: get plan: %w", err)
	}
	if len(rows) == 0 {
		return models.Plan{}, apperr.ErrNotFound
	}
	return rows[0].model(), nil
}

// PutPlan upserts a plan.
func (s *Store) PutPlan(_ context.Context, p models.Plan) error {
	row := planRow{
		ID: p.ID, UserID: s.userID, WindowID: p.WindowID, Title: p.Title, Note: p.Note,
		Date: p.Date, AllDay: p.AllDay, Done: p.Done,
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}
	if !p.EndDate.IsZero() {
		end := p.EndDate
		row.EndDate = &end
	}
	if _, _, err := s.client.From(PlansTable).
		Upsert(row, "user_id,id", "minimal", "").
		Execute(); err != nil {
		return fmt.Errorf("supastore: put plan: %w", err)
	}
	return nil
}

// DeletePlan removes a plan.
func (s *Store) DeletePlan(_ context.Context, id string) error {
	var rows []planRow
	_, err := s.client.From(PlansTable).
		Delete("representation", "").
		Eq("user_id", s.userID).Eq("id", id).
		ExecuteTo(&rows)
	if err != nil {
		return fmt.Errorf("supastore: delete plan: %w", err)
	}
	if len(rows) == 0 {
		return apperr.ErrNotFound
	}
	return nil
}
