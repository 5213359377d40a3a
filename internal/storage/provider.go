// Package storage defines the persistence contracts for windows, memos and
// plans, and a file-system backed implementation.
package storage

import (
	"context"

	"github.com/starford/almanac/internal/models"
)

// WindowRepo persists user windows. The synthetic "All" window is never stored.
type WindowRepo interface {
	// ListWindows returns windows ordered by position.
	ListWindows(ctx context.Context) ([]models.Window, error)
	CreateWindow(ctx context.Context, w models.Window) error
	// UpdateWindow replaces title, colour and position. apperr.ErrNotFound if missing.
	UpdateWindow(ctx context.Context, w models.Window) error
	// DeleteWindow removes the window and all its memos. apperr.ErrNotFound if missing.
	DeleteWindow(ctx context.Context, id string) error
}

// MemoRepo persists memo bodies keyed by (window, year).
type MemoRepo interface {
	// GetMemo returns apperr.ErrNotFound when no body is stored.
	GetMemo(ctx context.Context, windowID string, year int) (models.Memo, error)
	PutMemo(ctx context.Context, m models.Memo) error
	// DeleteMemo is a no-op when nothing is stored.
	DeleteMemo(ctx context.Context, windowID string, year int) error
	ListMemos(ctx context.Context, year int) ([]models.Memo, error)
}

// PlanRepo persists plans. Backends may leave it out.
type PlanRepo interface {
	ListPlans(ctx context.Context, f models.PlanFilter) ([]models.Plan, error)
	GetPlan(ctx context.Context, id string) (models.Plan, error)
	// PutPlan inserts or replaces a plan.
	PutPlan(ctx context.Context, p models.Plan) error
	DeletePlan(ctx context.Context, id string) error
}

// Backend is what the application needs from a storage driver.
type Backend interface {
	WindowRepo
	MemoRepo
	Close() error
}
