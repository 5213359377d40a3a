package api

import (
	"time"

	"github.com/starford/almanac/internal/autosave"
	"github.com/starford/almanac/internal/models"
)

// WindowRequest is the request body for creating or updating a window.
type WindowRequest struct {
	Title string `json:"title" example:"Work"`
	Color string `json:"color,omitempty" example:"#3b82f6"`
}

// WindowListResponse wraps the window directory.
type WindowListResponse struct {
	Windows []models.Window `json:"windows"`
}

// MemoResponse is a memo body of one window (or the combined view).
type MemoResponse struct {
	WindowID string `json:"window_id" example:"combined"`
	Year     int    `json:"year" example:"2025"`
	Body     string `json:"body" example:"[Work]\nBuy milk"`
	Checksum string `json:"checksum"`
}

// MemoRequest is the request body for writing a memo.
type MemoRequest struct {
	Body string `json:"body" example:"Buy milk"`
}

// OpenSessionRequest starts an autosave session.
type OpenSessionRequest struct {
	Year     int    `json:"year" example:"2025"`
	WindowID string `json:"window_id" example:"combined"`
}

// SessionResponse is the state of one autosave session.
type SessionResponse struct {
	ID    string         `json:"id"`
	State autosave.State `json:"state"`
}

// DraftRequest replaces the draft of a session.
type DraftRequest struct {
	Text string `json:"text"`
}

// SwitchRequest changes the active window of a session.
type SwitchRequest struct {
	WindowID string `json:"window_id" example:"combined"`
}

// PlanRequest is the request body for creating or updating a plan.
type PlanRequest struct {
	WindowID string    `json:"window_id"`
	Title    string    `json:"title" example:"Dentist"`
	Note     string    `json:"note,omitempty"`
	Date     time.Time `json:"date"`
	EndDate  time.Time `json:"end_date,omitempty"`
	AllDay   bool      `json:"all_day"`
	Done     bool      `json:"done"`
}

func (p PlanRequest) model() models.Plan {
	return models.Plan{
		WindowID: p.WindowID,
		Title:    p.Title,
		Note:     p.Note,
		Date:     p.Date,
		EndDate:  p.EndDate,
		AllDay:   p.AllDay,
		Done:     p.Done,
	}
}

// PlanListResponse wraps plan listings.
type PlanListResponse struct {
	Plans []models.Plan `json:"plans"`
}
