package models

import "time"

// Plan is a scheduled item shown in the list and calendar views.
type Plan struct {
	ID        string    `json:"id"`
	WindowID  string    `json:"window_id"`
	Title     string    `json:"title"`
	Note      string    `json:"note,omitempty"`
	Date      time.Time `json:"date"`
	EndDate   time.Time `json:"end_date,omitempty"`
	AllDay    bool      `json:"all_day"`
	Done      bool      `json:"done"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PlanFilter narrows a plan listing. Zero values mean "no bound".
type PlanFilter struct {
	WindowID string
	From     time.Time
	To       time.Time
}
