// Package models defines the domain types for Almanac.
package models

import "time"

// AllWindowID is the id of the synthetic aggregate window.
const AllWindowID = "all"

// MaxTitleLength is the maximum window title length in runes.
const MaxTitleLength = 20

// Palette lists the colours a window may use.
var Palette = []string{
	"#ef4444", // red
	"#f97316", // orange
	"#eab308", // yellow
	"#22c55e", // green
	"#14b8a6", // teal
	"#3b82f6", // blue
	"#8b5cf6", // violet
	"#ec4899", // pink
	"#6b7280", // gray
}

// DefaultColor is used when a window is created without a colour.
const DefaultColor = "#3b82f6"

// Window is a user-defined category (tab) partitioning plans and memos.
type Window struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Color     string    `json:"color" yaml:"color"`
	Fixed     bool      `json:"fixed,omitempty" yaml:"-"`
	Position  int       `json:"position" yaml:"position"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// AllWindow returns the synthetic "All" window. It is never persisted.
func AllWindow() Window {
	return Window{ID: AllWindowID, Title: "All", Fixed: true}
}

// WithoutAll returns windows minus the synthetic "All" entry, preserving order.
func WithoutAll(windows []Window) []Window {
	out := make([]Window, 0, len(windows))
	for _, w := range windows {
		if w.ID == AllWindowID {
			continue
		}
		out = append(out, w)
	}
	return out
}

// Memo is the body of one window for one calendar year.
type Memo struct {
	WindowID  string    `json:"window_id"`
	Year      int       `json:"year"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updated_at"`
}
