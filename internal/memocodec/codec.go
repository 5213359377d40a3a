// Package memocodec converts between the combined memo document and
// per-window memo bodies.
//
// The combined document multiplexes every window's body under a bracketed
// header line:
//
//	[Work]
//	Buy milk
//
//	[Home]
//
// Decoding is best-effort and never fails: unknown headers are content,
// text before the first header is dropped, missing windows decode to "".
package memocodec

import (
	"strings"
	"unicode"

	"github.com/starford/almanac/internal/models"
)

// Encode renders bodies as a combined document in window order.
// The synthetic "All" window is skipped.
func Encode(windows []models.Window, bodies map[string]string) string {
	var lines []string
	prevHadBody := false
	for _, w := range windows {
		if w.ID == models.AllWindowID {
			continue
		}
		if prevHadBody {
			lines = append(lines, "")
		}
		lines = append(lines, Header(w.Title))

		body := trimRight(bodies[w.ID])
		if body != "" {
			lines = append(lines, body)
		}
		prevHadBody = body != ""
	}
	return trimRight(strings.Join(lines, "\n"))
}

// Decode splits a combined document into bodies keyed by window id.
// Every window except "All" gets an entry.
//
// When two windows share a title the later one in the list owns the header.
// That case is not expected to happen; callers should not rely on it.
func Decode(text string, windows []models.Window) map[string]string {
	byTitle := make(map[string]string, len(windows))
	sections := make(map[string][]string, len(windows))
	for _, w := range windows {
		if w.ID == models.AllWindowID {
			continue
		}
		byTitle[w.Title] = w.ID
		sections[w.ID] = nil
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")

	current := ""
	for _, line := range strings.Split(text, "\n") {
		if id, rest, ok := matchHeader(line, byTitle); ok {
			current = id
			if rest != "" {
				sections[current] = append(sections[current], rest)
			}
			continue
		}
		if current == "" {
			continue
		}
		sections[current] = append(sections[current], line)
	}

	out := make(map[string]string, len(sections))
	for id, ls := range sections {
		out[id] = trimRight(strings.Join(ls, "\n"))
	}
	return out
}

// Header returns the header line for a window title.
func Header(title string) string {
	return "[" + title + "]"
}

// matchHeader reports whether line is a header for a known title. A title
// may itself contain ']', so every closing bracket is tried in order and the
// first candidate naming a known window wins. rest is whatever followed the
// bracket, with leading whitespace removed.
func matchHeader(line string, byTitle map[string]string) (id, rest string, ok bool) {
	trimmed := strings.TrimLeftFunc(line, unicode.IsSpace)
	if !strings.HasPrefix(trimmed, "[") {
		return "", "", false
	}
	inner := trimmed[1:]
	for i := 0; i < len(inner); i++ {
		if inner[i] != ']' {
			continue
		}
		if id, found := byTitle[inner[:i]]; found {
			return id, strings.TrimLeftFunc(inner[i+1:], unicode.IsSpace), true
		}
	}
	return "", "", false
}

func trimRight(s string) string {
	return strings.TrimRightFunc(s, unicode.IsSpace)
}
