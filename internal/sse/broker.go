// Package sse implements a Server-Sent Events broker for live updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// Event types.
const (
	MemoUpdated     = "memo.updated"
	MemoDeleted     = "memo.deleted"
	WindowChanged   = "window.changed"
	PlanChanged     = "plan.changed"
	SaveFailed      = "save.failed"
	CalendarUpdated = "calendar.updated"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// change is an event that also refreshes calendar views, subject to throttling.
type change struct {
	event Event
}

// Broker manages SSE client connections and broadcasts events.
//
// A single loop goroutine owns the client set and the calendar throttle
// timestamp. Public methods talk to it over channels.
type Broker struct {
	calendarMin time.Duration
	clock       clockwork.Clock

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	changeCh      chan change
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker. calendar.updated is sent at most once per
// calendarThrottle.
func NewBroker(calendarThrottle time.Duration) *Broker {
	return newBroker(calendarThrottle, clockwork.NewRealClock())
}

func newBroker(calendarThrottle time.Duration, clock clockwork.Clock) *Broker {
	if calendarThrottle <= 0 {
		calendarThrottle = 2 * time.Second
	}
	b := &Broker{
		calendarMin:   calendarThrottle,
		clock:         clock,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		changeCh:      make(chan change, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var lastCalendar time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// slow client, drop
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case c := <-b.changeCh:
			broadcast(c.event)
			now := b.clock.Now()
			if now.Sub(lastCalendar) >= b.calendarMin {
				lastCalendar = now
				broadcast(Event{Type: CalendarUpdated, Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

func (b *Broker) publishChange(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.changeCh <- change{event: event}:
	case <-b.stopped:
	}
}

// MemoChanged publishes memo.updated or memo.deleted and a throttled
// calendar.updated.
func (b *Broker) MemoChanged(windowID string, year int, deleted bool) {
	typ := MemoUpdated
	if deleted {
		typ = MemoDeleted
	}
	b.publishChange(Event{Type: typ, Data: map[string]any{"window_id": windowID, "year": year}})
}

// WindowsChanged publishes window.changed.
func (b *Broker) WindowsChanged() {
	b.Publish(Event{Type: WindowChanged, Data: map[string]string{}})
}

// PlanChanged publishes plan.changed and a throttled calendar.updated.
func (b *Broker) PlanChanged(id string, deleted bool) {
	b.publishChange(Event{Type: PlanChanged, Data: map[string]any{"id": id, "deleted": deleted}})
}

// SaveFailed publishes a save failure of an autosave session.
func (b *Broker) SaveFailed(sessionID, message string) {
	b.Publish(Event{Type: SaveFailed, Data: map[string]string{"session_id": sessionID, "message": message}})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
