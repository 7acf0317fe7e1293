// Package sse implements a Server-Sent Events broker that streams note and
// graph changes to connected clients.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync/atomic"
	"time"
)

// EventGraphUpdated tells clients to refetch and refit the graph.
const EventGraphUpdated = "graph.updated"

const keepAlive = 30 * time.Second

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Broker manages SSE client connections and broadcasts events.
//
// A single goroutine owns the client set and the refit throttle; public
// methods talk to it over channels.
//
// Every change (a note edited on disk or a graph mutation) is followed by a
// graph.updated event, at most one per throttle interval. A change that
// lands inside the interval schedules one trailing graph.updated so the last
// state is always announced.
type Broker struct {
	refitEvery time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	changeCh      chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits graph.updated at most once per
// throttle.
func NewBroker(throttle time.Duration) *Broker {
	if throttle <= 0 {
		throttle = 2 * time.Second
	}

	b := &Broker{
		refitEvery:    throttle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		changeCh:      make(chan Event, 256),
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

	var (
		lastRefit time.Time
		pending   *time.Timer
		pendingC  <-chan time.Time
	)

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
				// Slow client; drop rather than stall the loop.
			}
		}
	}

	refit := func() {
		lastRefit = time.Now()
		broadcast(Event{Type: EventGraphUpdated, Data: map[string]string{}})
	}

	for {
		select {
		case <-b.stopCh:
			if pending != nil {
				pending.Stop()
			}
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

		case event := <-b.changeCh:
			broadcast(event)
			wait := b.refitEvery - time.Since(lastRefit)
			switch {
			case wait <= 0:
				refit()
			case pendingC == nil:
				pending = time.NewTimer(wait)
				pendingC = pending.C
			}

		case <-pendingC:
			pendingC = nil
			refit()

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
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

// PublishNoteEvent announces a vault file change ("created", "updated" or
// "deleted") as note.<kind>, followed by a throttled graph.updated.
func (b *Broker) PublishNoteEvent(kind, notePath string) {
	switch kind {
	case "created", "updated", "deleted":
	default:
		return
	}
	id := strings.TrimSuffix(path.Base(notePath), ".md")
	b.send(Event{
		Type: "note." + kind,
		Data: map[string]string{"id": id, "path": notePath},
	})
}

// PublishGraphEvent announces a graph mutation, followed by a throttled
// graph.updated.
func (b *Broker) PublishGraphEvent(kind string, data any) {
	b.send(Event{Type: kind, Data: data})
}

func (b *Broker) send(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.changeCh <- event:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
