// Package sse streams store change events to HTTP clients.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Event is one message on the stream.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// TimelineEvent is broadcast at most once per throttle interval after any
// store change, for clients that only need to know "something changed".
const TimelineEvent = "timeline.updated"

// keepAlive is how often an idle stream gets a comment line so proxies do
// not close it.
const keepAlive = 30 * time.Second

type subscribeReq struct {
	ch       chan []byte
	entities map[string]bool
}

type changeReq struct {
	entity string
	kind   string
	data   any
}

// Broker fans events out to subscribers.
//
// A single goroutine owns the client set, the message sequence and the
// timeline throttle; public methods talk to it over channels.
type Broker struct {
	throttle time.Duration

	subscribeCh   chan subscribeReq
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	changeCh      chan changeReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. throttle bounds how often TimelineEvent is sent.
func NewBroker(throttle time.Duration) *Broker {
	if throttle <= 0 {
		throttle = 2 * time.Second
	}

	b := &Broker{
		throttle:      throttle,
		subscribeCh:   make(chan subscribeReq),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		changeCh:      make(chan changeReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	// nil filter means every entity.
	clients := make(map[chan []byte]map[string]bool)
	var (
		seq          uint64
		lastTimeline time.Time
	)

	broadcast := func(event Event, entity string) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload))

		for ch, filter := range clients {
			if entity != "" && filter != nil && !filter[entity] {
				continue
			}
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

		case req := <-b.subscribeCh:
			clients[req.ch] = req.entities

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event, "")

		case req := <-b.changeCh:
			broadcast(Event{Type: req.entity + "." + req.kind, Data: req.data}, req.entity)

			now := time.Now()
			if now.Sub(lastTimeline) >= b.throttle {
				lastTimeline = now
				broadcast(Event{Type: TimelineEvent, Data: map[string]string{}}, "")
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the broker and closes every subscriber channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client. With entities given, change events for other
// entities are not delivered; TimelineEvent and Publish always are.
func (b *Broker) Subscribe(entities ...string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	req := subscribeReq{ch: ch}
	for _, e := range entities {
		if e = strings.TrimSpace(e); e != "" {
			if req.entities == nil {
				req.entities = make(map[string]bool)
			}
			req.entities[e] = true
		}
	}

	select {
	case b.subscribeCh <- req:
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

// Publish sends an event as is.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishChange sends "<entity>.<kind>" with data, followed by a throttled
// TimelineEvent.
func (b *Broker) PublishChange(entity, kind string, data any) {
	if b.closed.Load() {
		return
	}
	select {
	case b.changeCh <- changeReq{entity: entity, kind: kind, data: data}:
	case <-b.stopped:
	}
}

// ServeHTTP is the stream endpoint (GET /api/events). The optional
// entities query parameter is a comma-separated filter, e.g.
// ?entities=todo,capture.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var entities []string
	if v := r.URL.Query().Get("entities"); v != "" {
		entities = strings.Split(v, ",")
	}
	ch := b.Subscribe(entities...)
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(keepAlive)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
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
