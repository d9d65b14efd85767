// Package watch is an in-process change-notification hub.
//
// Writers publish a full snapshot of a document after every committed change;
// readers subscribe to the document's topic and receive snapshots on a
// channel. Delivery is latest-wins: a subscription buffers at most one
// undelivered event, and a newer publish replaces it. Slow readers therefore
// never block writers and never act on a revision that has already been
// superseded.
package watch

import (
	"fmt"
	"sync"
)

// Event is one revision of a document. Value is nil when the document does
// not exist (deleted, or never created); Err is set when the publisher could
// not read the document back.
type Event struct {
	Topic string
	Value any
	Err   error
}

// Exists reports whether the event carries a document.
func (e Event) Exists() bool {
	return e.Err == nil && e.Value != nil
}

// SignedOut is published on an identity topic when a session ends. An empty
// TokenID ends every session of the user.
type SignedOut struct {
	TokenID string
}

// Topic helpers keep topic naming in one place.
func IdentityTopic(userID string) string   { return "identity/" + userID }
func ProfileTopic(userID string) string    { return "users/" + userID }
func FamilyTopic(code string) string       { return "families/" + code }
func ChoresTopic(familyCode string) string { return fmt.Sprintf("families/%s/chores", familyCode) }

// Hub fans events out to subscriptions by topic. The zero value is not
// usable; call NewHub.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

// Subscribe registers interest in topic. The caller owns the returned
// subscription and must Close it on every exit path.
func (h *Hub) Subscribe(topic string) *Subscription {
	s := &Subscription{
		hub:   h,
		topic: topic,
		ch:    make(chan Event, 1),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		s.closed = true
		close(s.ch)
		return s
	}
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[*Subscription]struct{})
	}
	h.subs[topic][s] = struct{}{}
	return s
}

// Publish delivers ev to every subscription of ev.Topic without blocking.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for s := range h.subs[ev.Topic] {
		s.offer(ev)
	}
}

// Subscribers returns the number of live subscriptions on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[topic])
}

// Close ends every subscription. Readers see their channels closed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for topic, set := range h.subs {
		for s := range set {
			s.shut()
		}
		delete(h.subs, topic)
	}
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[s.topic]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.topic)
		}
	}
	s.shut()
}

// Subscription is a disposable handle on one topic.
type Subscription struct {
	hub   *Hub
	topic string

	// mu guards ch sends against close; the hub lock is always taken first.
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// C returns the event channel. It is closed when the subscription or the
// hub is closed.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Topic returns the subscribed topic.
func (s *Subscription) Topic() string {
	return s.topic
}

// Close releases the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

func (s *Subscription) offer(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- ev:
			return
		default:
		}
		// Drop the overtaken revision and try again.
		select {
		case <-s.ch:
		default:
		}
	}
}

func (s *Subscription) shut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
