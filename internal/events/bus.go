// Package events provides the engine's pub/sub spine. The engine publishes
// what happened each cycle; the API websocket, notifier and persistence
// hooks subscribe without coupling to the engine itself.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Type categorizes events on the bus.
type Type string

const (
	TypeRegime      Type = "regime"
	TypeSignal      Type = "signal"
	TypeDecision    Type = "decision"
	TypeOrder       Type = "order"
	TypeTrade       Type = "trade"
	TypeRisk        Type = "risk"
	TypePerformance Type = "performance"
	TypeEmergency   Type = "emergency_stop"
	TypeCycle       Type = "cycle"
)

// Event is one bus message. Payload carries the domain record (Signal,
// Trade, RiskEvent, ...) as published.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// New builds an event around a payload.
func New(t Type, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Handler consumes events. Handlers must not block; slow consumers drop.
type Handler func(Event)

type subscription struct {
	id      string
	types   map[Type]bool // empty means all
	handler Handler
}

// Stats counts bus activity.
type Stats struct {
	Published   int64 `json:"published"`
	Delivered   int64 `json:"delivered"`
	Subscribers int   `json:"subscribers"`
}

// Bus is a synchronous fan-out bus. Publication happens inside the cycle,
// which is single-writer, so delivery order matches publication order.
type Bus struct {
	logger *zap.Logger

	mu        sync.RWMutex
	subs      []*subscription
	published atomic.Int64
	delivered atomic.Int64
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{logger: logger.Named("events")}
}

// Subscribe registers a handler for the given types; no types means all.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(handler Handler, eventTypes ...Type) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{
		id:      uuid.NewString(),
		types:   make(map[Type]bool, len(eventTypes)),
		handler: handler,
	}
	for _, t := range eventTypes {
		sub.types[t] = true
	}
	b.subs = append(b.subs, sub)

	return func() { b.unsubscribe(sub.id) }
}

func (b *Bus) unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers an event to every matching subscriber. Handler panics
// are contained so one bad consumer cannot take down a cycle.
func (b *Bus) Publish(event Event) {
	b.published.Add(1)

	b.mu.RLock()
	subs := append([]*subscription(nil), b.subs...)
	b.mu.RUnlock()

	for _, sub := range subs {
		if len(sub.types) > 0 && !sub.types[event.Type] {
			continue
		}
		b.deliver(sub, event)
	}
}

func (b *Bus) deliver(sub *subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panic",
				zap.String("subscription", sub.id),
				zap.String("type", string(event.Type)),
				zap.Any("panic", r))
		}
	}()
	sub.handler(event)
	b.delivered.Add(1)
}

// GetStats returns bus counters.
func (b *Bus) GetStats() Stats {
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()

	return Stats{
		Published:   b.published.Load(),
		Delivered:   b.delivered.Load(),
		Subscribers: n,
	}
}
