package events

import (
	"sync"
)

// EventType represents the type of event
type EventType string

const (
	EventBalanceRefreshed  EventType = "balance_refreshed"
	EventAgentAuthorized   EventType = "agent_authorized"
	EventDepositSubmitted  EventType = "deposit_submitted"
	EventWithdrawSubmitted EventType = "withdraw_submitted"
	EventOrderPlaced       EventType = "order_placed"
	EventPositionClosed    EventType = "position_closed"
	EventHistoryResolved   EventType = "history_resolved"
)

// Event represents a system event
type Event struct {
	Type EventType              `json:"type"`
	Data map[string]interface{} `json:"data"`
}

// EventBus manages event subscriptions and publishing. Deferred approval
// flushing and history refresh hang off it instead of polling.
type EventBus struct {
	subscribers map[EventType][]chan Event
	mu          sync.RWMutex
	closed      bool
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
	}
}

// Subscribe creates a subscription to events of a specific type
func (eb *EventBus) Subscribe(eventType EventType, bufferSize int) <-chan Event {
	ch := make(chan Event, bufferSize)

	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], ch)
	return ch
}

// Publish publishes an event to all subscribers. Slow subscribers drop
// events rather than block the publisher.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close closes all subscriber channels
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true

	seen := make(map[chan Event]bool)
	for _, subs := range eb.subscribers {
		for _, ch := range subs {
			if !seen[ch] {
				seen[ch] = true
				close(ch)
			}
		}
	}
	eb.subscribers = make(map[EventType][]chan Event)
}
