package events

import (
	"sync"
	"time"
)

// Event represents a generic event structure
type Event struct {
	Type      string
	Timestamp time.Time
	Data      interface{}
}

// EpochCompletedEvent is published after every finished optimization epoch
type EpochCompletedEvent struct {
	ModuleId       string
	Epoch          int32
	MeanReward     float64
	Loss           float64
	StepsPerSecond float64
}

// TrainingFinishedEvent is published once the trainer loop exits
type TrainingFinishedEvent struct {
	ModuleId    string
	ExitCode    int32
	ExitMessage string
}

// DeviceHeartbeatEvent reports the number of accelerator devices a backend
// currently sees
type DeviceHeartbeatEvent struct {
	DeviceCount int32
}

// EventBus represents the event bus that handles event subscription and dispatching
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan<- Event
}

// NewEventBus creates a new instance of the event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]chan<- Event),
	}
}

// Subscribe adds a new subscriber for a given event type
func (eb *EventBus) Subscribe(eventType string, subscriber chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// Unsubscribe removes a subscriber for a given event type
func (eb *EventBus) Unsubscribe(eventType string, subscriber chan<- Event) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	subscribers := eb.subscribers[eventType]
	for i, existing := range subscribers {
		if existing == subscriber {
			eb.subscribers[eventType] = append(subscribers[:i], subscribers[i+1:]...)
			return
		}
	}
}

// Publish sends an event to all subscribers of a given event type
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	subscribers := make([]chan<- Event, len(eb.subscribers[event.Type]))
	copy(subscribers, eb.subscribers[event.Type])
	eb.mu.RUnlock()

	for _, subscriber := range subscribers {
		subscriber <- event
	}
}
