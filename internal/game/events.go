package game

import (
	"time"
)

// EventType represents a game event type with type safety
type EventType string

// EventType constants for game domain events
const (
	EventTypeGameStarted   EventType = "game_started"
	EventTypeActionApplied EventType = "action_applied"
	EventTypeTurnEnded     EventType = "turn_ended"
	EventTypeRoundEnded    EventType = "round_ended"
	EventTypeGameEnded     EventType = "game_ended"
	EventTypeGamePaused    EventType = "game_paused"
)

// String returns the string representation of the event type
func (et EventType) String() string {
	return string(et)
}

// Event is anything that happens during a game that the room layer may want
// to tell clients about.
type Event interface {
	EventType() EventType
	Timestamp() time.Time
}

// GameStartedEvent is published once a game reaches PLAYING.
type GameStartedEvent struct {
	GameID        string
	FirstPlayerID string
	timestamp     time.Time
}

func (e GameStartedEvent) EventType() EventType { return EventTypeGameStarted }
func (e GameStartedEvent) Timestamp() time.Time { return e.timestamp }

// ActionAppliedEvent is published after an action was applied and recorded.
type ActionAppliedEvent struct {
	Record    ActionRecord
	timestamp time.Time
}

func (e ActionAppliedEvent) EventType() EventType { return EventTypeActionApplied }
func (e ActionAppliedEvent) Timestamp() time.Time { return e.timestamp }

// TurnEndReason says how a turn finished.
type TurnEndReason string

const (
	TurnEndAction     TurnEndReason = "action"
	TurnEndTimeout    TurnEndReason = "timeout"
	TurnEndDisconnect TurnEndReason = "disconnect"
)

// TurnEndedEvent is published when a player's turn ends.
type TurnEndedEvent struct {
	PlayerID   string
	TurnNumber int
	Reason     TurnEndReason
	timestamp  time.Time
}

func (e TurnEndedEvent) EventType() EventType { return EventTypeTurnEnded }
func (e TurnEndedEvent) Timestamp() time.Time { return e.timestamp }

// RoundEndedEvent is published after a round has been scored.
type RoundEndedEvent struct {
	RoundNumber int
	// Scores maps player id to the round score just recorded.
	Scores    map[string]RoundScore
	Totals    map[string]int
	timestamp time.Time
}

func (e RoundEndedEvent) EventType() EventType { return EventTypeRoundEnded }
func (e RoundEndedEvent) Timestamp() time.Time { return e.timestamp }

// GameEndedEvent is published once, when the game reaches a terminal state.
type GameEndedEvent struct {
	Result    Result
	timestamp time.Time
}

func (e GameEndedEvent) EventType() EventType { return EventTypeGameEnded }
func (e GameEndedEvent) Timestamp() time.Time { return e.timestamp }

// GamePausedEvent is published when a game pauses or resumes.
type GamePausedEvent struct {
	Paused    bool
	Reason    string
	timestamp time.Time
}

func (e GamePausedEvent) EventType() EventType { return EventTypeGamePaused }
func (e GamePausedEvent) Timestamp() time.Time { return e.timestamp }

// EventSubscriber can subscribe to game events
type EventSubscriber interface {
	OnEvent(event Event)
}

// EventBus manages event publishing and subscription
type EventBus interface {
	Subscribe(subscriber EventSubscriber)
	Unsubscribe(subscriber EventSubscriber)
	Publish(event Event)
}

// SimpleEventBus is a basic in-memory event bus. Delivery is synchronous on
// the publishing goroutine.
type SimpleEventBus struct {
	subscribers []EventSubscriber
}

// NewEventBus creates a new event bus
func NewEventBus() EventBus {
	return &SimpleEventBus{
		subscribers: make([]EventSubscriber, 0),
	}
}

// Subscribe adds a subscriber to receive events
func (bus *SimpleEventBus) Subscribe(subscriber EventSubscriber) {
	bus.subscribers = append(bus.subscribers, subscriber)
}

// Unsubscribe removes a subscriber from receiving events
func (bus *SimpleEventBus) Unsubscribe(subscriber EventSubscriber) {
	for i, sub := range bus.subscribers {
		if sub == subscriber {
			bus.subscribers = append(bus.subscribers[:i], bus.subscribers[i+1:]...)
			break
		}
	}
}

// Publish sends an event to all subscribers
func (bus *SimpleEventBus) Publish(event Event) {
	for _, subscriber := range bus.subscribers {
		subscriber.OnEvent(event)
	}
}

// EventRecorder buffers events until drained. The room layer uses one per
// room to turn game events into outbound messages after each mutation.
type EventRecorder struct {
	events []Event
}

func (r *EventRecorder) OnEvent(event Event) {
	r.events = append(r.events, event)
}

// Drain returns and clears the buffered events.
func (r *EventRecorder) Drain() []Event {
	out := r.events
	r.events = nil
	return out
}
