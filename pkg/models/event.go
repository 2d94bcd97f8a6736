// Package models contains the shared data types exchanged between the
// Bantz runtime components: events, tool results, planner decisions,
// multi-step plans, and reminders. Everything here is safe to serialize;
// events and tool results are logged, cached, and audited.
package models

import (
	"maps"
	"time"
)

// EventType identifies a bus topic. Types are dotted strings so
// subscribers can match on segment wildcards ("tool.*").
type EventType string

const (
	// Turn lifecycle
	EventTurnStart   EventType = "turn.start"
	EventTurnEnd     EventType = "turn.end"
	EventLLMDecision EventType = "llm.decision"

	// Tool lifecycle
	EventToolCall      EventType = "tool.call"
	EventToolExecuted  EventType = "tool.executed"
	EventToolFailed    EventType = "tool.failed"
	EventToolConfirmed EventType = "tool.confirmed"
	EventToolDenied    EventType = "tool.denied"

	// Plan runs
	EventRunStarted   EventType = "run.started"
	EventRunCompleted EventType = "run.completed"

	// Background work
	EventReminderFired EventType = "reminder.fired"
	EventBantzMessage  EventType = "bantz_message"

	// Knowledge graph
	EventGraphEntityLinked EventType = "graph.entity_linked"

	// Catch-all
	EventError EventType = "error"
)

// Event is a single bus message. Events are immutable once published;
// middleware that wants to change one must publish a copy.
type Event struct {
	Type          EventType      `json:"type"`
	Source        string         `json:"source"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Time          time.Time      `json:"time"`
	Data          map[string]any `json:"data,omitempty"`
}

// NewEvent creates an event with the current timestamp.
func NewEvent(eventType EventType, source string, data map[string]any) Event {
	return Event{
		Type:   eventType,
		Source: source,
		Time:   time.Now(),
		Data:   data,
	}
}

// WithCorrelation returns a copy of the event carrying the given
// correlation ID. The bus never generates IDs; producers do.
func (e Event) WithCorrelation(id string) Event {
	e.CorrelationID = id
	return e
}

// Clone returns a deep-enough copy for middleware that needs to mutate
// the data map without aliasing the original.
func (e Event) Clone() Event {
	if e.Data != nil {
		e.Data = maps.Clone(e.Data)
	}
	return e
}
