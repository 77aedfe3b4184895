package chord

import "time"

// RingEvent describes a membership or ownership change worth surfacing to
// observers.
type RingEvent struct {
	Type      string            `json:"type"`
	Node      string            `json:"node"`
	Peer      string            `json:"peer,omitempty"`
	KeyCount  int               `json:"key_count,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Event types emitted by the node.
const (
	EventRingCreated       = "ring_created"
	EventJoinStarted       = "join_started"
	EventJoinCompleted     = "join_completed"
	EventHandoffServed     = "handoff_served"
	EventPredecessorChange = "predecessor_changed"
	EventSuccessorChange   = "successor_changed"
	EventShutdown          = "shutdown"
)

// EventSink receives ring events. Implementations must not block; the
// node publishes from its protocol paths.
type EventSink interface {
	Publish(event RingEvent)
}

// NopSink discards all events.
type NopSink struct{}

// Publish implements EventSink.
func (NopSink) Publish(RingEvent) {}
