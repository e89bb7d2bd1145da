// Package events defines event types and payloads for the sourcequery event system.
package events

import (
	"time"

	"github.com/energizer-project/sourcequery/internal/protocol"
)

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Query events
	EventQueryCompleted EventType = "query_completed"
	EventQueryFailed    EventType = "query_failed"

	// Target state transitions
	EventServerOnline  EventType = "server_online"
	EventServerOffline EventType = "server_offline"

	// System events
	EventConfigChanged EventType = "config_changed"
	EventShutdown      EventType = "shutdown"
)

// TargetStatus is the reachability of a monitored server.
type TargetStatus int

const (
	TargetStatusUnknown TargetStatus = iota
	TargetStatusOnline
	TargetStatusOffline
)

var targetStatusStrings = map[TargetStatus]string{
	TargetStatusUnknown: "unknown",
	TargetStatusOnline:  "online",
	TargetStatusOffline: "offline",
}

// String returns the string representation of TargetStatus.
func (s TargetStatus) String() string {
	if str, ok := targetStatusStrings[s]; ok {
		return str
	}
	return "unknown"
}

// MarshalJSON serializes TargetStatus as a JSON string (e.g. "online").
func (s TargetStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Event is a message carried by the EventBus.
type Event struct {
	Type    EventType
	Source  string
	Payload interface{}
}

// QueryCompletedPayload is emitted after every successful query.
type QueryCompletedPayload struct {
	Target  string           `json:"target"`
	Address string           `json:"address"`
	Info    protocol.Summary `json:"info"`
	At      time.Time        `json:"at"`
}

// QueryFailedPayload is emitted after every failed query.
type QueryFailedPayload struct {
	Target              string    `json:"target"`
	Address             string    `json:"address"`
	Error               string    `json:"error"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	At                  time.Time `json:"at"`
}

// ServerStatePayload is emitted when a target changes between online and offline.
type ServerStatePayload struct {
	Target   string       `json:"target"`
	Address  string       `json:"address"`
	Previous TargetStatus `json:"previous"`
	Current  TargetStatus `json:"current"`
}

// ConfigChangedPayload is emitted when configuration changes occur.
type ConfigChangedPayload struct {
	Section string      `json:"section"`
	Key     string      `json:"key"`
	Value   interface{} `json:"value"`
}
