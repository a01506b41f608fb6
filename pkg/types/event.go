package types

import "time"

type EventType string

const (
	EventServerStart     EventType = "ServerStart"
	EventServerStop      EventType = "ServerStop"
	EventSessionStart    EventType = "SessionStart"
	EventSessionFailed   EventType = "SessionFailed"
	EventExchangeLost    EventType = "ExchangeLost"
	EventDatagramDropped EventType = "DatagramDropped"
	EventQueueDrop       EventType = "QueueDrop"
)

type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"ts"`
	RunID     string         `json:"run_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}
