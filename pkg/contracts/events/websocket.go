// Package events contains the event contracts shared by the websocket hub
// and the event publisher.
package events

import (
	"time"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Job progress, the primary websocket message
	MessageTypeJobSnapshot MessageType = "job:snapshot"

	// Dataset and rule notifications relayed from the publisher
	MessageTypeDatasetEvent MessageType = "dataset:event"
	MessageTypeRulesEvent   MessageType = "rules:event"

	// Connection messages
	MessageTypeConnect    MessageType = "connect"
	MessageTypeDisconnect MessageType = "disconnect"
	MessageTypeError      MessageType = "error"
)

// BaseMessage represents the base structure for all WebSocket messages
type BaseMessage struct {
	ID        string      `json:"id,omitempty"`
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	TraceID   string      `json:"trace_id,omitempty"`
}

// WebSocketMessage represents a complete WebSocket message
type WebSocketMessage struct {
	BaseMessage
	Data interface{} `json:"data,omitempty"`
}

// JobSnapshot is sent whenever a background job changes state
type JobSnapshot struct {
	JobID       string         `json:"job_id"`
	Kind        string         `json:"kind"`
	DatasetID   string         `json:"dataset_id,omitempty"`
	Status      string         `json:"status"`   // pending|running|completed|failed|cancelled
	Progress    float64        `json:"progress"` // 0-100
	Message     string         `json:"message,omitempty"`
	Error       string         `json:"error,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ErrorMessage represents an error message
type ErrorMessage struct {
	BaseMessage
	Data struct {
		Code    string      `json:"code"`
		Message string      `json:"message"`
		Details interface{} `json:"details,omitempty"`
		Fatal   bool        `json:"fatal"`
	} `json:"data"`
}
