package websocket

import (
	"time"

	"github.com/google/uuid"
)

// Event names carried on an exam's monitor channel and relayed to admin
// WebSocket subscribers.
type Event string

const (
	EventViolation Event = "violation"
	EventProgress  Event = "progress"
	EventSubmitted Event = "submitted"
	EventPing      Event = "ping"
)

// MonitorEvent is the payload published to an exam's Redis monitor channel
// whenever an attempt merge changes integrity state. Meta stays behind on the
// server; only counts cross the wire.
type MonitorEvent struct {
	Event          Event     `json:"event"`
	ExamID         uuid.UUID `json:"exam_id"`
	UserID         uuid.UUID `json:"user_id"`
	ViolationCount int       `json:"violation_count"`
	ExamExitCount  int       `json:"exam_exit_count"`
	IsInRecovery   bool      `json:"is_in_recovery"`
	At             time.Time `json:"at"`
}
