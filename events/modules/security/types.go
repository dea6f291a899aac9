// Package security defines the Kafka contract for recorded security events.
package security

import (
	"time"

	"github.com/ortelius/storefront-guard/model"
)

// Event contract identifiers
const (
	EventTypeRecorded = "security.event.recorded"
	SchemaVersion     = "v1"
)

// SecurityEventRecorded is published to Kafka for every recorded SecurityEvent.
type SecurityEventRecorded struct {
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EventTime     time.Time `json:"event_time"`
	SchemaVersion string    `json:"schema_version"`

	// Instance names the storefront node that observed the event
	Instance string `json:"instance,omitempty"`

	Event model.SecurityEvent `json:"event"`
}
