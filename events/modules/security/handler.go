package security

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ortelius/storefront-guard/model"
)

// Observer consumes security events for aggregation
type Observer interface {
	Observe(ctx context.Context, event model.SecurityEvent)
}

// HandleSecurityEventRecorded decodes a SecurityEventRecorded message and passes the event to observer.
func HandleSecurityEventRecorded(ctx context.Context, msg []byte, observer Observer) error {
	var envelope SecurityEventRecorded
	if err := json.Unmarshal(msg, &envelope); err != nil {
		return fmt.Errorf("failed to unmarshal SecurityEventRecorded: %w", err)
	}

	if envelope.EventType != EventTypeRecorded {
		return fmt.Errorf("unexpected event type %q", envelope.EventType)
	}
	if envelope.Event.Kind == "" || envelope.Event.Timestamp.IsZero() {
		return fmt.Errorf("invalid event: missing required fields")
	}
	if !envelope.Event.Severity.Valid() {
		envelope.Event.Severity = model.SeverityForKind(envelope.Event.Kind)
	}

	observer.Observe(ctx, envelope.Event)
	return nil
}
