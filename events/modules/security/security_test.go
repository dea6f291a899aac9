package security

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ortelius/storefront-guard/model"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureWriter struct {
	messages []kafka.Message
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.messages = append(c.messages, msgs...)
	return nil
}

func (c *captureWriter) Close() error { return nil }

type captureObserver struct {
	events []model.SecurityEvent
}

func (c *captureObserver) Observe(_ context.Context, event model.SecurityEvent) {
	c.events = append(c.events, event)
}

func TestPublishedEventRoundTripsThroughHandler(t *testing.T) {
	w := &captureWriter{}
	p := NewProducer(w, "node-a")
	event := model.NewSecurityEvent(model.EventXSS, "203.0.113.7", "body.comment", "script-injection", "<script>")

	require.NoError(t, p.PublishSecurityEvent(context.Background(), event))
	require.Len(t, w.messages, 1)
	assert.Equal(t, "203.0.113.7", string(w.messages[0].Key))

	obs := &captureObserver{}
	require.NoError(t, HandleSecurityEventRecorded(context.Background(), w.messages[0].Value, obs))
	require.Len(t, obs.events, 1)
	assert.Equal(t, model.EventXSS, obs.events[0].Kind)
	assert.Equal(t, "body.comment", obs.events[0].Path)
}

func TestHandlerRejectsMalformedMessages(t *testing.T) {
	obs := &captureObserver{}
	ctx := context.Background()

	assert.Error(t, HandleSecurityEventRecorded(ctx, []byte("{"), obs))

	wrongType, _ := json.Marshal(SecurityEventRecorded{EventType: "release.sbom.created"})
	assert.Error(t, HandleSecurityEventRecorded(ctx, wrongType, obs))

	missing, _ := json.Marshal(SecurityEventRecorded{EventType: EventTypeRecorded})
	assert.Error(t, HandleSecurityEventRecorded(ctx, missing, obs))

	assert.Empty(t, obs.events)
}

func TestHandlerDefaultsSeverity(t *testing.T) {
	event := model.NewSecurityEvent(model.EventDecryptionFailure, "crypt", "", "decrypt", "")
	event.Severity = ""
	payload, _ := json.Marshal(SecurityEventRecorded{EventType: EventTypeRecorded, Event: event})

	obs := &captureObserver{}
	require.NoError(t, HandleSecurityEventRecorded(context.Background(), payload, obs))
	assert.Equal(t, model.SeverityCritical, obs.events[0].Severity)
}
