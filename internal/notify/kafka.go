// Package notify delivers incident notifications and containment requests.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/ortelius/storefront-guard/model"
	"github.com/segmentio/kafka-go"
)

// Message types published on the incident notification topic
const (
	EventTypeNotify  = "incident.notify"
	EventTypeContain = "incident.contain"
	SchemaVersion    = "v1"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaNotifier
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// IncidentMessage is the payload consumed by paging and runbook automation
type IncidentMessage struct {
	EventType     string               `json:"event_type"`
	EventID       string               `json:"event_id"`
	EventTime     time.Time            `json:"event_time"`
	SchemaVersion string               `json:"schema_version"`
	IncidentKey   string               `json:"incident_key"`
	Type          model.IncidentType   `json:"type"`
	Severity      model.Severity       `json:"severity"`
	Status        model.IncidentStatus `json:"status"`
	ReportedAt    time.Time            `json:"reported_at"`
	Description   string               `json:"description"`
	Contacts      []string             `json:"contacts,omitempty"`
	Actions       []string             `json:"actions,omitempty"`
}

// KafkaNotifier publishes incident messages keyed by incident id
type KafkaNotifier struct {
	Writer MessageWriter
}

// NewKafkaNotifier wraps a writer bound to the notification topic
func NewKafkaNotifier(writer MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{Writer: writer}
}

// NotifyStakeholders publishes a notify message addressed to contacts
func (k *KafkaNotifier) NotifyStakeholders(ctx context.Context, incident *model.SecurityIncident, contacts []string) error {
	msg := newIncidentMessage(EventTypeNotify, incident)
	msg.Contacts = contacts
	return k.publish(ctx, msg)
}

// ImplementContainment publishes the containment steps for the incident's type
func (k *KafkaNotifier) ImplementContainment(ctx context.Context, incident *model.SecurityIncident, actions []string) error {
	msg := newIncidentMessage(EventTypeContain, incident)
	msg.Actions = actions
	return k.publish(ctx, msg)
}

func (k *KafkaNotifier) publish(ctx context.Context, msg IncidentMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return k.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.IncidentKey),
		Value: payload,
	})
}

// Close cleans up the Kafka writer
func (k *KafkaNotifier) Close() error {
	return k.Writer.Close()
}

func newIncidentMessage(eventType string, incident *model.SecurityIncident) IncidentMessage {
	return IncidentMessage{
		EventType:     eventType,
		EventID:       uuid.New().String(),
		EventTime:     time.Now().UTC(),
		SchemaVersion: SchemaVersion,
		IncidentKey:   incident.Key,
		Type:          incident.Type,
		Severity:      incident.Severity,
		Status:        incident.Status,
		ReportedAt:    incident.ReportedAt,
		Description:   incident.Description,
	}
}
