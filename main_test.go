package main

import (
	"context"
	"errors"
	"testing"

	"github.com/ortelius/storefront-guard/events/modules/security"
	"github.com/ortelius/storefront-guard/internal/events"
	"github.com/ortelius/storefront-guard/internal/incident"
	"github.com/ortelius/storefront-guard/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingPublisher struct {
	published int
}

func (p *countingPublisher) PublishSecurityEvent(context.Context, model.SecurityEvent) error {
	p.published++
	return nil
}

type countingEscalator struct {
	reports []incident.ReportRequest
}

func (e *countingEscalator) Report(_ context.Context, req incident.ReportRequest) (*model.SecurityIncident, error) {
	e.reports = append(e.reports, req)
	return &model.SecurityIncident{}, nil
}

func criticalEvent() model.SecurityEvent {
	return model.NewSecurityEvent(model.EventDecryptionFailure, "crypt", "", "decrypt", "")
}

func TestStartRecorderEscalatesLocallyWhenConsumerFails(t *testing.T) {
	pub := &countingPublisher{}
	esc := &countingEscalator{}

	recorder, err := startRecorder(events.Config{}, events.NewMemoryStore(10), pub, esc, zap.NewNop(),
		func(security.Observer) error { return errors.New("broker unreachable") })
	require.NoError(t, err)

	recorder.Record(context.Background(), criticalEvent())
	assert.Zero(t, pub.published)
	assert.Len(t, esc.reports, 1)
}

func TestStartRecorderDefersToRunningConsumer(t *testing.T) {
	pub := &countingPublisher{}
	esc := &countingEscalator{}
	var observer security.Observer

	recorder, err := startRecorder(events.Config{}, events.NewMemoryStore(10), pub, esc, zap.NewNop(),
		func(o security.Observer) error {
			observer = o
			return nil
		})
	require.NoError(t, err)
	assert.Same(t, recorder, observer)

	recorder.Record(context.Background(), criticalEvent())
	assert.Equal(t, 1, pub.published)
	assert.Empty(t, esc.reports, "the consumer observes published events")
}

func TestStartRecorderWithoutPublisherSkipsConsumer(t *testing.T) {
	started := false
	_, err := startRecorder(events.Config{}, nil, nil, &countingEscalator{}, zap.NewNop(),
		func(security.Observer) error {
			started = true
			return nil
		})
	require.NoError(t, err)
	assert.False(t, started)
}
