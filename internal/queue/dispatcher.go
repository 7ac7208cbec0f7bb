package queue

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/Merlin1A/air-pulse/internal/alerting"
	"github.com/Merlin1A/air-pulse/internal/protocol"
)

type batchPublisher interface {
	PublishBatch(ctx context.Context, messages []kafka.Message) error
}

// AlertDispatcher publishes alerts to the alert topic keyed by user id.
// The notification service takes it from there.
type AlertDispatcher struct {
	producer batchPublisher
}

// NewAlertDispatcher creates a dispatcher writing through producer
func NewAlertDispatcher(producer batchPublisher) *AlertDispatcher {
	return &AlertDispatcher{producer: producer}
}

// Dispatch encodes and publishes alerts in a single write
func (d *AlertDispatcher) Dispatch(ctx context.Context, alerts []alerting.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(alerts))
	for i := range alerts {
		data, err := protocol.EncodeAlertMessage(ToAlertMessage(alerts[i]))
		if err != nil {
			return fmt.Errorf("failed to encode alert %s: %w", alerts[i].ID, err)
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(alerts[i].UserID),
			Value: data,
		})
	}

	return d.producer.PublishBatch(ctx, messages)
}

// ToAlertMessage converts an engine alert into its wire form
func ToAlertMessage(a alerting.Alert) *protocol.AlertMessage {
	return &protocol.AlertMessage{
		AlertID:     a.ID,
		UserID:      a.UserID,
		LocationKey: a.LocationKey,
		Pollutant:   string(a.Pollutant),
		Unit:        a.Pollutant.Unit(),
		Value:       a.ObservedValue,
		Threshold:   a.ThresholdValue,
		Severity:    a.Severity,
		ReadingTime: a.Timestamp,
		RaisedAt:    a.RaisedAt,
	}
}
