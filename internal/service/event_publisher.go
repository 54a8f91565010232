package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/tipbot/ledger/internal/domain"
	"github.com/tipbot/ledger/internal/logging"
)

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
		BatchSize:              100,
		BatchTimeout:           10 * time.Millisecond,
	}
}

// EventPublisher forwards committed ledger events to Kafka, keyed by the
// account whose balance moved first so each account's events stay ordered.
// Publishing is best-effort; the ledger commit has already happened.
type EventPublisher struct {
	writer   messageWriter
	recorder publishRecorder
	timeout  time.Duration
}

func NewEventPublisher(writer messageWriter, recorder publishRecorder, timeout time.Duration) *EventPublisher {
	return &EventPublisher{
		writer:   writer,
		recorder: recorder,
		timeout:  timeout,
	}
}

type eventMessage struct {
	Type            domain.EventType `json:"type"`
	ActionID        uuid.UUID        `json:"action_id"`
	SourceAccountID *uuid.UUID       `json:"source_account_id,omitempty"`
	SourceUser      string           `json:"source_user,omitempty"`
	TargetAccountID *uuid.UUID       `json:"target_account_id,omitempty"`
	TargetUser      string           `json:"target_user,omitempty"`
	Platform        string           `json:"platform,omitempty"`
	Amount          string           `json:"amount"`
	Hash            string           `json:"hash"`
	Address         string           `json:"address,omitempty"`
	OccurredAt      time.Time        `json:"occurred_at"`
}

func (p *EventPublisher) Notify(ctx context.Context, event domain.Event) {
	log := logging.FromContext(ctx)

	msg := eventMessage{
		Type:       event.Type,
		ActionID:   event.ActionID,
		Amount:     domain.FormatAmount(event.Amount),
		Hash:       event.Hash,
		Address:    event.Address,
		OccurredAt: event.OccurredAt,
	}
	var key string
	if event.Source != nil {
		id := event.Source.ID
		msg.SourceAccountID = &id
		msg.SourceUser = event.Source.PlatformUserID
		msg.Platform = event.Source.Platform
		key = id.String()
	}
	if event.Target != nil {
		id := event.Target.ID
		msg.TargetAccountID = &id
		msg.TargetUser = event.Target.PlatformUserID
		if msg.Platform == "" {
			msg.Platform = event.Target.Platform
		}
		if key == "" {
			key = id.String()
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error("failed to encode ledger event", "event_type", event.Type, "error", err)
		p.recorder.ObservePublish(event.Type, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
	})
	p.recorder.ObservePublish(event.Type, err)
	if err != nil {
		log.Warn("failed to publish ledger event",
			"event_type", event.Type,
			"action_id", event.ActionID,
			"error", err,
		)
	}
}

func (p *EventPublisher) Close() error {
	return p.writer.Close()
}
