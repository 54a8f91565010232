package service

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tipbot/ledger/internal/domain"
)

type withdrawalEscalator interface {
	EscalateStaleWithdrawals(ctx context.Context, olderThan time.Duration) (int, error)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type publishRecorder interface {
	ObservePublish(eventType domain.EventType, err error)
}
