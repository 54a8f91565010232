package service

import (
	"context"
	"log/slog"
	"time"
)

// WithdrawalSweeper periodically escalates withdrawal intents left pending
// by a crashed process so their funds are held for an operator.
type WithdrawalSweeper struct {
	engine     withdrawalEscalator
	logger     *slog.Logger
	interval   time.Duration
	staleAfter time.Duration
}

func NewWithdrawalSweeper(
	engine withdrawalEscalator,
	logger *slog.Logger,
	interval time.Duration,
	staleAfter time.Duration,
) *WithdrawalSweeper {
	return &WithdrawalSweeper{
		engine:     engine,
		logger:     logger,
		interval:   interval,
		staleAfter: staleAfter,
	}
}

func (s *WithdrawalSweeper) Start(ctx context.Context) {
	s.logger.Info("withdrawal sweeper started",
		"interval", s.interval,
		"stale_after", s.staleAfter,
	)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("withdrawal sweeper stopped")
			return
		case <-ticker.C:
			s.poll(ctx)
		}
	}
}

func (s *WithdrawalSweeper) poll(ctx context.Context) {
	n, err := s.engine.EscalateStaleWithdrawals(ctx, s.staleAfter)
	if err != nil {
		s.logger.Error("failed to escalate stale withdrawals", "error", err)
		return
	}
	if n > 0 {
		s.logger.Warn("stale withdrawals need reconciliation", "escalated", n)
	}
}
