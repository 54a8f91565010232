package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tipbot/ledger/internal/domain"
	"github.com/tipbot/ledger/internal/logging"
)

type accountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByPlatformUser(ctx context.Context, platform, platformUserID string) (*domain.Account, error)
	GetByMemoID(ctx context.Context, memoID string) (*domain.Account, error)
	Create(ctx context.Context, tx *sql.Tx, account *domain.Account) error
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
	UpdateBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance decimal.Decimal, newVersion int64) error
	UpdateMemoID(ctx context.Context, id uuid.UUID, memoID string) error
}

type actionRepo interface {
	Create(ctx context.Context, tx *sql.Tx, action *domain.Action) error
	Exists(ctx context.Context, tx *sql.Tx, sourceAccountID uuid.UUID, hash string, actionType domain.ActionType) (bool, error)
	GetByKey(ctx context.Context, sourceAccountID uuid.UUID, hash string, actionType domain.ActionType) (*domain.Action, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Action, int, error)
}

type settlementRepo interface {
	Create(ctx context.Context, tx *sql.Tx, rec *domain.SettlementRecord) error
	Upsert(ctx context.Context, rec *domain.SettlementRecord) (*domain.SettlementRecord, error)
	GetByKey(ctx context.Context, hash string, settlementType domain.SettlementType, target string) (*domain.SettlementRecord, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, hash string, settlementType domain.SettlementType, target string) (*domain.SettlementRecord, error)
	MarkCredited(ctx context.Context, tx *sql.Tx, id uuid.UUID) error
}

type intentRepo interface {
	Arm(ctx context.Context, tx *sql.Tx, intent *domain.WithdrawalIntent) (*domain.WithdrawalIntent, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WithdrawalIntent, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.WithdrawalIntent, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id uuid.UUID, status domain.WithdrawalStatus, held bool, failureReason *string) error
	ListByStatus(ctx context.Context, statuses []domain.WithdrawalStatus, limit int) ([]domain.WithdrawalIntent, error)
	ListStale(ctx context.Context, before time.Time, limit int) ([]domain.WithdrawalIntent, error)
	CountUnresolved(ctx context.Context) (int, error)
}

// Locker serialises debits of one account across goroutines and instances.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type Recorder interface {
	ObserveOperation(operation string, kind domain.ErrorKind, elapsed time.Duration)
	AddVolume(operation string, amount decimal.Decimal)
	SetUnresolvedWithdrawals(n int)
	IncEscalations()
}

type Settings struct {
	WithdrawalMemo string
	SettleTimeout  time.Duration
}

type Engine struct {
	accounts    accountRepo
	actions     actionRepo
	settlements settlementRepo
	intents     intentRepo
	db          *sql.DB
	locker      Locker
	observer    Observer
	recorder    Recorder
	settings    Settings
}

func NewEngine(
	accounts accountRepo,
	actions actionRepo,
	settlements settlementRepo,
	intents intentRepo,
	db *sql.DB,
	locker Locker,
	observer Observer,
	recorder Recorder,
	settings Settings,
) *Engine {
	if observer == nil {
		observer = Observers(nil)
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if settings.SettleTimeout <= 0 {
		settings.SettleTimeout = 30 * time.Second
	}
	return &Engine{
		accounts:    accounts,
		actions:     actions,
		settlements: settlements,
		intents:     intents,
		db:          db,
		locker:      locker,
		observer:    observer,
		recorder:    recorder,
		settings:    settings,
	}
}

func (e *Engine) CanPay(account *domain.Account, amount decimal.Decimal) bool {
	return account.Balance.GreaterThanOrEqual(domain.NormalizeAmount(amount))
}

func (e *Engine) record(operation string, start time.Time, err error) {
	e.recorder.ObserveOperation(operation, domain.KindOf(err), time.Since(start))
}

func (e *Engine) notify(ctx context.Context, event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.FromContext(ctx).Error("event observer panicked", "event_type", event.Type, "panic", r)
		}
	}()
	e.observer.Notify(ctx, event)
}

func (e *Engine) lockAccount(ctx context.Context, id uuid.UUID) (func(), error) {
	unlock, err := e.locker.Lock(ctx, "account:"+id.String())
	if err != nil {
		return nil, fmt.Errorf("lockAccount: %w", err)
	}
	return unlock, nil
}

func lockAccountsInOrder(ctx context.Context, tx *sql.Tx, accounts accountRepo, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	sorted := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		sorted = append(sorted, id)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})

	result := make(map[uuid.UUID]*domain.Account, len(sorted))
	for _, id := range sorted {
		acct, err := accounts.GetForUpdate(ctx, tx, id)
		if err != nil {
			return nil, fmt.Errorf("lockAccountsInOrder: %w", err)
		}
		result[id] = acct
	}
	return result, nil
}

func applyCommitted(dst, committed *domain.Account) {
	if dst == nil || committed == nil {
		return
	}
	dst.Balance = committed.Balance
	dst.Version = committed.Version
	dst.UpdatedAt = committed.UpdatedAt
}

func validateHash(hash string) error {
	if hash == "" {
		return fmt.Errorf("hash is required: %w", domain.ErrValidation)
	}
	return nil
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, domain.ErrorKind, time.Duration) {}
func (nopRecorder) AddVolume(string, decimal.Decimal)                        {}
func (nopRecorder) SetUnresolvedWithdrawals(int)                             {}
func (nopRecorder) IncEscalations()                                          {}
