package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tipbot/ledger/internal/auth"
	"github.com/tipbot/ledger/internal/domain"
	"github.com/tipbot/ledger/internal/service/ledger"
)

// mockLedger satisfies every service interface the handlers depend on.
type mockLedger struct {
	accounts map[string]*domain.Account
	byMemo   map[string]*domain.Account

	getOrCreateErr error
	transferErr    error
	withdrawErr    error
	recordErr      error
	depositErr     error
	replayed       *domain.Action
	recorded       *domain.SettlementRecord

	transfers   int
	withdrawals int
	deposits    int
}

func newMockLedger() *mockLedger {
	return &mockLedger{
		accounts: make(map[string]*domain.Account),
		byMemo:   make(map[string]*domain.Account),
	}
}

func (m *mockLedger) seed(platform, userID, balance string) *domain.Account {
	a := &domain.Account{
		ID:             uuid.New(),
		Platform:       platform,
		PlatformUserID: userID,
		MemoID:         platform + "/" + userID,
		Balance:        decimal.RequireFromString(balance),
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
	m.accounts[platform+"/"+userID] = a
	m.byMemo[a.MemoID] = a
	return a
}

func (m *mockLedger) GetOrCreate(_ context.Context, platform, userID string, opts ...domain.AccountOption) (*domain.Account, error) {
	if m.getOrCreateErr != nil {
		return nil, m.getOrCreateErr
	}
	if a, ok := m.accounts[platform+"/"+domain.NormalizeUserID(userID)]; ok {
		return a, nil
	}
	a := m.seed(platform, domain.NormalizeUserID(userID), "0")
	delete(m.byMemo, a.MemoID)
	for _, opt := range opts {
		opt(a)
	}
	m.byMemo[a.MemoID] = a
	return a, nil
}

func (m *mockLedger) Find(_ context.Context, platform, userID string) (*domain.Account, error) {
	if a, ok := m.accounts[platform+"/"+domain.NormalizeUserID(userID)]; ok {
		return a, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockLedger) FindByMemoID(_ context.Context, memoID string) (*domain.Account, error) {
	if a, ok := m.byMemo[domain.NormalizeMemoID(memoID)]; ok {
		return a, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockLedger) RefreshMemoID(_ context.Context, account *domain.Account) (string, error) {
	delete(m.byMemo, account.MemoID)
	account.MemoID = "abcd-ef01-2345-6789-abcd"
	m.byMemo[account.MemoID] = account
	return account.MemoID, nil
}

func (m *mockLedger) History(_ context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Action, int, error) {
	return []domain.Action{{
		ID:              uuid.New(),
		Type:            domain.ActionTypeDeposit,
		Amount:          decimal.RequireFromString("5"),
		SourceAccountID: accountID,
		Hash:            "deposit-1",
	}}, 1, nil
}

func (m *mockLedger) Transfer(_ context.Context, source, target *domain.Account, amount decimal.Decimal, hash string) (*domain.Action, error) {
	m.transfers++
	if m.transferErr != nil {
		return nil, m.transferErr
	}
	source.Balance = source.Balance.Sub(amount)
	target.Balance = target.Balance.Add(amount)
	return &domain.Action{
		ID:              uuid.New(),
		Type:            domain.ActionTypeTransfer,
		Amount:          amount,
		SourceAccountID: source.ID,
		TargetAccountID: &target.ID,
		Hash:            hash,
	}, nil
}

func (m *mockLedger) Withdraw(_ context.Context, _ ledger.Gateway, account *domain.Account, address string, amount decimal.Decimal, hash string) (*domain.Action, error) {
	m.withdrawals++
	if m.withdrawErr != nil {
		return nil, m.withdrawErr
	}
	account.Balance = account.Balance.Sub(amount)
	return &domain.Action{
		ID:              uuid.New(),
		Type:            domain.ActionTypeWithdrawal,
		Amount:          amount,
		SourceAccountID: account.ID,
		Hash:            hash,
		Address:         &address,
	}, nil
}

func (m *mockLedger) Replayed(_ context.Context, _ uuid.UUID, _ string, _ domain.ActionType) (*domain.Action, error) {
	if m.replayed == nil {
		return nil, domain.ErrNotFound
	}
	return m.replayed, nil
}

func (m *mockLedger) RecordDeposit(_ context.Context, rec *domain.SettlementRecord) (*domain.SettlementRecord, error) {
	if m.recordErr != nil {
		return nil, m.recordErr
	}
	if m.recorded != nil {
		return m.recorded, nil
	}
	rec.ID = uuid.New()
	rec.Type = domain.SettlementTypeDeposit
	m.recorded = rec
	return rec, nil
}

func (m *mockLedger) Deposit(_ context.Context, account *domain.Account, rec *domain.SettlementRecord) (*domain.Action, error) {
	m.deposits++
	if m.depositErr != nil {
		return nil, m.depositErr
	}
	account.Balance = account.Balance.Add(rec.Amount)
	return &domain.Action{
		ID:              uuid.New(),
		Type:            domain.ActionTypeDeposit,
		Amount:          rec.Amount,
		SourceAccountID: account.ID,
		Hash:            rec.Hash,
	}, nil
}

type nopGateway struct{}

func (nopGateway) Address() string { return "GTIPBOTHOTWALLET" }
func (nopGateway) Asset() string   { return "MOBI" }

func (nopGateway) CreateTransaction(context.Context, string, decimal.Decimal, string) (*ledger.Transaction, error) {
	return nil, nil
}

func (nopGateway) Send(context.Context, *ledger.Transaction) (*ledger.SettlementResult, error) {
	return nil, nil
}

func withPlatform(r *http.Request, platform string) *http.Request {
	ctx := auth.ContextWithClaims(r.Context(), &auth.Claims{Platform: platform, Adapter: platform + "-adapter"})
	return r.WithContext(ctx)
}

func withURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}
