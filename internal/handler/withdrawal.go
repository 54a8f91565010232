package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tipbot/ledger/internal/domain"
	"github.com/tipbot/ledger/internal/logging"
	"github.com/tipbot/ledger/internal/service/ledger"
)

type withdrawalService interface {
	Find(ctx context.Context, platform, userID string) (*domain.Account, error)
	Withdraw(ctx context.Context, gw ledger.Gateway, account *domain.Account, address string, amount decimal.Decimal, hash string) (*domain.Action, error)
	Replayed(ctx context.Context, sourceAccountID uuid.UUID, hash string, actionType domain.ActionType) (*domain.Action, error)
}

type WithdrawalHandler struct {
	ledger  withdrawalService
	gateway ledger.Gateway
}

func NewWithdrawalHandler(svc withdrawalService, gateway ledger.Gateway) *WithdrawalHandler {
	return &WithdrawalHandler{ledger: svc, gateway: gateway}
}

type createWithdrawalRequest struct {
	UserID  string `json:"user_id" validate:"required,max=255"`
	Address string `json:"address" validate:"required,max=128"`
	Amount  string `json:"amount" validate:"required,amount"`
	Hash    string `json:"hash" validate:"required,max=255"`
}

func (h *WithdrawalHandler) Create(w http.ResponseWriter, r *http.Request) {
	platform, appErr := platformFromRequest(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req createWithdrawalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := validateStruct(req); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}
	amount, _ := domain.ParseAmount(req.Amount)

	account, err := h.ledger.Find(r.Context(), platform, req.UserID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	log := logging.FromContext(r.Context()).With("account_id", account.ID, "hash", req.Hash)

	action, err := h.ledger.Withdraw(r.Context(), h.gateway, account, req.Address, amount, req.Hash)
	if errors.Is(err, domain.ErrDuplicateOperation) {
		replayed, lookupErr := h.ledger.Replayed(r.Context(), account.ID, req.Hash, domain.ActionTypeWithdrawal)
		if lookupErr != nil {
			RespondDomainError(w, err)
			return
		}
		RespondSuccess(w, http.StatusOK, operationDTO{Action: toActionDTO(replayed), Replayed: true})
		return
	}
	if err != nil {
		switch domain.KindOf(err) {
		case domain.KindReconciliationRequired:
			log.Error("withdrawal needs reconciliation", "error", err)
		case domain.KindInternal:
			log.Error("withdrawal failed", "error", err)
		default:
			log.Warn("withdrawal rejected", "error", err)
		}
		RespondDomainError(w, err)
		return
	}

	src := toAccountDTO(account)
	RespondSuccess(w, http.StatusCreated, operationDTO{
		Action: toActionDTO(action),
		Source: &src,
	})
}
