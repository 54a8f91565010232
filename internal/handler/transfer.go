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
)

type transferService interface {
	GetOrCreate(ctx context.Context, platform, userID string, opts ...domain.AccountOption) (*domain.Account, error)
	Transfer(ctx context.Context, source, target *domain.Account, amount decimal.Decimal, hash string) (*domain.Action, error)
	Replayed(ctx context.Context, sourceAccountID uuid.UUID, hash string, actionType domain.ActionType) (*domain.Action, error)
}

type TransferHandler struct {
	ledger transferService
}

func NewTransferHandler(ledger transferService) *TransferHandler {
	return &TransferHandler{ledger: ledger}
}

type createTransferRequest struct {
	SourceUserID string `json:"source_user_id" validate:"required,max=255"`
	TargetUserID string `json:"target_user_id" validate:"required,max=255"`
	Amount       string `json:"amount" validate:"required,amount"`
	Hash         string `json:"hash" validate:"required,max=255"`
}

type operationDTO struct {
	Action   actionDTO   `json:"action"`
	Source   *accountDTO `json:"source,omitempty"`
	Target   *accountDTO `json:"target,omitempty"`
	Replayed bool        `json:"replayed"`
}

func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	platform, appErr := platformFromRequest(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req createTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := validateStruct(req); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}
	amount, _ := domain.ParseAmount(req.Amount)

	if domain.NormalizeUserID(req.SourceUserID) == domain.NormalizeUserID(req.TargetUserID) {
		RespondDomainError(w, domain.ErrSelfTransfer)
		return
	}

	source, err := h.ledger.GetOrCreate(r.Context(), platform, req.SourceUserID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}
	target, err := h.ledger.GetOrCreate(r.Context(), platform, req.TargetUserID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	action, err := h.ledger.Transfer(r.Context(), source, target, amount, req.Hash)
	if errors.Is(err, domain.ErrDuplicateOperation) {
		h.respondReplayed(w, r, source.ID, req.Hash, err)
		return
	}
	if err != nil {
		log.Warn("transfer failed", "hash", req.Hash, "error", err)
		RespondDomainError(w, err)
		return
	}

	src, dst := toAccountDTO(source), toAccountDTO(target)
	RespondSuccess(w, http.StatusCreated, operationDTO{
		Action: toActionDTO(action),
		Source: &src,
		Target: &dst,
	})
}

func (h *TransferHandler) respondReplayed(w http.ResponseWriter, r *http.Request, sourceID uuid.UUID, hash string, cause error) {
	action, err := h.ledger.Replayed(r.Context(), sourceID, hash, domain.ActionTypeTransfer)
	if err != nil {
		RespondDomainError(w, cause)
		return
	}
	RespondSuccess(w, http.StatusOK, operationDTO{Action: toActionDTO(action), Replayed: true})
}
