package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tipbot/ledger/internal/domain"
	"github.com/tipbot/ledger/internal/logging"
)

type accountService interface {
	GetOrCreate(ctx context.Context, platform, userID string, opts ...domain.AccountOption) (*domain.Account, error)
	Find(ctx context.Context, platform, userID string) (*domain.Account, error)
	FindByMemoID(ctx context.Context, memoID string) (*domain.Account, error)
	RefreshMemoID(ctx context.Context, account *domain.Account) (string, error)
	History(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.Action, int, error)
}

type AccountHandler struct {
	accounts accountService
}

func NewAccountHandler(accounts accountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

type createAccountRequest struct {
	UserID string `json:"user_id" validate:"required,max=255"`
	MemoID string `json:"memo_id" validate:"omitempty,max=255"`
}

type accountDTO struct {
	ID             uuid.UUID `json:"id"`
	Platform       string    `json:"platform"`
	PlatformUserID string    `json:"platform_user_id"`
	MemoID         string    `json:"memo_id"`
	Balance        string    `json:"balance"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toAccountDTO(a *domain.Account) accountDTO {
	return accountDTO{
		ID:             a.ID,
		Platform:       a.Platform,
		PlatformUserID: a.PlatformUserID,
		MemoID:         a.MemoID,
		Balance:        domain.FormatAmount(a.Balance),
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

type actionDTO struct {
	ID              uuid.UUID  `json:"id"`
	Type            string     `json:"type"`
	Amount          string     `json:"amount"`
	SourceAccountID uuid.UUID  `json:"source_account_id"`
	TargetAccountID *uuid.UUID `json:"target_account_id,omitempty"`
	Hash            string     `json:"hash"`
	Address         *string    `json:"address,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toActionDTO(a *domain.Action) actionDTO {
	return actionDTO{
		ID:              a.ID,
		Type:            string(a.Type),
		Amount:          domain.FormatAmount(a.Amount),
		SourceAccountID: a.SourceAccountID,
		TargetAccountID: a.TargetAccountID,
		Hash:            a.Hash,
		Address:         a.Address,
		CreatedAt:       a.CreatedAt,
	}
}

func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	platform, appErr := platformFromRequest(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := validateStruct(req); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	var opts []domain.AccountOption
	if req.MemoID != "" {
		opts = append(opts, domain.WithMemoID(req.MemoID))
	}

	account, err := h.accounts.GetOrCreate(r.Context(), platform, req.UserID, opts...)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to get or create account", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toAccountDTO(account))
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	platform, userID, appErr := ownerFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	account, err := h.accounts.Find(r.Context(), platform, userID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toAccountDTO(account))
}

func (h *AccountHandler) RefreshMemo(w http.ResponseWriter, r *http.Request) {
	platform, userID, appErr := ownerFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	account, err := h.accounts.Find(r.Context(), platform, userID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	memo, err := h.accounts.RefreshMemoID(r.Context(), account)
	if err != nil {
		logging.FromContext(r.Context()).Warn("memo refresh failed", "account_id", account.ID, "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, map[string]string{"memo_id": memo})
}

func (h *AccountHandler) History(w http.ResponseWriter, r *http.Request) {
	platform, userID, appErr := ownerFromPath(r)
	if appErr != nil {
		RespondAppError(w, appErr, nil)
		return
	}

	limit, fields := queryInt(r, "limit", 20)
	offset, more := queryInt(r, "offset", 0)
	if fields = append(fields, more...); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	account, err := h.accounts.Find(r.Context(), platform, userID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	actions, total, err := h.accounts.History(r.Context(), account.ID, limit, offset)
	if err != nil {
		logging.FromContext(r.Context()).Error("failed to list actions", "account_id", account.ID, "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]actionDTO, len(actions))
	for i := range actions {
		dtos[i] = toActionDTO(&actions[i])
	}

	RespondSuccess(w, http.StatusOK, map[string]any{
		"actions": dtos,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

func (h *AccountHandler) GetByMemo(w http.ResponseWriter, r *http.Request) {
	memoID, err := url.PathUnescape(chi.URLParam(r, "memoID"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	account, err := h.accounts.FindByMemoID(r.Context(), memoID)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toAccountDTO(account))
}

func queryInt(r *http.Request, name string, def int) (int, []FieldError) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, []FieldError{{Field: name, Message: "must be a non-negative integer"}}
	}
	return n, nil
}
