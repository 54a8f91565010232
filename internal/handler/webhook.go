package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/tipbot/ledger/internal/domain"
	"github.com/tipbot/ledger/internal/logging"
)

type depositService interface {
	RecordDeposit(ctx context.Context, rec *domain.SettlementRecord) (*domain.SettlementRecord, error)
	FindByMemoID(ctx context.Context, memoID string) (*domain.Account, error)
	Deposit(ctx context.Context, account *domain.Account, rec *domain.SettlementRecord) (*domain.Action, error)
}

// WebhookHandler receives deposits observed on the payment network by the
// chain watcher.
type WebhookHandler struct {
	deposits depositService
	secret   string
}

func NewWebhookHandler(deposits depositService, secret string) *WebhookHandler {
	return &WebhookHandler{deposits: deposits, secret: secret}
}

type depositPayload struct {
	Hash   string `json:"hash" validate:"required,max=255"`
	Source string `json:"source" validate:"required,max=128"`
	Target string `json:"target" validate:"required,max=128"`
	Amount string `json:"amount" validate:"required,amount"`
	Asset  string `json:"asset" validate:"required,max=12"`
	MemoID string `json:"memo_id" validate:"max=255"`
}

func (h *WebhookHandler) ReceiveDeposit(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		log.Error("failed to read webhook body", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	sig := r.Header.Get("X-Webhook-Signature")
	if !verifyHMAC(body, sig, h.secret) {
		log.Warn("webhook signature verification failed")
		RespondAppError(w, ErrInvalidSignature, nil)
		return
	}

	var payload depositPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Warn("failed to parse webhook payload", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if fields := validateStruct(payload); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}
	amount, _ := domain.ParseAmount(payload.Amount)

	var memo *string
	if payload.MemoID != "" {
		m := domain.NormalizeMemoID(payload.MemoID)
		memo = &m
	}

	rec, err := h.deposits.RecordDeposit(r.Context(), &domain.SettlementRecord{
		Hash:   payload.Hash,
		Source: payload.Source,
		Target: payload.Target,
		Amount: amount,
		Asset:  payload.Asset,
		MemoID: memo,
	})
	if err != nil {
		log.Error("failed to record deposit", "hash", payload.Hash, "error", err)
		RespondDomainError(w, err)
		return
	}
	if rec.Credited {
		RespondSuccess(w, http.StatusOK, map[string]string{"status": "already_credited"})
		return
	}
	if memo == nil {
		log.Warn("deposit without memo recorded", "hash", payload.Hash)
		RespondSuccess(w, http.StatusOK, map[string]string{"status": "unmatched"})
		return
	}

	account, err := h.deposits.FindByMemoID(r.Context(), *memo)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn("deposit memo matches no account", "hash", payload.Hash, "memo_id", *memo)
		RespondSuccess(w, http.StatusOK, map[string]string{"status": "unmatched"})
		return
	}
	if err != nil {
		log.Error("failed to resolve deposit memo", "hash", payload.Hash, "error", err)
		RespondDomainError(w, err)
		return
	}

	action, err := h.deposits.Deposit(r.Context(), account, rec)
	if errors.Is(err, domain.ErrDuplicateOperation) {
		log.Info("duplicate deposit received", "hash", payload.Hash, "account_id", account.ID)
		RespondSuccess(w, http.StatusOK, map[string]string{"status": "already_credited"})
		return
	}
	if err != nil {
		log.Error("failed to credit deposit", "hash", payload.Hash, "account_id", account.ID, "error", err)
		RespondDomainError(w, err)
		return
	}

	log.Info("deposit credited via webhook",
		"action_id", action.ID,
		"account_id", account.ID,
		"hash", payload.Hash,
	)

	RespondSuccess(w, http.StatusOK, map[string]any{
		"status":  "credited",
		"action":  toActionDTO(action),
		"account": toAccountDTO(account),
	})
}

func verifyHMAC(body []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
