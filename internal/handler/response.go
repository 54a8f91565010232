package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tipbot/ledger/internal/domain"
)

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data"`
	Error   *APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func RespondSuccess(w http.ResponseWriter, status int, data any) {
	RespondJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Error:   nil,
	})
}

func RespondAppError(w http.ResponseWriter, appErr *AppError, details any) {
	RespondJSON(w, appErr.Status, APIResponse{
		Success: false,
		Data:    nil,
		Error: &APIError{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: details,
		},
	})
}

func RespondValidationError(w http.ResponseWriter, fields []FieldError) {
	RespondAppError(w, ErrValidationFailed, fields)
}

func RespondDomainError(w http.ResponseWriter, err error) {
	RespondAppError(w, appErrorFor(err), nil)
}

func appErrorFor(err error) *AppError {
	switch {
	case errors.Is(err, domain.ErrSelfTransfer):
		return ErrSelfTransfer
	case errors.Is(err, domain.ErrAccountBusy):
		return ErrAccountBusy
	case errors.Is(err, domain.ErrVersionConflict):
		return ErrVersionConflict
	case errors.Is(err, domain.ErrInvalidDestination):
		return ErrInvalidAddress
	}

	switch domain.KindOf(err) {
	case domain.KindReconciliationRequired:
		return ErrReconciliationRequired
	case domain.KindSettlementFailed:
		return ErrSettlementFailed
	case domain.KindInsufficientBalance:
		return ErrInsufficientBalance
	case domain.KindDuplicateOperation:
		return ErrDuplicateOperation
	case domain.KindValidation:
		return ErrValidationFailed
	case domain.KindNotFound:
		return ErrResourceNotFound
	default:
		slog.Error("unhandled domain error", "error", err)
		return ErrInternalError
	}
}
