package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken     = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken     = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidSignature = &AppError{http.StatusUnauthorized, "INVALID_SIGNATURE", "Webhook signature is invalid"}
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInsufficientBalance    = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_BALANCE", "Insufficient balance"}
	ErrSelfTransfer           = &AppError{http.StatusUnprocessableEntity, "SELF_TRANSFER_NOT_ALLOWED", "Cannot tip yourself"}
	ErrInvalidAddress         = &AppError{http.StatusUnprocessableEntity, "INVALID_ADDRESS", "Destination address is invalid or does not exist"}
	ErrDuplicateOperation     = &AppError{http.StatusConflict, "DUPLICATE_OPERATION", "Operation was already applied"}
	ErrAccountBusy            = &AppError{http.StatusConflict, "ACCOUNT_BUSY", "Account is busy, please retry"}
	ErrVersionConflict        = &AppError{http.StatusConflict, "VERSION_CONFLICT", "Resource was modified concurrently, please retry"}
	ErrSettlementFailed       = &AppError{http.StatusBadGateway, "SETTLEMENT_FAILED", "Withdrawal was rejected by the network; balance restored"}
	ErrReconciliationRequired = &AppError{http.StatusAccepted, "RECONCILIATION_REQUIRED", "Withdrawal outcome unknown; funds are held pending review"}
)
