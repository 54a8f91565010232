package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tipbot/ledger/internal/domain"
)

type operationResponse struct {
	Success bool         `json:"success"`
	Data    operationDTO `json:"data"`
	Error   *APIError    `json:"error"`
}

func postTransfer(t *testing.T, h *TransferHandler, platform, body string) (*httptest.ResponseRecorder, operationResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transfers", strings.NewReader(body))
	if platform != "" {
		req = withPlatform(req, platform)
	}
	rr := httptest.NewRecorder()
	h.Create(rr, req)

	var resp operationResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return rr, resp
}

func TestTransferHandler_Create(t *testing.T) {
	tests := []struct {
		name       string
		platform   string
		body       string
		setup      func(m *mockLedger)
		wantStatus int
		wantCode   string
		wantCalls  int
	}{
		{
			name:       "tip between two users",
			platform:   "reddit",
			body:       `{"source_user_id":"alice","target_user_id":"bob","amount":"1.5","hash":"t3_abc"}`,
			wantStatus: http.StatusCreated,
			wantCalls:  1,
		},
		{
			name:       "self tip rejected before the engine",
			platform:   "reddit",
			body:       `{"source_user_id":"Alice","target_user_id":" alice ","amount":"1","hash":"t3_abc"}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "SELF_TRANSFER_NOT_ALLOWED",
		},
		{
			name:     "insufficient balance",
			platform: "reddit",
			body:     `{"source_user_id":"alice","target_user_id":"bob","amount":"100","hash":"t3_abc"}`,
			setup: func(m *mockLedger) {
				m.transferErr = fmt.Errorf("Transfer: %w", domain.ErrInsufficientBalance)
			},
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "INSUFFICIENT_BALANCE",
			wantCalls:  1,
		},
		{
			name:     "account busy",
			platform: "reddit",
			body:     `{"source_user_id":"alice","target_user_id":"bob","amount":"1","hash":"t3_abc"}`,
			setup: func(m *mockLedger) {
				m.transferErr = fmt.Errorf("Transfer: %w: %w", domain.ErrValidation, domain.ErrAccountBusy)
			},
			wantStatus: http.StatusConflict,
			wantCode:   "ACCOUNT_BUSY",
			wantCalls:  1,
		},
		{
			name:       "zero amount",
			platform:   "reddit",
			body:       `{"source_user_id":"alice","target_user_id":"bob","amount":"0","hash":"t3_abc"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "missing hash",
			platform:   "reddit",
			body:       `{"source_user_id":"alice","target_user_id":"bob","amount":"1"}`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_FAILED",
		},
		{
			name:       "malformed body",
			platform:   "reddit",
			body:       `{"source_user_id":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "no platform claim",
			body:       `{"source_user_id":"alice","target_user_id":"bob","amount":"1","hash":"t3_abc"}`,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "MISSING_TOKEN",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := newMockLedger()
			m.seed("reddit", "alice", "10")
			if tc.setup != nil {
				tc.setup(m)
			}
			h := NewTransferHandler(m)

			rr, resp := postTransfer(t, h, tc.platform, tc.body)

			assert.Equal(t, tc.wantStatus, rr.Code)
			assert.Equal(t, tc.wantCalls, m.transfers)
			if tc.wantCode != "" {
				require.NotNil(t, resp.Error)
				assert.Equal(t, tc.wantCode, resp.Error.Code)
			}
		})
	}
}

func TestTransferHandler_Create_ReturnsBalances(t *testing.T) {
	m := newMockLedger()
	m.seed("reddit", "alice", "10")
	h := NewTransferHandler(m)

	rr, resp := postTransfer(t, h, "reddit",
		`{"source_user_id":"alice","target_user_id":"Bob","amount":"2.25","hash":"t3_abc"}`)

	require.Equal(t, http.StatusCreated, rr.Code)
	require.NotNil(t, resp.Data.Source)
	require.NotNil(t, resp.Data.Target)
	assert.Equal(t, "7.7500000", resp.Data.Source.Balance)
	assert.Equal(t, "2.2500000", resp.Data.Target.Balance)
	assert.Equal(t, "bob", resp.Data.Target.PlatformUserID)
	assert.Equal(t, "transfer", resp.Data.Action.Type)
	assert.False(t, resp.Data.Replayed)
}

func TestTransferHandler_Create_DuplicateIsReplayed(t *testing.T) {
	m := newMockLedger()
	alice := m.seed("reddit", "alice", "10")
	m.transferErr = fmt.Errorf("Transfer: %w", domain.ErrDuplicateOperation)
	m.replayed = &domain.Action{
		ID:              uuid.New(),
		Type:            domain.ActionTypeTransfer,
		Amount:          decimal.RequireFromString("1"),
		SourceAccountID: alice.ID,
		Hash:            "t3_abc",
	}
	h := NewTransferHandler(m)

	rr, resp := postTransfer(t, h, "reddit",
		`{"source_user_id":"alice","target_user_id":"bob","amount":"1","hash":"t3_abc"}`)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, resp.Success)
	assert.True(t, resp.Data.Replayed)
	assert.Equal(t, m.replayed.ID, resp.Data.Action.ID)
}

func TestTransferHandler_Create_DuplicateWithoutRecordIsConflict(t *testing.T) {
	m := newMockLedger()
	m.seed("reddit", "alice", "10")
	m.transferErr = fmt.Errorf("Transfer: %w", domain.ErrDuplicateOperation)
	h := NewTransferHandler(m)

	rr, resp := postTransfer(t, h, "reddit",
		`{"source_user_id":"alice","target_user_id":"bob","amount":"1","hash":"t3_abc"}`)

	assert.Equal(t, http.StatusConflict, rr.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "DUPLICATE_OPERATION", resp.Error.Code)
}
