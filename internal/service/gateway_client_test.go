package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tipbot/ledger/internal/domain"
	"github.com/tipbot/ledger/internal/service/ledger"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *GatewayClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewGatewayClient(srv.URL, "GTIPBOTHOTWALLET", "MOBI", "MOBI Tipping bot", time.Second)
}

func TestGatewayClient_CreateAndSend(t *testing.T) {
	var got createTransactionPayload
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/transactions":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(createTransactionResponse{ID: "tx-1", Envelope: "AAAA"})
		case "/transactions/tx-1/submit":
			json.NewEncoder(w).Encode(submitResponse{Hash: "abc123", Ledger: 77})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	txn, err := gw.CreateTransaction(ctx, "GDEST", decimal.RequireFromString("1.5"), "w1")
	require.NoError(t, err)
	assert.Equal(t, "tx-1", txn.ID)
	assert.Equal(t, "AAAA", txn.Envelope)
	assert.Equal(t, createTransactionPayload{
		Destination: "GDEST",
		Amount:      "1.5000000",
		Asset:       "MOBI",
		Memo:        "MOBI Tipping bot",
		Reference:   "w1",
	}, got)

	res, err := gw.Send(ctx, txn)
	require.NoError(t, err)
	assert.Equal(t, "abc123", res.NetworkHash)
	assert.Equal(t, int64(77), res.Ledger)
}

func TestGatewayClient_CreateRejectsDestination(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"destination account does not exist"}`, http.StatusBadRequest)
	})

	_, err := gw.CreateTransaction(context.Background(), "GNOPE", decimal.NewFromInt(1), "w1")
	require.ErrorIs(t, err, domain.ErrInvalidDestination)
}

func TestGatewayClient_SendOutcome(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		wantUnknown bool
	}{
		{"definitive rejection", http.StatusBadRequest, false},
		{"conflict", http.StatusConflict, false},
		{"server error", http.StatusInternalServerError, true},
		{"gateway timeout", http.StatusGatewayTimeout, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := gw.Send(context.Background(), &ledger.Transaction{ID: "tx-1"})
			require.Error(t, err)
			assert.Equal(t, tt.wantUnknown, errors.Is(err, domain.ErrOutcomeUnknown))
		})
	}
}

func TestGatewayClient_SendTimeoutIsUnknown(t *testing.T) {
	release := make(chan struct{})
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := gw.Send(ctx, &ledger.Transaction{ID: "tx-1"})
	require.ErrorIs(t, err, domain.ErrOutcomeUnknown)
}
