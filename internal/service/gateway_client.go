package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tipbot/ledger/internal/domain"
	"github.com/tipbot/ledger/internal/logging"
	"github.com/tipbot/ledger/internal/service/ledger"
)

// GatewayClient talks to the payment-network relay that builds and submits
// transactions from the hot wallet.
type GatewayClient struct {
	baseURL    string
	address    string
	asset      string
	memo       string
	httpClient *http.Client
}

func NewGatewayClient(baseURL, address, asset, memo string, timeout time.Duration) *GatewayClient {
	return &GatewayClient{
		baseURL: baseURL,
		address: address,
		asset:   asset,
		memo:    memo,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *GatewayClient) Address() string { return c.address }
func (c *GatewayClient) Asset() string   { return c.asset }

type createTransactionPayload struct {
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
	Asset       string `json:"asset"`
	Memo        string `json:"memo"`
	Reference   string `json:"reference"`
}

type createTransactionResponse struct {
	ID       string `json:"id"`
	Envelope string `json:"envelope"`
}

type submitResponse struct {
	Hash   string `json:"hash"`
	Ledger int64  `json:"ledger"`
}

func (c *GatewayClient) CreateTransaction(ctx context.Context, destination string, amount decimal.Decimal, hash string) (*ledger.Transaction, error) {
	body, err := json.Marshal(createTransactionPayload{
		Destination: destination,
		Amount:      domain.FormatAmount(amount),
		Asset:       c.asset,
		Memo:        c.memo,
		Reference:   hash,
	})
	if err != nil {
		return nil, fmt.Errorf("CreateTransaction: marshal: %w", err)
	}

	resp, err := c.post(ctx, "/transactions", body)
	if err != nil {
		return nil, fmt.Errorf("CreateTransaction: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusCreated:
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("CreateTransaction: %w: %s", domain.ErrInvalidDestination, readSnippet(resp.Body))
	default:
		return nil, fmt.Errorf("CreateTransaction: unexpected status %d: %s", resp.StatusCode, readSnippet(resp.Body))
	}

	var created createTransactionResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("CreateTransaction: decode: %w", err)
	}

	return &ledger.Transaction{
		ID:          created.ID,
		Destination: destination,
		Amount:      amount,
		Hash:        hash,
		Envelope:    created.Envelope,
	}, nil
}

// Send submits a built transaction. Anything other than a definitive 4xx
// answer is reported as domain.ErrOutcomeUnknown.
func (c *GatewayClient) Send(ctx context.Context, txn *ledger.Transaction) (*ledger.SettlementResult, error) {
	resp, err := c.post(ctx, "/transactions/"+txn.ID+"/submit", nil)
	if err != nil {
		return nil, fmt.Errorf("Send: %w: %w", domain.ErrOutcomeUnknown, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, fmt.Errorf("Send: rejected with status %d: %s", resp.StatusCode, readSnippet(resp.Body))
	default:
		return nil, fmt.Errorf("Send: %w: status %d: %s", domain.ErrOutcomeUnknown, resp.StatusCode, readSnippet(resp.Body))
	}

	var submitted submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitted); err != nil {
		return nil, fmt.Errorf("Send: %w: decode: %w", domain.ErrOutcomeUnknown, err)
	}

	return &ledger.SettlementResult{
		NetworkHash: submitted.Hash,
		Ledger:      submitted.Ledger,
	}, nil
}

func (c *GatewayClient) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	log := logging.FromContext(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}

	log.Info("gateway response received",
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return string(b)
}
