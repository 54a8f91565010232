package main

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tipbot/ledger/internal/logging"
)

// Destinations starting with FAIL are rejected at build time; SLOW ones are
// accepted but their submission never answers.
const (
	failPrefix = "FAIL"
	slowPrefix = "SLOW"
)

type transaction struct {
	ID          string `json:"id"`
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
	Asset       string `json:"asset"`
	Memo        string `json:"memo"`
	Reference   string `json:"reference"`
	Envelope    string `json:"envelope"`
	Hash        string `json:"hash,omitempty"`
	Ledger      int64  `json:"ledger,omitempty"`
}

type gateway struct {
	mu     sync.Mutex
	txs    map[string]*transaction
	ledger atomic.Int64
}

func main() {
	logging.Init("mock-gateway", "info", os.Getenv("APP_ENV"))

	gw := &gateway{txs: make(map[string]*transaction)}
	gw.ledger.Store(1000)

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/transactions", gw.create)
	r.Post("/transactions/{id}/submit", gw.submit)

	addr := ":8081"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}

	slog.Info("mock gateway started", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func (g *gateway) create(w http.ResponseWriter, r *http.Request) {
	var tx transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if tx.Destination == "" || strings.HasPrefix(tx.Destination, failPrefix) {
		slog.Info("rejected destination", "destination", tx.Destination)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "destination account does not exist"})
		return
	}

	tx.ID = uuid.NewString()
	sum := sha256.Sum256([]byte(tx.ID + tx.Destination + tx.Amount + tx.Reference))
	tx.Envelope = hex.EncodeToString(sum[:])

	g.mu.Lock()
	g.txs[tx.ID] = &tx
	g.mu.Unlock()

	slog.Info("transaction built", "id", tx.ID, "destination", tx.Destination, "amount", tx.Amount)
	writeJSON(w, http.StatusCreated, map[string]string{"id": tx.ID, "envelope": tx.Envelope})
}

func (g *gateway) submit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	g.mu.Lock()
	tx, ok := g.txs[id]
	g.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown transaction"})
		return
	}

	if strings.HasPrefix(tx.Destination, slowPrefix) {
		slog.Info("holding submission", "id", id)
		<-r.Context().Done()
		return
	}

	g.mu.Lock()
	if tx.Hash == "" {
		sum := sha256.Sum256([]byte(tx.Envelope))
		tx.Hash = hex.EncodeToString(sum[:])
		tx.Ledger = g.ledger.Add(1)
	}
	resp := map[string]any{"hash": tx.Hash, "ledger": tx.Ledger}
	g.mu.Unlock()

	slog.Info("transaction submitted", "id", id, "hash", tx.Hash)
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
