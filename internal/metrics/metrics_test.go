package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tipbot/ledger/internal/domain"
)

func TestLedger_ObserveOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedger(reg)

	m.ObserveOperation("transfer", domain.KindNone, 10*time.Millisecond)
	m.ObserveOperation("transfer", domain.KindNone, 10*time.Millisecond)
	m.ObserveOperation("transfer", domain.KindDuplicateOperation, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("transfer", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("transfer", "duplicate_operation")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestLedger_GaugesAndVolume(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedger(reg)

	m.SetUnresolvedWithdrawals(3)
	m.AddVolume("deposit", decimal.RequireFromString("2.5"))
	m.AddVolume("deposit", decimal.RequireFromString("0.5"))
	m.IncEscalations()
	m.ObservePublish(domain.EventTypeTransfer, nil)
	m.ObservePublish(domain.EventTypeTransfer, errors.New("broker down"))

	assert.Equal(t, 3.0, testutil.ToFloat64(m.unresolved))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.volume.WithLabelValues("deposit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.escalations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.published.WithLabelValues("TRANSFER", "error")))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedger(reg)
	m.SetUnresolvedWithdrawals(1)

	rr := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "ledger_unresolved_withdrawals 1"))
}
