package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		dbErr      error
		redis      pinger
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "database only",
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"database": "ok"},
		},
		{
			name:       "database and redis",
			redis:      PingFunc(func(context.Context) error { return nil }),
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"database": "ok", "redis": "ok"},
		},
		{
			name:       "redis down",
			redis:      PingFunc(func(context.Context) error { return errors.New("dial tcp: refused") }),
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"database": "ok", "redis": "down"},
		},
		{
			name:       "database down",
			dbErr:      errors.New("connection refused"),
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"database": "down"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
			require.NoError(t, err)
			defer db.Close()
			mock.ExpectPing().WillReturnError(tc.dbErr)

			h := NewHealthHandler(db, tc.redis)
			rr := httptest.NewRecorder()
			h.Readiness(rr, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tc.wantStatus, rr.Code)
			var body struct {
				Status string            `json:"status"`
				Checks map[string]string `json:"checks"`
			}
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.Equal(t, tc.wantChecks, body.Checks)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
