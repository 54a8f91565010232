package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type accountResponse struct {
	Success bool       `json:"success"`
	Data    accountDTO `json:"data"`
	Error   *APIError  `json:"error"`
}

func decodeAccount(t *testing.T, rr *httptest.ResponseRecorder) accountResponse {
	t.Helper()
	var resp accountResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestAccountHandler_Create(t *testing.T) {
	m := newMockLedger()
	h := NewAccountHandler(m)

	req := withPlatform(httptest.NewRequest(http.MethodPost, "/api/v1/accounts", strings.NewReader(`{"user_id":"  Alice "}`)), "reddit")
	rr := httptest.NewRecorder()
	h.Create(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	resp := decodeAccount(t, rr)
	assert.Equal(t, "reddit", resp.Data.Platform)
	assert.Equal(t, "alice", resp.Data.PlatformUserID)
	assert.Equal(t, "0.0000000", resp.Data.Balance)

	rr = httptest.NewRecorder()
	req = withPlatform(httptest.NewRequest(http.MethodPost, "/api/v1/accounts", strings.NewReader(`{"user_id":"alice"}`)), "reddit")
	h.Create(rr, req)
	again := decodeAccount(t, rr)
	assert.Equal(t, resp.Data.ID, again.Data.ID)
}

func TestAccountHandler_Create_WithMemoID(t *testing.T) {
	m := newMockLedger()
	h := NewAccountHandler(m)

	req := withPlatform(httptest.NewRequest(http.MethodPost, "/api/v1/accounts", strings.NewReader(`{"user_id":"alice","memo_id":" Legacy-Memo "}`)), "reddit")
	rr := httptest.NewRecorder()
	h.Create(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	resp := decodeAccount(t, rr)
	assert.Equal(t, "legacy-memo", resp.Data.MemoID)

	rr = httptest.NewRecorder()
	req = withPlatform(httptest.NewRequest(http.MethodPost, "/api/v1/accounts", strings.NewReader(`{"user_id":"alice","memo_id":"other"}`)), "reddit")
	h.Create(rr, req)
	again := decodeAccount(t, rr)
	assert.Equal(t, "legacy-memo", again.Data.MemoID)
}

func TestAccountHandler_Create_Validation(t *testing.T) {
	h := NewAccountHandler(newMockLedger())

	req := withPlatform(httptest.NewRequest(http.MethodPost, "/api/v1/accounts", strings.NewReader(`{}`)), "reddit")
	rr := httptest.NewRecorder()
	h.Create(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_FAILED", resp.Error.Code)
	details, ok := resp.Error.Details.([]any)
	require.True(t, ok)
	require.Len(t, details, 1)
	assert.Equal(t, "user_id", details[0].(map[string]any)["field"])
}

func TestAccountHandler_Get(t *testing.T) {
	m := newMockLedger()
	m.seed("reddit", "alice", "3.5")
	h := NewAccountHandler(m)

	tests := []struct {
		name       string
		platform   string
		userID     string
		wantStatus int
	}{
		{"own platform", "reddit", "alice", http.StatusOK},
		{"case insensitive", "reddit", "ALICE", http.StatusOK},
		{"other platform", "twitter", "alice", http.StatusNotFound},
		{"unknown user", "reddit", "bob", http.StatusNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts/"+tc.userID, nil)
			req = withPlatform(withURLParams(req, "userID", tc.userID), tc.platform)
			rr := httptest.NewRecorder()
			h.Get(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			if tc.wantStatus == http.StatusOK {
				assert.Equal(t, "3.5000000", decodeAccount(t, rr).Data.Balance)
			}
		})
	}
}

func TestAccountHandler_RefreshMemo(t *testing.T) {
	m := newMockLedger()
	m.seed("reddit", "alice", "0")
	h := NewAccountHandler(m)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/accounts/alice/memo", nil)
	req = withPlatform(withURLParams(req, "userID", "alice"), "reddit")
	rr := httptest.NewRecorder()
	h.RefreshMemo(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "abcd-ef01-2345-6789-abcd", resp.Data["memo_id"])
}

func TestAccountHandler_History(t *testing.T) {
	m := newMockLedger()
	m.seed("reddit", "alice", "5")
	h := NewAccountHandler(m)

	t.Run("lists actions", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts/alice/actions?limit=5", nil)
		req = withPlatform(withURLParams(req, "userID", "alice"), "reddit")
		rr := httptest.NewRecorder()
		h.History(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var resp struct {
			Data struct {
				Actions []actionDTO `json:"actions"`
				Total   int         `json:"total"`
				Limit   int         `json:"limit"`
			} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Len(t, resp.Data.Actions, 1)
		assert.Equal(t, 1, resp.Data.Total)
		assert.Equal(t, 5, resp.Data.Limit)
		assert.Equal(t, "5.0000000", resp.Data.Actions[0].Amount)
	})

	t.Run("rejects a negative offset", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/accounts/alice/actions?offset=-1", nil)
		req = withPlatform(withURLParams(req, "userID", "alice"), "reddit")
		rr := httptest.NewRecorder()
		h.History(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestAccountHandler_GetByMemo(t *testing.T) {
	m := newMockLedger()
	alice := m.seed("reddit", "alice", "0")
	h := NewAccountHandler(m)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/memos/reddit%2Falice", nil)
	req = withPlatform(withURLParams(req, "memoID", "REDDIT%2FAlice"), "reddit")
	rr := httptest.NewRecorder()
	h.GetByMemo(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, alice.ID, decodeAccount(t, rr).Data.ID)
}
