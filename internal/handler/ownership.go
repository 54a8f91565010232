package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tipbot/ledger/internal/auth"
	"github.com/tipbot/ledger/internal/domain"
)

// platformFromRequest returns the platform the caller's token is bound to.
func platformFromRequest(r *http.Request) (string, *AppError) {
	platform, ok := auth.PlatformFromContext(r.Context())
	if !ok || platform == "" {
		return "", ErrMissingToken
	}
	return platform, nil
}

// ownerFromPath resolves the {userID} path segment within the caller's
// platform.
func ownerFromPath(r *http.Request) (string, string, *AppError) {
	platform, appErr := platformFromRequest(r)
	if appErr != nil {
		return "", "", appErr
	}

	userID := domain.NormalizeUserID(chi.URLParam(r, "userID"))
	if userID == "" {
		return "", "", ErrResourceNotFound
	}
	return platform, userID, nil
}
