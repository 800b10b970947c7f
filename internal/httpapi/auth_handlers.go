package httpapi

import (
	"errors"
	"net/http"
	"os"
	"strings"
	"time"

	"cpeconnect.org/internal/auth"
	"cpeconnect.org/internal/grants"
)

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password,omitempty"`
}

type tokenResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      grants.User `json:"user"`
}

const tokenTTL = 15 * time.Minute

// issueToken exchanges a known account email for a signed JWT. When
// CPE_PORTAL_PASSWORD_HASH is set, the shared portal passphrase must be
// presented as well; identity federation proper lives outside this
// service.
func (a *API) issueToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" {
		writeError(w, r, http.StatusBadRequest, "email is required")
		return
	}

	if hash := strings.TrimSpace(os.Getenv("CPE_PORTAL_PASSWORD_HASH")); hash != "" {
		if err := auth.VerifyPassword(hash, req.Password); err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
	}

	u, err := a.store.GetUserByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, grants.ErrNotFound) {
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	token, err := auth.GenerateToken(&u, tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	expiresAt := time.Now().UTC().Add(tokenTTL)
	a.audit(r.Context(), "auth.token.issued", map[string]any{
		"email":      u.Email,
		"role":       string(u.Role),
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      u,
	})
}
