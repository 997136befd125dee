// Package handler exposes the auth core over HTTP with chi.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	authdomain "school-backoffice/backend/internal/auth/domain"
	"school-backoffice/backend/internal/auth/service"
	"school-backoffice/backend/internal/security"
	"school-backoffice/backend/internal/server/interceptors"
)

const maxBodyBytes = 1 << 16

// Service is the part of *service.AuthService the HTTP API needs.
type Service interface {
	Login(ctx context.Context, identifier, secret string, meta service.ClientMeta) (*service.IssuedPair, error)
	Refresh(ctx context.Context, refreshToken string, meta service.ClientMeta) (*service.IssuedPair, error)
	Logout(ctx context.Context, accessToken string, meta service.ClientMeta) error
	ChangePassword(ctx context.Context, accountID, currentSecret, newSecret, exceptSessionID string, meta service.ClientMeta) error
	Authenticate(ctx context.Context, accessToken string) (*security.AccessClaims, error)
}

// AuthHandler serves the /v1/auth endpoints.
type AuthHandler struct {
	svc Service
}

// NewAuthHandler returns an AuthHandler over svc.
func NewAuthHandler(svc Service) *AuthHandler {
	return &AuthHandler{svc: svc}
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	// KeepCurrentSession spares the session making the request. Every other session is revoked either way.
	KeepCurrentSession bool `json:"keep_current_session"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

type sessionResponse struct {
	AccountID string    `json:"account_id"`
	TenantID  string    `json:"tenant_id"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Login handles POST /v1/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Identifier) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "identifier and password are required")
		return
	}
	pair, err := h.svc.Login(r.Context(), req.Identifier, req.Password, clientMeta(r))
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

// Refresh handles POST /v1/auth/refresh.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}
	if req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}
	pair, err := h.svc.Refresh(r.Context(), req.RefreshToken, clientMeta(r))
	if err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

// Logout handles POST /v1/auth/logout. It is not behind RequireSession so that logging out an
// already revoked session still succeeds.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := interceptors.ParseBearer(r.Header.Get("Authorization"))
	if token == "" {
		writeAuthError(w, authdomain.ErrInvalidToken)
		return
	}
	if err := h.svc.Logout(r.Context(), token, clientMeta(r)); err != nil {
		writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChangePassword handles POST /v1/auth/password. Requires RequireSession.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decode(w, r, &req) {
		return
	}
	accountID, _ := interceptors.GetAccountID(r.Context())
	except := ""
	if req.KeepCurrentSession {
		except, _ = interceptors.GetSessionID(r.Context())
	}
	if err := h.svc.ChangePassword(r.Context(), accountID, req.CurrentPassword, req.NewPassword, except, clientMeta(r)); err != nil {
		writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Session handles GET /v1/auth/session. Requires RequireSession; reaching it means the session is valid.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	claims, _ := r.Context().Value(claimsKey{}).(*security.AccessClaims)
	if claims == nil {
		writeAuthError(w, authdomain.ErrInvalidToken)
		return
	}
	resp := sessionResponse{AccountID: claims.Subject, TenantID: claims.TenantID, SessionID: claims.SessionID}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.UTC()
	}
	writeJSON(w, http.StatusOK, resp)
}

type claimsKey struct{}

// RequireSession rejects requests without a valid bearer token or whose session was revoked, and puts the
// caller's identity in the request context.
func RequireSession(auth interceptors.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := interceptors.ParseBearer(r.Header.Get("Authorization"))
			if token == "" {
				writeAuthError(w, authdomain.ErrInvalidToken)
				return
			}
			claims, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				writeAuthError(w, err)
				return
			}
			ctx := interceptors.WithIdentity(r.Context(), claims)
			ctx = context.WithValue(ctx, claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func toTokenResponse(p *service.IssuedPair) tokenResponse {
	return tokenResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresIn:    int64(p.ExpiresIn / time.Second),
		TokenType:    "Bearer",
	}
}

// clientMeta reads the client address after chi's RealIP middleware has applied X-Forwarded-For.
func clientMeta(r *http.Request) service.ClientMeta {
	return service.ClientMeta{IP: ClientIP(r), UserAgent: r.UserAgent()}
}

// ClientIP returns the host part of r.RemoteAddr, or the first X-Forwarded-For entry when RemoteAddr is empty.
func ClientIP(r *http.Request) string {
	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}
	if s := interceptors.FirstForwarded(r.Header.Get("X-Forwarded-For")); s != "" {
		return s
	}
	return "unknown"
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return false
	}
	return true
}

// writeAuthError maps an auth error kind to its HTTP status. Causes are logged, never returned.
func writeAuthError(w http.ResponseWriter, err error) {
	kind := authdomain.KindOf(err)
	switch kind {
	case authdomain.KindInvalidCredentials:
		writeError(w, http.StatusUnauthorized, string(kind), "invalid credentials")
	case authdomain.KindRateLimited:
		secs := int64(math.Ceil(authdomain.RetryAfterOf(err).Seconds()))
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
		writeError(w, http.StatusTooManyRequests, string(kind), "too many failed attempts")
	case authdomain.KindInvalidToken:
		writeError(w, http.StatusUnauthorized, string(kind), "invalid or expired token")
	case authdomain.KindReplayDetected:
		writeError(w, http.StatusUnauthorized, string(kind), "refresh token reuse detected; all sessions were signed out")
	case authdomain.KindSessionRevoked:
		writeError(w, http.StatusUnauthorized, string(kind), "session has been revoked")
	case authdomain.KindWeakPassword:
		msg := "password does not meet the strength policy"
		var e *authdomain.Error
		if errors.As(err, &e) && e.Err != nil {
			msg = e.Err.Error()
		}
		writeError(w, http.StatusUnprocessableEntity, string(kind), msg)
	default:
		log.Printf("auth http: %v", err)
		writeError(w, http.StatusServiceUnavailable, string(authdomain.KindUnavailable), "service temporarily unavailable")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("auth http: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: code, Message: msg})
}
