package authhandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"zonafiscal/internal/domain/auth"
	"zonafiscal/internal/domain/security"
	"zonafiscal/internal/transport/http/api"
	"zonafiscal/internal/transport/http/middleware"
	"zonafiscal/internal/transport/http/shared"
)

const sessionTTL = 8 * time.Hour

type Handler struct {
	DB       *pgxpool.Pool
	Secret   string
	Security *security.Service
}

func NewHandler(db *pgxpool.Pool, secret string, sec *security.Service) *Handler {
	return &Handler{DB: db, Secret: secret, Security: sec}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/logout", h.handleLogout)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload loginRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, api.MsgInvalidRequest)
		return
	}
	payload.Email = strings.TrimSpace(strings.ToLower(payload.Email))
	if payload.Email == "" || payload.Password == "" {
		api.Fail(w, http.StatusBadRequest, "E-mail e senha são obrigatórios")
		return
	}

	var (
		userID, name, passwordHash string
		anonymized                 bool
	)
	err := h.DB.QueryRow(r.Context(), `
    SELECT id, name, password_hash, anonymized
    FROM users
    WHERE email = $1
  `, payload.Email).Scan(&userID, &name, &passwordHash, &anonymized)
	if errors.Is(err, pgx.ErrNoRows) {
		h.recordFailure(r, "", "unknown email")
		api.Fail(w, http.StatusUnauthorized, "Credenciais inválidas")
		return
	}
	if err != nil {
		slog.Error("login lookup failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, api.MsgInternal)
		return
	}

	// Anonymized accounts have no password path back in; reactivation is
	// the only door.
	if anonymized {
		h.recordFailure(r, userID, "anonymized account")
		api.Fail(w, http.StatusUnauthorized, "Credenciais inválidas")
		return
	}

	if err := auth.CheckPassword(passwordHash, payload.Password); err != nil {
		h.recordFailure(r, userID, "wrong password")
		api.Fail(w, http.StatusUnauthorized, "Credenciais inválidas")
		return
	}

	token, err := auth.GenerateToken(h.Secret, auth.Claims{UserID: userID, Email: payload.Email}, sessionTTL)
	if err != nil {
		slog.Error("token generation failed", "err", err)
		api.Fail(w, http.StatusInternalServerError, api.MsgInternal)
		return
	}

	api.Success(w, map[string]any{
		"token": token,
		"user": map[string]any{
			"id":    userID,
			"email": payload.Email,
			"name":  name,
		},
	})
}

// Sessions are stateless JWTs; logout is an acknowledgment for clients that
// discard the token.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	api.Success(w, map[string]any{"message": "Sessão encerrada"})
}

func (h *Handler) recordFailure(r *http.Request, userID, detail string) {
	h.Security.Record(r.Context(), security.Event{
		UserID:    userID,
		EventType: security.EventTokenInvalid,
		Detail:    "login: " + detail,
		IP:        shared.ClientIP(r),
		RequestID: middleware.GetRequestID(r.Context()),
	})
}
