package lgpdhandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"zonafiscal/internal/domain/audit"
	"zonafiscal/internal/domain/consent"
	"zonafiscal/internal/domain/export"
	"zonafiscal/internal/domain/lifecycle"
	"zonafiscal/internal/domain/security"
	"zonafiscal/internal/transport/http/api"
	"zonafiscal/internal/transport/http/middleware"
	"zonafiscal/internal/transport/http/shared"
)

type Handler struct {
	Consent   *consent.Store
	Lifecycle *lifecycle.Service
	Export    *export.Service
	Audit     *audit.Service
	Security  *security.Service
}

func NewHandler(consentStore *consent.Store, lc *lifecycle.Service, exp *export.Service, auditSvc *audit.Service, sec *security.Service) *Handler {
	return &Handler{Consent: consentStore, Lifecycle: lc, Export: exp, Audit: auditSvc, Security: sec}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/lgpd", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(h.Security))
			r.Get("/consent", h.handleGetConsent)
			r.Post("/consent", h.handleUpdateConsent)
			r.Post("/delete-account", h.handleDeleteAccount)
			r.Get("/export-data", h.handleExportData)
		})

		// Reactivation endpoints are reached by anonymized users who no
		// longer hold a session; the token is the credential.
		r.Post("/submit-reactivation", h.handleSubmitReactivation)
		r.Get("/validate-reactivation-token", h.handleValidateToken)
	})
}

func (h *Handler) handleGetConsent(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())

	rec, err := h.Consent.Get(r.Context(), user.UserID)
	if errors.Is(err, consent.ErrNotFound) {
		api.Success(w, map[string]any{
			"consents":       consent.Categories{Essential: true},
			"lastUpdated":    nil,
			"consentVersion": consent.CurrentVersion,
			"hasConsented":   false,
		})
		return
	}
	if err != nil {
		internal(w, r, "consent read failed", err)
		return
	}

	api.Success(w, map[string]any{
		"consents":       rec.Consents,
		"lastUpdated":    rec.LastUpdated,
		"consentVersion": rec.Version,
		"hasConsented":   true,
	})
}

func (h *Handler) handleUpdateConsent(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())

	var payload consent.Categories
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, api.MsgInvalidRequest)
		return
	}

	if err := h.Consent.Save(r.Context(), user.UserID, payload); err != nil {
		internal(w, r, "consent save failed", err)
		return
	}

	if err := h.Audit.Record(r.Context(), audit.Record{
		UserID:     user.UserID,
		Action:     audit.ActionConsentUpdated,
		DataType:   "consent_record",
		Purpose:    "Atualização de preferências de consentimento",
		LegalBasis: audit.BasisConsent,
	}); err != nil {
		slog.Warn("consent audit append failed", "userId", user.UserID, "err", err)
	}

	api.Success(w, map[string]any{"message": "Preferências de consentimento atualizadas"})
}

type deleteAccountRequest struct {
	PasswordVerified bool   `json:"passwordVerified"`
	DeleteType       string `json:"deleteType"`
	Reason           string `json:"reason"`
}

func (h *Handler) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())

	var payload deleteAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, api.MsgInvalidRequest)
		return
	}

	if !payload.PasswordVerified {
		h.Security.Record(r.Context(), security.Event{
			UserID:    user.UserID,
			EventType: security.EventInvalidDeletion,
			Detail:    "password not verified",
			IP:        shared.ClientIP(r),
			RequestID: middleware.GetRequestID(r.Context()),
		})
		api.Fail(w, http.StatusBadRequest, api.MsgPasswordUnverified)
		return
	}

	switch payload.DeleteType {
	case "anonymize":
		if err := h.Lifecycle.Anonymize(r.Context(), user.UserID, payload.Reason); err != nil {
			h.failLifecycle(w, r, err)
			return
		}
		api.Success(w, map[string]any{
			"message": "Conta anonimizada com sucesso",
			"type":    "anonymize",
		})
	case "permanent":
		if err := h.Lifecycle.DeletePermanently(r.Context(), user.UserID, payload.Reason); err != nil {
			h.failLifecycle(w, r, err)
			return
		}
		api.Success(w, map[string]any{
			"message": "Conta excluída permanentemente",
			"type":    "permanent",
		})
	default:
		h.Security.Record(r.Context(), security.Event{
			UserID:    user.UserID,
			EventType: security.EventInvalidDeletion,
			Detail:    "unknown deleteType " + payload.DeleteType,
			IP:        shared.ClientIP(r),
			RequestID: middleware.GetRequestID(r.Context()),
		})
		api.Fail(w, http.StatusBadRequest, api.MsgInvalidRequest)
	}
}

func (h *Handler) handleExportData(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())

	payload, err := h.Export.BuildUserData(r.Context(), user.UserID)
	if err != nil {
		internal(w, r, "export build failed", err)
		return
	}

	if err := h.Audit.Record(r.Context(), audit.Record{
		UserID:     user.UserID,
		Action:     audit.ActionDataExported,
		DataType:   "user_data_export",
		Purpose:    "Portabilidade de dados solicitada pelo titular",
		LegalBasis: audit.BasisConsent,
	}); err != nil {
		slog.Warn("export audit append failed", "userId", user.UserID, "err", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="dados-lgpd-%s.json"`, user.UserID))
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("export write failed", "userId", user.UserID, "err", err)
	}
}

type submitReactivationRequest struct {
	Token string `json:"token"`
	Name  string `json:"name"`
	Email string `json:"email"`
	CPF   string `json:"cpf"`
	Phone string `json:"phone"`
}

func (h *Handler) handleSubmitReactivation(w http.ResponseWriter, r *http.Request) {
	var payload submitReactivationRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, api.MsgInvalidRequest)
		return
	}

	payload.Token = strings.TrimSpace(payload.Token)
	payload.Name = strings.TrimSpace(payload.Name)
	payload.Email = strings.TrimSpace(strings.ToLower(payload.Email))
	payload.CPF = strings.TrimSpace(payload.CPF)
	payload.Phone = strings.TrimSpace(payload.Phone)

	switch {
	case payload.Token == "":
		api.Fail(w, http.StatusBadRequest, "Token é obrigatório")
		return
	case payload.Name == "":
		api.Fail(w, http.StatusBadRequest, "Nome é obrigatório")
		return
	case payload.Email == "" || !strings.Contains(payload.Email, "@"):
		api.Fail(w, http.StatusBadRequest, "E-mail inválido")
		return
	case !shared.ValidCPF(payload.CPF):
		api.Fail(w, http.StatusBadRequest, "CPF inválido")
		return
	}

	err := h.Lifecycle.SubmitReactivation(r.Context(), payload.Token, lifecycle.SubmittedData{
		Name:  payload.Name,
		Email: payload.Email,
		CPF:   payload.CPF,
		Phone: payload.Phone,
	})
	if err != nil {
		h.failLifecycle(w, r, err)
		return
	}

	api.Success(w, map[string]any{"message": "Dados enviados para aprovação"})
}

func (h *Handler) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		api.Fail(w, http.StatusBadRequest, "Token é obrigatório")
		return
	}

	userID, err := h.Lifecycle.ValidateToken(r.Context(), token)
	if err != nil {
		h.failLifecycle(w, r, err)
		return
	}

	api.Success(w, map[string]any{"valid": true, "userId": userID})
}

// failLifecycle maps domain errors onto the wire taxonomy. Anything
// unrecognized is an internal error with the cause kept server-side.
func (h *Handler) failLifecycle(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrUserNotFound):
		api.Fail(w, http.StatusNotFound, "Usuário não encontrado")
	case errors.Is(err, lifecycle.ErrRequestNotFound):
		api.Fail(w, http.StatusNotFound, api.MsgNotFound)
	case errors.Is(err, lifecycle.ErrTokenExpired):
		api.Fail(w, http.StatusBadRequest, api.MsgTokenExpired)
	case errors.Is(err, lifecycle.ErrAlreadyProcessed):
		api.Fail(w, http.StatusBadRequest, api.MsgAlreadyProcessed)
	case errors.Is(err, lifecycle.ErrAlreadyAnonymized):
		api.Fail(w, http.StatusBadRequest, "Conta já anonimizada")
	case errors.Is(err, lifecycle.ErrNotAnonymized):
		api.Fail(w, http.StatusBadRequest, "Usuário não está anonimizado")
	case errors.Is(err, lifecycle.ErrRevertInProgress):
		api.Fail(w, http.StatusBadRequest, "Já existe uma solicitação de reativação em andamento")
	default:
		internal(w, r, "lifecycle operation failed", err)
	}
}

func internal(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slog.Error(msg, "path", r.URL.Path, "requestId", middleware.GetRequestID(r.Context()), "err", err)
	api.Fail(w, http.StatusInternalServerError, api.MsgInternal)
}
