package adminhandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"zonafiscal/internal/domain/audit"
	"zonafiscal/internal/domain/auth"
	"zonafiscal/internal/domain/export"
	"zonafiscal/internal/domain/lifecycle"
	"zonafiscal/internal/domain/security"
	"zonafiscal/internal/notify"
	"zonafiscal/internal/platform/slack"
	"zonafiscal/internal/transport/http/api"
	"zonafiscal/internal/transport/http/middleware"
)

type Handler struct {
	Store     *lifecycle.Store
	Lifecycle *lifecycle.Service
	Export    *export.Service
	Audit     *audit.Service
	Security  *security.Service
	Resolver  middleware.PermissionResolver
	Notify    *notify.Dispatcher
}

func NewHandler(store *lifecycle.Store, lc *lifecycle.Service, exp *export.Service, auditSvc *audit.Service, sec *security.Service, resolver middleware.PermissionResolver, dispatcher *notify.Dispatcher) *Handler {
	return &Handler{
		Store:     store,
		Lifecycle: lc,
		Export:    exp,
		Audit:     auditSvc,
		Security:  sec,
		Resolver:  resolver,
		Notify:    dispatcher,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/admin/lgpd", func(r chi.Router) {
		r.With(middleware.RequirePermission(auth.PermLGPDViewUsers, h.Resolver, h.Security)).
			Get("/anonymized-users", h.handleAnonymizedUsers)
		r.With(middleware.RequirePermission(auth.PermLGPDViewLogs, h.Resolver, h.Security)).
			Get("/audit-logs", h.handleAuditLogs)
		r.With(middleware.RequirePermission(auth.PermLGPDExportData, h.Resolver, h.Security)).
			Get("/export-user-data", h.handleExportUserData)
		r.With(middleware.RequirePermission(auth.PermLGPDViewUsers, h.Resolver, h.Security)).
			Get("/reactivation-requests", h.handleReactivationRequests)
		r.With(middleware.RequirePermission(auth.PermLGPDRevertAnonymization, h.Resolver, h.Security)).
			Post("/revert-anonymization", h.handleRevertAnonymization)
		r.With(middleware.RequirePermission(auth.PermLGPDRevertAnonymization, h.Resolver, h.Security)).
			Post("/approve-reactivation", h.handleApproveReactivation)
	})
}

func (h *Handler) handleAnonymizedUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListAnonymizedUsers(r.Context())
	if err != nil {
		h.internal(w, r, "anonymized users list failed", err)
		return
	}
	if users == nil {
		users = []lifecycle.User{}
	}
	api.Success(w, map[string]any{"users": users, "total": len(users)})
}

func (h *Handler) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.GetUser(r.Context())
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		api.Fail(w, http.StatusBadRequest, "Parâmetro userId é obrigatório")
		return
	}

	logs, err := h.Audit.ListForUser(r.Context(), userID)
	if err != nil {
		h.internal(w, r, "audit logs list failed", err)
		return
	}
	if logs == nil {
		logs = []audit.Record{}
	}

	if err := h.Audit.Record(r.Context(), audit.Record{
		UserID:     userID,
		Action:     audit.ActionLogsViewed,
		DataType:   "audit_records",
		Purpose:    "Consulta da trilha de auditoria por administrador",
		LegalBasis: audit.BasisLegitimateInterest,
		AdminID:    admin.UserID,
	}); err != nil {
		slog.Warn("audit view append failed", "userId", userID, "err", err)
	}

	api.Success(w, map[string]any{"logs": logs, "total": len(logs), "userId": userID})
}

func (h *Handler) handleExportUserData(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.GetUser(r.Context())
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		api.Fail(w, http.StatusBadRequest, "Parâmetro userId é obrigatório")
		return
	}

	payload, err := h.Export.BuildUserData(r.Context(), userID)
	if err != nil {
		h.internal(w, r, "admin export build failed", err)
		return
	}

	if err := h.Audit.Record(r.Context(), audit.Record{
		UserID:     userID,
		Action:     audit.ActionDataExported,
		DataType:   "user_data_export",
		Purpose:    "Exportação de dados realizada por administrador",
		LegalBasis: audit.BasisLegalObligation,
		AdminID:    admin.UserID,
	}); err != nil {
		slog.Warn("admin export audit append failed", "userId", userID, "err", err)
	}

	if r.URL.Query().Get("format") == "pdf" {
		document, err := export.RenderPDF(userID, payload)
		if err != nil {
			h.internal(w, r, "export pdf render failed", err)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="dados-lgpd-%s.pdf"`, userID))
		if _, err := w.Write(document); err != nil {
			slog.Warn("export pdf write failed", "userId", userID, "err", err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="dados-lgpd-%s.json"`, userID))
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("export write failed", "userId", userID, "err", err)
	}
}

func (h *Handler) handleReactivationRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.Store.ListOpenRequests(r.Context())
	if err != nil {
		h.internal(w, r, "reactivation requests list failed", err)
		return
	}
	if requests == nil {
		requests = []lifecycle.ReactivationRequest{}
	}
	api.Success(w, map[string]any{"requests": requests, "total": len(requests)})
}

type revertRequest struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

func (h *Handler) handleRevertAnonymization(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.GetUser(r.Context())

	var payload revertRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || strings.TrimSpace(payload.UserID) == "" {
		api.Fail(w, http.StatusBadRequest, api.MsgInvalidRequest)
		return
	}
	// The user row's email is the anonymization placeholder, so the token
	// link can only go to an address the admin supplies here.
	payload.Email = strings.TrimSpace(strings.ToLower(payload.Email))
	if payload.Email != "" && !strings.Contains(payload.Email, "@") {
		api.Fail(w, http.StatusBadRequest, "E-mail inválido")
		return
	}

	req, err := h.Lifecycle.RequestRevert(r.Context(), admin.UserID, payload.UserID, payload.Email)
	if err != nil {
		h.failLifecycle(w, r, err)
		return
	}

	// Delivery is best-effort: the transition already committed.
	if req.NotifyEmail != "" {
		h.Notify.SendReactivationEmail(req.NotifyEmail, "", req.Token)
	}
	h.Notify.Alert(slack.Payload{
		Type:    "info",
		Title:   "Reativação de conta iniciada",
		Message: "Administrador abriu uma solicitação de reativação",
		Data: map[string]any{
			"userId":  req.UserID,
			"adminId": admin.UserID,
		},
	})

	api.Success(w, map[string]any{
		"message":               "Solicitação de reativação criada",
		"reactivationRequestId": req.Token,
	})
}

type approveRequest struct {
	Token    string `json:"token"`
	Approved *bool  `json:"approved"`
}

func (h *Handler) handleApproveReactivation(w http.ResponseWriter, r *http.Request) {
	admin, _ := middleware.GetUser(r.Context())

	var payload approveRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || strings.TrimSpace(payload.Token) == "" || payload.Approved == nil {
		api.Fail(w, http.StatusBadRequest, api.MsgInvalidRequest)
		return
	}

	if err := h.Lifecycle.Decide(r.Context(), admin.UserID, payload.Token, *payload.Approved); err != nil {
		h.failLifecycle(w, r, err)
		return
	}

	message := "Reativação rejeitada"
	alertType := "warning"
	if *payload.Approved {
		message = "Reativação aprovada"
		alertType = "success"
	}
	h.Notify.Alert(slack.Payload{
		Type:    alertType,
		Title:   "Decisão de reativação",
		Message: message,
		Data: map[string]any{
			"token":   payload.Token,
			"adminId": admin.UserID,
		},
	})

	api.Success(w, map[string]any{"message": message})
}

func (h *Handler) failLifecycle(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, lifecycle.ErrUserNotFound):
		api.Fail(w, http.StatusNotFound, "Usuário não encontrado")
	case errors.Is(err, lifecycle.ErrRequestNotFound):
		api.Fail(w, http.StatusNotFound, api.MsgNotFound)
	case errors.Is(err, lifecycle.ErrNotAnonymized):
		api.Fail(w, http.StatusBadRequest, "Usuário não está anonimizado")
	case errors.Is(err, lifecycle.ErrRevertInProgress):
		api.Fail(w, http.StatusBadRequest, "Já existe uma solicitação de reativação em andamento")
	case errors.Is(err, lifecycle.ErrTokenExpired):
		api.Fail(w, http.StatusBadRequest, api.MsgTokenExpired)
	case errors.Is(err, lifecycle.ErrAlreadyProcessed):
		api.Fail(w, http.StatusBadRequest, api.MsgAlreadyProcessed)
	case errors.Is(err, lifecycle.ErrEmailTaken):
		api.Fail(w, http.StatusBadRequest, "E-mail já está em uso por outra conta")
	default:
		h.internal(w, r, "lifecycle operation failed", err)
	}
}

func (h *Handler) internal(w http.ResponseWriter, r *http.Request, msg string, err error) {
	slog.Error(msg, "path", r.URL.Path, "requestId", middleware.GetRequestID(r.Context()), "err", err)
	api.Fail(w, http.StatusInternalServerError, api.MsgInternal)
}
