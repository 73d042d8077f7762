package cronhandler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"zonafiscal/internal/domain/security"
	"zonafiscal/internal/platform/jobs"
	"zonafiscal/internal/transport/http/api"
	"zonafiscal/internal/transport/http/middleware"
)

type Handler struct {
	Jobs     *jobs.Service
	Secret   string
	Security *security.Service
}

func NewHandler(jobsSvc *jobs.Service, secret string, sec *security.Service) *Handler {
	return &Handler{Jobs: jobsSvc, Secret: secret, Security: sec}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.With(middleware.CronSecret(h.Secret, h.Security)).
		Get("/cron/lgpd-deadline-check", h.handleDeadlineCheck)
}

func (h *Handler) handleDeadlineCheck(w http.ResponseWriter, r *http.Request) {
	details, err := h.Jobs.RunDeadlineSweep(r.Context())
	if err != nil {
		slog.Error("deadline sweep failed", "requestId", middleware.GetRequestID(r.Context()), "err", err)
		api.Fail(w, http.StatusInternalServerError, api.MsgInternal)
		return
	}

	api.Success(w, map[string]any{
		"message":   "Verificação de prazos concluída",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"details":   details,
	})
}
