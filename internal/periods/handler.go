package periods

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tillbook/tillbook/internal/platform/httpx"
	"github.com/tillbook/tillbook/internal/shared"
)

// Handler wires period close endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/periods", func(r chi.Router) {
		r.Get("/status", h.status)
		r.Post("/close", h.close)
	})
}

type closeRequest struct {
	PeriodEndDate string `json:"period_end_date"`
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	endDate, err := time.Parse("2006-01-02", req.PeriodEndDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "period_end_date must be YYYY-MM-DD")
		return
	}
	period, err := h.service.ClosePeriod(r.Context(), CloseInput{
		TenantID:      shared.TenantFromContext(r.Context()),
		PeriodEndDate: endDate,
		ActorID:       shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, period)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.CurrentStatus(r.Context(), shared.TenantFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, status)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrFuturePeriod), errors.Is(err, ErrBeforeLastClose):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrMissingReconciliations):
		httpx.Problem(w, http.StatusConflict, "Close Blocked", err.Error())
	default:
		h.logger.Error("period request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
