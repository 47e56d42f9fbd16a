package cashier

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tillbook/tillbook/internal/platform/httpx"
	"github.com/tillbook/tillbook/internal/shared"
)

// Handler wires the cashier session endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/cashier/sessions", func(r chi.Router) {
		r.Post("/", h.start)
		r.Get("/current", h.current)
		r.Get("/{id}", h.summary)
		r.Post("/{id}/close", h.close)
		r.Post("/{id}/counts", h.count)
	})
	r.Post("/cashier/counts/{id}/review", h.review)
}

type startRequest struct {
	OpeningBalances map[string]string `json:"opening_balances" validate:"required,min=1"`
}

type closeRequest struct {
	ClosingBalances map[string]string `json:"closing_balances" validate:"required,min=1"`
}

type countRequest struct {
	Type         string `json:"type" validate:"required,oneof=opening interim closing"`
	DeclaredCash string `json:"declared_cash" validate:"required"`
	Reason       string `json:"reason"`
}

type sessionResponse struct {
	ID        uuid.UUID  `json:"id"`
	Status    string     `json:"status"`
	CashierID int64      `json:"cashier_id"`
	OpenedAt  time.Time  `json:"opened_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

func toSessionResponse(s Session) sessionResponse {
	return sessionResponse{
		ID:        s.ID,
		Status:    string(s.Status),
		CashierID: s.CashierID,
		OpenedAt:  s.OpenedAt,
		ClosedAt:  s.ClosedAt,
	}
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	balances, err := parseBalances(req.OpeningBalances)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	session, err := h.service.StartSession(r.Context(), StartInput{
		TenantID:        shared.TenantFromContext(r.Context()),
		CashierID:       shared.ActorFromContext(r.Context()),
		OpeningBalances: balances,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toSessionResponse(session))
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) {
	session, err := h.service.GetCurrentSession(r.Context(), shared.TenantFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSessionResponse(session))
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid session id")
		return
	}
	out, err := h.service.GetSessionSummary(r.Context(), shared.TenantFromContext(r.Context()), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid session id")
		return
	}
	var req closeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	balances, err := parseBalances(req.ClosingBalances)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	out, err := h.service.CloseSession(r.Context(), CloseInput{
		TenantID:        shared.TenantFromContext(r.Context()),
		SessionID:       id,
		ClosedBy:        shared.ActorFromContext(r.Context()),
		ClosingBalances: balances,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) count(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid session id")
		return
	}
	var req countRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	declared, err := shared.ParseAmount(req.DeclaredCash)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	receipt, err := h.service.RecordCashCount(r.Context(), CountInput{
		TenantID:     shared.TenantFromContext(r.Context()),
		SessionID:    id,
		Type:         CountType(req.Type),
		DeclaredCash: declared,
		Reason:       req.Reason,
		CountedBy:    shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, receipt)
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid count id")
		return
	}
	count, err := h.service.ReviewCashCount(r.Context(), shared.TenantFromContext(r.Context()), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, count)
}

func parseBalances(raw map[string]string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(raw))
	for code, amount := range raw {
		parsed, err := shared.ParseAmount(amount)
		if err != nil {
			return nil, errors.New("cashier: invalid amount for account " + code)
		}
		out[code] = parsed
	}
	return out, nil
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrNoOpenSession), errors.Is(err, ErrCountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrSessionAlreadyOpen), errors.Is(err, ErrSessionClosed):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrMissingDeclared), errors.Is(err, ErrUnknownDeclared):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("cashier request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
