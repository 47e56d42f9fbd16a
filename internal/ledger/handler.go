package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tillbook/tillbook/internal/platform/httpx"
	"github.com/tillbook/tillbook/internal/shared"
)

// Handler wires JSON endpoints for journal posting and queries.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/journal", func(r chi.Router) {
		r.Post("/entries", h.post)
		r.Get("/entries", h.list)
		r.Get("/entries/{id}", h.get)
		r.Post("/entries/{id}/reverse", h.reverse)
	})
}

type lineRequest struct {
	AccountCode string            `json:"account_code" validate:"required"`
	Debit       string            `json:"debit"`
	Credit      string            `json:"credit"`
	Tags        map[string]string `json:"tags"`
}

type postRequest struct {
	SourceType string        `json:"source_type" validate:"required"`
	SourceID   string        `json:"source_id" validate:"required"`
	EntryDate  string        `json:"entry_date" validate:"required,datetime=2006-01-02"`
	Memo       string        `json:"memo"`
	Lines      []lineRequest `json:"lines" validate:"required,min=2,dive"`
}

type entryResponse struct {
	ID         uuid.UUID      `json:"id"`
	EntryDate  string         `json:"entry_date"`
	PostedAt   time.Time      `json:"posted_at"`
	SourceType string         `json:"source_type"`
	SourceID   string         `json:"source_id"`
	ReversalOf *uuid.UUID     `json:"reversal_of,omitempty"`
	Memo       string         `json:"memo,omitempty"`
	Lines      []lineResponse `json:"lines"`
}

type lineResponse struct {
	AccountCode string            `json:"account_code"`
	Debit       string            `json:"debit"`
	Credit      string            `json:"credit"`
	Tags        map[string]string `json:"tags,omitempty"`
}

func toEntryResponse(e JournalEntry) entryResponse {
	out := entryResponse{
		ID:         e.ID,
		EntryDate:  e.EntryDate.Format("2006-01-02"),
		PostedAt:   e.PostedAt,
		SourceType: e.SourceType,
		SourceID:   e.SourceID,
		ReversalOf: e.ReversalOf,
		Memo:       e.Memo,
	}
	for _, line := range e.Lines {
		out.Lines = append(out.Lines, lineResponse{
			AccountCode: line.AccountCode,
			Debit:       shared.FormatAmount(line.Debit),
			Credit:      shared.FormatAmount(line.Credit),
			Tags:        line.Tags,
		})
	}
	return out
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entryDate, err := time.Parse("2006-01-02", req.EntryDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "entry_date must be YYYY-MM-DD")
		return
	}
	input := PostingInput{
		TenantID:   shared.TenantFromContext(r.Context()),
		SourceType: req.SourceType,
		SourceID:   req.SourceID,
		EntryDate:  entryDate,
		Memo:       req.Memo,
	}
	for _, line := range req.Lines {
		parsed, err := parseLine(line)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		input.Lines = append(input.Lines, parsed)
	}
	entry, err := h.service.Post(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

func parseLine(line lineRequest) (LineInput, error) {
	out := LineInput{AccountCode: line.AccountCode, Tags: line.Tags}
	var err error
	if line.Debit != "" {
		if out.Debit, err = shared.ParseAmount(line.Debit); err != nil {
			return LineInput{}, err
		}
	}
	if line.Credit != "" {
		if out.Credit, err = shared.ParseAmount(line.Credit); err != nil {
			return LineInput{}, err
		}
	}
	return out, nil
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	entry, err := h.service.GetEntry(r.Context(), shared.TenantFromContext(r.Context()), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	from, err := parseDateParam(r, "from", time.Now().AddDate(0, -1, 0))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	to, err := parseDateParam(r, "to", time.Now())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	entries, err := h.service.ListEntries(r.Context(), shared.TenantFromContext(r.Context()), from, to, 100)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid entry id")
		return
	}
	var req struct {
		Memo string `json:"memo"`
	}
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
			return
		}
	}
	entry, err := h.service.Reverse(r.Context(), ReverseInput{
		TenantID: shared.TenantFromContext(r.Context()),
		EntryID:  id,
		Memo:     req.Memo,
		ActorID:  shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEntryNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrPeriodLocked):
		httpx.Problem(w, http.StatusConflict, "Period Locked", err.Error())
	case errors.Is(err, ErrUnbalanced),
		errors.Is(err, ErrMissingAccounts),
		errors.Is(err, ErrParentAccount),
		errors.Is(err, ErrTooFewLines):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("journal request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func parseDateParam(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, errors.New(name + " must be YYYY-MM-DD")
	}
	return t, nil
}
