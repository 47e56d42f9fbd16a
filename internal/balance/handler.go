package balance

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tillbook/tillbook/internal/accounts"
	"github.com/tillbook/tillbook/internal/platform/httpx"
	"github.com/tillbook/tillbook/internal/shared"
)

// Handler exposes balance reads.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/balances/{code}", h.get)
}

type balanceResponse struct {
	AccountCode string `json:"account_code"`
	DebitTotal  string `json:"debit_total"`
	CreditTotal string `json:"credit_total"`
	Balance     string `json:"balance"`
	AsOf        string `json:"as_of,omitempty"`
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	q := Query{}
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "as_of must be YYYY-MM-DD")
			return
		}
		q.AsOf = &t
	}
	// Tag filters arrive as tag.<name>=<value> query params.
	for key, values := range r.URL.Query() {
		name, ok := strings.CutPrefix(key, "tag.")
		if !ok || len(values) == 0 {
			continue
		}
		if q.Tags == nil {
			q.Tags = map[string]string{}
		}
		q.Tags[name] = values[0]
	}
	bal, err := h.service.GetAccountBalance(r.Context(), shared.TenantFromContext(r.Context()), code, q)
	if err != nil {
		switch {
		case errors.Is(err, accounts.ErrAccountNotFound):
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
		case errors.Is(err, ErrTagFilterOnParent):
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		default:
			h.logger.Error("balance read failed", slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return
	}
	resp := balanceResponse{
		AccountCode: bal.AccountCode,
		DebitTotal:  shared.FormatAmount(bal.DebitTotal),
		CreditTotal: shared.FormatAmount(bal.CreditTotal),
		Balance:     shared.FormatAmount(bal.Balance),
	}
	if q.AsOf != nil {
		resp.AsOf = q.AsOf.Format("2006-01-02")
	}
	httpx.JSON(w, http.StatusOK, resp)
}
