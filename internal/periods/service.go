package periods

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tillbook/tillbook/internal/accounts"
	"github.com/tillbook/tillbook/internal/cashier"
	"github.com/tillbook/tillbook/internal/reconcile"
)

// ReconcileReader is the slice of the reconciliation service closing needs.
type ReconcileReader interface {
	StatusForPeriod(ctx context.Context, tenantID int64, periodEnd time.Time) ([]reconcile.ScopeStatus, error)
	FindCashSession(ctx context.Context, tenantID int64, sessionID uuid.UUID, kind reconcile.SessionKind) (reconcile.Reconciliation, error)
}

// SessionLister reports sessions closed on or before a date.
type SessionLister interface {
	ListSessionsClosedBefore(ctx context.Context, tenantID int64, cutoff time.Time) ([]cashier.Session, error)
}

// Service validates reconciliation completeness and records period closes.
type Service struct {
	repo     Repository
	methods  accounts.MethodConfig
	recons   ReconcileReader
	sessions SessionLister
	now      func() time.Time
}

func NewService(repo Repository, methods accounts.MethodConfig, recons ReconcileReader, sessions SessionLister) *Service {
	return &Service{repo: repo, methods: methods, recons: recons, sessions: sessions, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CloseInput requests a period-end close.
type CloseInput struct {
	TenantID      int64
	PeriodEndDate time.Time
	ActorID       int64
}

// ClosePeriod validates the close and records the lock. Posting with an
// entry date on or before the lock end is rejected from then on.
func (s *Service) ClosePeriod(ctx context.Context, in CloseInput) (AccountingPeriod, error) {
	if in.TenantID == 0 {
		return AccountingPeriod{}, errors.New("periods: tenant required")
	}
	if in.PeriodEndDate.IsZero() {
		return AccountingPeriod{}, errors.New("periods: period end date required")
	}
	now := s.now()
	if in.PeriodEndDate.After(now) {
		return AccountingPeriod{}, fmt.Errorf("%w: %s", ErrFuturePeriod, in.PeriodEndDate.Format("2006-01-02"))
	}
	last, err := s.repo.GetLastClosedPeriod(ctx, in.TenantID)
	if err != nil {
		return AccountingPeriod{}, err
	}
	if last != nil && !in.PeriodEndDate.After(last.EndDate) {
		return AccountingPeriod{}, fmt.Errorf("%w: last close ended %s", ErrBeforeLastClose, last.EndDate.Format("2006-01-02"))
	}

	missing, err := s.missingReconciliations(ctx, in.TenantID, in.PeriodEndDate)
	if err != nil {
		return AccountingPeriod{}, err
	}
	if len(missing) > 0 {
		return AccountingPeriod{}, fmt.Errorf("%w: %s", ErrMissingReconciliations, strings.Join(missing, ", "))
	}

	return s.repo.ClosePeriod(ctx, AccountingPeriod{
		TenantID: in.TenantID,
		EndDate:  in.PeriodEndDate,
		Status:   PeriodStatusClosed,
		ClosedBy: in.ActorID,
		ClosedAt: now,
	})
}

// Status surfaces the lock state and outstanding reconciliations for
// operational UIs.
type Status struct {
	LockEndDate *time.Time        `json:"lock_end_date,omitempty"`
	LastClosed  *AccountingPeriod `json:"last_closed,omitempty"`
	Missing     []string          `json:"missing_reconciliations"`
}

// CurrentStatus reports lock state and what still blocks closing through
// today.
func (s *Service) CurrentStatus(ctx context.Context, tenantID int64) (Status, error) {
	var status Status
	lock, err := s.repo.GetLock(ctx, tenantID)
	if err != nil {
		return Status{}, err
	}
	if lock != nil {
		end := lock.LockEndDate
		status.LockEndDate = &end
	}
	status.LastClosed, err = s.repo.GetLastClosedPeriod(ctx, tenantID)
	if err != nil {
		return Status{}, err
	}
	status.Missing, err = s.missingReconciliations(ctx, tenantID, s.now())
	if err != nil {
		return Status{}, err
	}
	return status, nil
}

// missingReconciliations returns one entry per unmet requirement: every
// cash-controlled payment method needs a verified method-scope
// reconciliation covering the date, and, when cash control is enabled,
// every session closed on or before the date needs a verified closing
// reconciliation. Method reconciliations are matched by method code, the
// identity their scope refs carry.
func (s *Service) missingReconciliations(ctx context.Context, tenantID int64, periodEnd time.Time) ([]string, error) {
	var missing []string

	covering, err := s.recons.StatusForPeriod(ctx, tenantID, periodEnd)
	if err != nil {
		return nil, err
	}
	verifiedMethods := make(map[string]struct{})
	for _, st := range covering {
		if st.Scope == reconcile.ScopeMethod && st.Status == reconcile.StatusVerified {
			verifiedMethods[st.ScopeRef] = struct{}{}
		}
	}
	required, err := s.methods.CashControlledMethods(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	for _, method := range required {
		if _, ok := verifiedMethods[method.Code]; !ok {
			missing = append(missing, "method:"+method.Code)
		}
	}

	cashControl, err := s.methods.CashControlEnabled(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if cashControl {
		sessions, err := s.sessions.ListSessionsClosedBefore(ctx, tenantID, endOfDay(periodEnd))
		if err != nil {
			return nil, err
		}
		for _, session := range sessions {
			recon, err := s.recons.FindCashSession(ctx, tenantID, session.ID, reconcile.SessionClosing)
			if err != nil {
				if errors.Is(err, reconcile.ErrNotFound) {
					missing = append(missing, "cash-session:"+session.ID.String())
					continue
				}
				return nil, err
			}
			if recon.Status != reconcile.StatusVerified {
				missing = append(missing, "cash-session:"+session.ID.String())
			}
		}
	}

	sort.Strings(missing)
	return missing, nil
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}
