package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tillbook/tillbook/internal/accounts"
	"github.com/tillbook/tillbook/internal/balance"
	"github.com/tillbook/tillbook/internal/ledger"
	"github.com/tillbook/tillbook/internal/variance"
)

// SourceTypeVariance is the posting source type for reconciliation
// variance adjustments.
const SourceTypeVariance = "reconciliation_variance"

// BalanceReader is the slice of the balance query service the
// reconciliation flow needs.
type BalanceReader interface {
	GetAccountBalance(ctx context.Context, tenantID int64, accountCode string, q balance.Query) (balance.Balance, error)
}

// VariancePoster submits short/over adjustments.
type VariancePoster interface {
	PostAdjustment(ctx context.Context, a variance.Adjustment) (ledger.JournalEntry, bool, error)
}

// TxRunner executes fn inside one database transaction carried on the
// context. Manual creates insert the snapshot and post its variances as a
// unit.
type TxRunner interface {
	InTx(ctx context.Context, fn func(context.Context) error) error
}

// Service creates and verifies reconciliation snapshots.
type Service struct {
	repo     Repository
	accounts accounts.Repository
	balances BalanceReader
	variance VariancePoster
	tx       TxRunner
	now      func() time.Time
}

func NewService(repo Repository, accountsRepo accounts.Repository, balances BalanceReader, poster VariancePoster, tx TxRunner) *Service {
	return &Service{repo: repo, accounts: accountsRepo, balances: balances, variance: poster, tx: tx, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// AccountInput declares the counted amount for one account in scope.
// Expected is supplied by owning workflows (cash sessions) that computed
// their own snapshot; manual scope derives it from the ledger instead.
type AccountInput struct {
	AccountCode string
	Declared    decimal.Decimal
	Expected    *decimal.Decimal
}

// CreateInput captures a new reconciliation.
type CreateInput struct {
	TenantID    int64
	Scope       Scope
	ScopeRef    string
	PeriodStart time.Time
	PeriodEnd   time.Time
	Notes       string
	CreatedBy   int64
	Accounts    []AccountInput
}

func (in CreateInput) Validate() error {
	if in.TenantID == 0 {
		return errors.New("reconcile: tenant required")
	}
	if !in.Scope.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownScope, in.Scope)
	}
	if strings.TrimSpace(in.ScopeRef) == "" {
		return ErrEmptyScopeRef
	}
	if in.PeriodStart.IsZero() || in.PeriodEnd.IsZero() {
		return errors.New("reconcile: period start and end required")
	}
	if in.PeriodStart.After(in.PeriodEnd) {
		return errors.New("reconcile: period start after end")
	}
	if len(in.Accounts) == 0 {
		return errors.New("reconcile: at least one account required")
	}
	for _, acc := range in.Accounts {
		if strings.TrimSpace(acc.AccountCode) == "" {
			return errors.New("reconcile: account code required")
		}
		if !acc.Declared.IsInteger() {
			return fmt.Errorf("reconcile: declared amount for %s must be integer minor units", acc.AccountCode)
		}
	}
	return nil
}

// Create persists a reconciliation. Manual scope compares each declared
// amount against the as-of-today ledger balance and posts the resulting
// variances in one transaction with the snapshot; every other scope
// persists the snapshot only and leaves
// posting to the owning workflow (e.g. the cashier session lifecycle).
func (s *Service) Create(ctx context.Context, in CreateInput) (Reconciliation, error) {
	if err := in.Validate(); err != nil {
		return Reconciliation{}, err
	}
	ref, err := EncodeScopeRef(in.Scope, in.ScopeRef)
	if err != nil {
		return Reconciliation{}, err
	}

	recon := Reconciliation{
		TenantID:    in.TenantID,
		Scope:       in.Scope,
		ScopeRef:    ref,
		PeriodStart: in.PeriodStart,
		PeriodEnd:   in.PeriodEnd,
		Status:      StatusDraft,
		Notes:       in.Notes,
		CreatedBy:   in.CreatedBy,
	}

	if in.Scope == ScopeManual {
		return s.createManual(ctx, in, recon)
	}

	for _, acc := range in.Accounts {
		account, err := s.accounts.GetByCode(ctx, in.TenantID, acc.AccountCode)
		if err != nil {
			return Reconciliation{}, err
		}
		declared := acc.Declared
		row := AccountRow{
			AccountID:   account.ID,
			AccountCode: account.Code,
			Declared:    &declared,
		}
		recon.Actual = recon.Actual.Add(declared)
		if acc.Expected != nil {
			expected := *acc.Expected
			diff := declared.Sub(expected)
			row.Expected = &expected
			row.Variance = &diff
			recon.Expected = recon.Expected.Add(expected)
		}
		recon.Accounts = append(recon.Accounts, row)
	}
	recon.Variance = recon.Actual.Sub(recon.Expected)
	return s.repo.Insert(ctx, recon)
}

func (s *Service) createManual(ctx context.Context, in CreateInput, recon Reconciliation) (Reconciliation, error) {
	asOf := s.now()
	type delta struct {
		code     string
		variance decimal.Decimal
	}
	var deltas []delta
	for _, acc := range in.Accounts {
		account, err := s.accounts.GetByCode(ctx, in.TenantID, acc.AccountCode)
		if err != nil {
			return Reconciliation{}, err
		}
		bal, err := s.balances.GetAccountBalance(ctx, in.TenantID, acc.AccountCode, balance.Query{AsOf: &asOf})
		if err != nil {
			return Reconciliation{}, err
		}
		declared := acc.Declared
		expected := bal.Balance
		diff := declared.Sub(expected)
		recon.Actual = recon.Actual.Add(declared)
		recon.Expected = recon.Expected.Add(expected)
		recon.Accounts = append(recon.Accounts, AccountRow{
			AccountID:   account.ID,
			AccountCode: account.Code,
			Declared:    &declared,
			Expected:    &expected,
			Variance:    &diff,
		})
		if !diff.IsZero() {
			deltas = append(deltas, delta{code: account.Code, variance: diff})
		}
	}
	recon.Variance = recon.Actual.Sub(recon.Expected)

	// The snapshot and its postings share one transaction, so they run
	// sequentially and a failure rolls everything back.
	var inserted Reconciliation
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		inserted, err = s.repo.Insert(ctx, recon)
		if err != nil {
			return err
		}
		for _, d := range deltas {
			_, _, err := s.variance.PostAdjustment(ctx, variance.Adjustment{
				TenantID:    in.TenantID,
				AccountCode: d.code,
				Amount:      d.variance,
				EntryDate:   asOf,
				Reason:      "Manual reconciliation",
				SourceType:  SourceTypeVariance,
				SourceID:    inserted.ID.String() + ":" + d.code,
				Tags:        map[string]string{ledger.TagReconciliation: inserted.ID.String()},
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Reconciliation{}, err
	}
	return inserted, nil
}

// Verify transitions draft to verified exactly once. Verifying an
// already-verified reconciliation is a no-op returning the existing record.
func (s *Service) Verify(ctx context.Context, tenantID int64, id uuid.UUID, reviewerID int64) (Reconciliation, error) {
	if reviewerID == 0 {
		return Reconciliation{}, ErrReviewerRequired
	}
	existing, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return Reconciliation{}, err
	}
	if existing.Status == StatusVerified {
		return existing, nil
	}
	if err := s.repo.MarkVerified(ctx, tenantID, id, reviewerID, s.now()); err != nil {
		if errors.Is(err, ErrNotFound) {
			// Raced with another verifier; return the winner's record.
			return s.repo.Get(ctx, tenantID, id)
		}
		return Reconciliation{}, err
	}
	return s.repo.Get(ctx, tenantID, id)
}

// Get loads one reconciliation with its per-account rows.
func (s *Service) Get(ctx context.Context, tenantID int64, id uuid.UUID) (Reconciliation, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// StatusForPeriod reports scope, status, and variance for every
// reconciliation whose date range covers the given period end.
func (s *Service) StatusForPeriod(ctx context.Context, tenantID int64, periodEnd time.Time) ([]ScopeStatus, error) {
	return s.repo.ListCovering(ctx, tenantID, periodEnd)
}

// FindCashSession looks up the reconciliation for one session snapshot.
// It tries the kind-suffixed reference first and falls back to the bare
// session id.
// TODO(migration debt): drop the bare-ref fallback once pre-suffix rows
// have been backfilled.
func (s *Service) FindCashSession(ctx context.Context, tenantID int64, sessionID uuid.UUID, kind SessionKind) (Reconciliation, error) {
	recon, err := s.repo.FindByScopeRef(ctx, tenantID, ScopeCashSession, CashSessionRef(sessionID, kind))
	if err == nil {
		return recon, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Reconciliation{}, err
	}
	return s.repo.FindByScopeRef(ctx, tenantID, ScopeCashSession, sessionID.String())
}
