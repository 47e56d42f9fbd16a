package cashier

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tillbook/tillbook/internal/accounts"
	"github.com/tillbook/tillbook/internal/balance"
	"github.com/tillbook/tillbook/internal/ledger"
	"github.com/tillbook/tillbook/internal/reconcile"
	"github.com/tillbook/tillbook/internal/variance"
)

// SourceTypeVariance is the posting source type for session variance
// adjustments.
const SourceTypeVariance = "cash_session_variance"

// BalanceReader is the slice of the balance query service sessions need.
type BalanceReader interface {
	GetAccountBalance(ctx context.Context, tenantID int64, accountCode string, q balance.Query) (balance.Balance, error)
}

// VariancePoster submits short/over adjustments.
type VariancePoster interface {
	PostAdjustment(ctx context.Context, a variance.Adjustment) (ledger.JournalEntry, bool, error)
}

// Reconciler is the slice of the reconciliation service sessions drive.
type Reconciler interface {
	Create(ctx context.Context, in reconcile.CreateInput) (reconcile.Reconciliation, error)
	FindCashSession(ctx context.Context, tenantID int64, sessionID uuid.UUID, kind reconcile.SessionKind) (reconcile.Reconciliation, error)
}

// TxRunner executes fn inside one database transaction carried on the
// context. Session open and close span several repositories and must
// commit or roll back as a unit.
type TxRunner interface {
	InTx(ctx context.Context, fn func(context.Context) error) error
}

// Service drives the cash-drawer session lifecycle: open with declared
// balances, blind counts during the shift, close with per-account variance
// posting.
type Service struct {
	repo     Repository
	methods  accounts.MethodConfig
	balances BalanceReader
	recons   Reconciler
	variance VariancePoster
	tx       TxRunner
	now      func() time.Time
}

func NewService(repo Repository, methods accounts.MethodConfig, balances BalanceReader, recons Reconciler, poster VariancePoster, tx TxRunner) *Service {
	return &Service{
		repo:     repo,
		methods:  methods,
		balances: balances,
		recons:   recons,
		variance: poster,
		tx:       tx,
		now:      time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// StartInput opens a session with a declared opening amount for every
// cash-controlled account.
type StartInput struct {
	TenantID        int64
	CashierID       int64
	OpeningBalances map[string]decimal.Decimal
}

// CloseInput closes a session with a declared closing amount for every
// cash-controlled account.
type CloseInput struct {
	TenantID        int64
	SessionID       uuid.UUID
	ClosedBy        int64
	ClosingBalances map[string]decimal.Decimal
}

// CountInput records a blind drawer count.
type CountInput struct {
	TenantID     int64
	SessionID    uuid.UUID
	Type         CountType
	DeclaredCash decimal.Decimal
	Reason       string
	CountedBy    int64

	// deferPosting suppresses the immediate aggregate variance posting;
	// CloseSession sets it because closing posts per account instead.
	deferPosting bool
}

// StartSession opens a new drawer session. The declared balances are
// snapshotted into an opening reconciliation and any difference against
// the current ledger balance is posted as an opening variance. The session
// row, the reconciliation, and the postings commit in one transaction: a
// failure anywhere leaves no session behind.
func (s *Service) StartSession(ctx context.Context, in StartInput) (Session, error) {
	if in.TenantID == 0 {
		return Session{}, errors.New("cashier: tenant required")
	}
	if in.CashierID == 0 {
		return Session{}, errors.New("cashier: cashier required")
	}
	required, err := s.methods.CashControlledCodes(ctx, in.TenantID)
	if err != nil {
		return Session{}, err
	}
	if err := checkDeclared(required, in.OpeningBalances); err != nil {
		return Session{}, err
	}
	if _, err := s.repo.GetOpenSession(ctx, in.TenantID); err == nil {
		return Session{}, ErrSessionAlreadyOpen
	} else if !errors.Is(err, ErrSessionNotFound) {
		return Session{}, err
	}

	// Expected is the ledger's current balance per account; a first-time
	// till with no history expects zero, so the full declared amount posts
	// as the opening variance.
	asOf := s.now()
	reconAccounts := make([]reconcile.AccountInput, 0, len(required))
	type delta struct {
		code     string
		variance decimal.Decimal
	}
	var deltas []delta
	for _, code := range required {
		declared := in.OpeningBalances[code]
		bal, err := s.balances.GetAccountBalance(ctx, in.TenantID, code, balance.Query{AsOf: &asOf})
		if err != nil {
			return Session{}, err
		}
		expected := bal.Balance
		reconAccounts = append(reconAccounts, reconcile.AccountInput{
			AccountCode: code,
			Declared:    declared,
			Expected:    &expected,
		})
		if diff := declared.Sub(expected); !diff.IsZero() {
			deltas = append(deltas, delta{code: code, variance: diff})
		}
	}

	var session Session
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		session, err = s.repo.InsertSession(ctx, Session{TenantID: in.TenantID, CashierID: in.CashierID})
		if err != nil {
			return err
		}

		recon, err := s.recons.Create(ctx, reconcile.CreateInput{
			TenantID:    in.TenantID,
			Scope:       reconcile.ScopeCashSession,
			ScopeRef:    reconcile.CashSessionRef(session.ID, reconcile.SessionOpening),
			PeriodStart: asOf,
			PeriodEnd:   asOf,
			Notes:       "Session opening count",
			CreatedBy:   in.CashierID,
			Accounts:    reconAccounts,
		})
		if err != nil {
			return err
		}

		for _, d := range deltas {
			if err := s.postSessionVariance(ctx, session, recon.ID, d.code, d.variance, reconcile.SessionOpening, "Opening balance", asOf); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Session{}, err
	}
	return session, nil
}

// CloseSession ends the session: a blind closing count is recorded for
// audit, the session transitions to closed, and per-account variances are
// posted against the closing reconciliation. All of it commits in one
// transaction, so a failed close leaves the session open and retryable.
func (s *Service) CloseSession(ctx context.Context, in CloseInput) (CloseSummary, error) {
	session, err := s.repo.GetSession(ctx, in.TenantID, in.SessionID)
	if err != nil {
		return CloseSummary{}, err
	}
	if session.Status != SessionOpen {
		return CloseSummary{}, ErrSessionClosed
	}
	required, err := s.methods.CashControlledCodes(ctx, session.TenantID)
	if err != nil {
		return CloseSummary{}, err
	}
	if err := checkDeclared(required, in.ClosingBalances); err != nil {
		return CloseSummary{}, err
	}

	opening, err := s.recons.FindCashSession(ctx, session.TenantID, session.ID, reconcile.SessionOpening)
	if err != nil {
		return CloseSummary{}, fmt.Errorf("cashier: load opening reconciliation: %w", err)
	}
	openingByCode := declaredByCode(opening)

	closedAt := s.now()
	summary := CloseSummary{SessionID: session.ID}
	reconAccounts := make([]reconcile.AccountInput, 0, len(required))
	for _, code := range required {
		declared := in.ClosingBalances[code]
		openingDeclared := openingByCode[code]
		ledgerBal, err := s.sessionLedgerBalance(ctx, session, code)
		if err != nil {
			return CloseSummary{}, err
		}
		expected := openingDeclared.Add(ledgerBal)
		row := AccountClose{
			AccountCode:     code,
			OpeningDeclared: openingDeclared,
			SessionLedger:   ledgerBal,
			Declared:        declared,
			Expected:        expected,
			Variance:        declared.Sub(expected),
		}
		summary.Accounts = append(summary.Accounts, row)
		summary.OpeningTotal = summary.OpeningTotal.Add(openingDeclared)
		summary.DeclaredTotal = summary.DeclaredTotal.Add(declared)
		summary.TotalVariance = summary.TotalVariance.Add(row.Variance)
		expectedCopy := expected
		reconAccounts = append(reconAccounts, reconcile.AccountInput{
			AccountCode: code,
			Declared:    declared,
			Expected:    &expectedCopy,
		})
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		// Blind audit count; per-account posting below supersedes the
		// aggregate path, so the count itself never posts.
		if _, err := s.recordCount(ctx, session, CountInput{
			TenantID:     session.TenantID,
			SessionID:    session.ID,
			Type:         CountClosing,
			DeclaredCash: summary.DeclaredTotal,
			Reason:       "Session close",
			CountedBy:    in.ClosedBy,
			deferPosting: true,
		}); err != nil {
			return err
		}

		if err := s.repo.CloseSession(ctx, session.TenantID, session.ID, in.ClosedBy, closedAt, summary.DeclaredTotal); err != nil {
			return err
		}

		recon, err := s.recons.Create(ctx, reconcile.CreateInput{
			TenantID:    session.TenantID,
			Scope:       reconcile.ScopeCashSession,
			ScopeRef:    reconcile.CashSessionRef(session.ID, reconcile.SessionClosing),
			PeriodStart: session.OpenedAt,
			PeriodEnd:   closedAt,
			Notes:       "Session closing count",
			CreatedBy:   in.ClosedBy,
			Accounts:    reconAccounts,
		})
		if err != nil {
			return err
		}

		for _, row := range summary.Accounts {
			if row.Variance.IsZero() {
				continue
			}
			if err := s.postSessionVariance(ctx, session, recon.ID, row.AccountCode, row.Variance, reconcile.SessionClosing, "Closing balance variance", closedAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return CloseSummary{}, err
	}
	return summary, nil
}

// RecordCashCount persists a blind count and, unless deferred, immediately
// posts the aggregate variance against the tenant's primary cash account.
func (s *Service) RecordCashCount(ctx context.Context, in CountInput) (CountReceipt, error) {
	session, err := s.repo.GetSession(ctx, in.TenantID, in.SessionID)
	if err != nil {
		return CountReceipt{}, err
	}
	if session.Status != SessionOpen {
		return CountReceipt{}, ErrSessionClosed
	}
	return s.recordCount(ctx, session, in)
}

func (s *Service) recordCount(ctx context.Context, session Session, in CountInput) (CountReceipt, error) {
	switch in.Type {
	case CountOpening, CountInterim, CountClosing:
	default:
		return CountReceipt{}, fmt.Errorf("cashier: unknown count type %q", in.Type)
	}
	if !in.DeclaredCash.IsInteger() || in.DeclaredCash.IsNegative() {
		return CountReceipt{}, errors.New("cashier: declared cash must be a non-negative integer amount")
	}

	expected, primaryCode, err := s.expectedCashTotal(ctx, session)
	if err != nil {
		return CountReceipt{}, err
	}
	count := CashCount{
		SessionID:    session.ID,
		TenantID:     session.TenantID,
		Type:         in.Type,
		DeclaredCash: in.DeclaredCash,
		ExpectedCash: expected,
		Variance:     in.DeclaredCash.Sub(expected),
		Reason:       in.Reason,
		CountedBy:    in.CountedBy,
	}
	// The count row and its variance posting commit together; a nested
	// call from CloseSession joins the close's transaction.
	var stored CashCount
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		stored, err = s.repo.InsertCount(ctx, count)
		if err != nil {
			return err
		}
		if in.deferPosting || stored.Variance.IsZero() || primaryCode == "" {
			return nil
		}
		_, _, err = s.variance.PostAdjustment(ctx, variance.Adjustment{
			TenantID:    session.TenantID,
			AccountCode: primaryCode,
			Amount:      stored.Variance,
			EntryDate:   s.now(),
			Reason:      "Cash count variance",
			SourceType:  SourceTypeVariance,
			SourceID:    "count:" + stored.ID.String(),
			Tags: map[string]string{
				ledger.TagOpenSession: session.ID.String(),
			},
		})
		return err
	})
	if err != nil {
		return CountReceipt{}, err
	}

	// The counter never sees expected or variance; a manager review
	// reveals them.
	return CountReceipt{
		CountID:      stored.ID,
		SessionID:    stored.SessionID,
		Type:         stored.Type,
		DeclaredCash: stored.DeclaredCash,
		RecordedAt:   stored.CreatedAt,
	}, nil
}

// ReviewCashCount reveals a count's expected cash and variance and stamps
// the reviewer. Manager-only; the transport layer enforces who may call it.
func (s *Service) ReviewCashCount(ctx context.Context, tenantID int64, countID uuid.UUID, reviewerID int64) (CashCount, error) {
	if reviewerID == 0 {
		return CashCount{}, errors.New("cashier: reviewer required")
	}
	if _, err := s.repo.GetCount(ctx, tenantID, countID); err != nil {
		return CashCount{}, err
	}
	return s.repo.MarkCountReviewed(ctx, tenantID, countID, reviewerID, s.now())
}

// GetCurrentSession returns the tenant's open session.
func (s *Service) GetCurrentSession(ctx context.Context, tenantID int64) (Session, error) {
	session, err := s.repo.GetOpenSession(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return Session{}, ErrNoOpenSession
		}
		return Session{}, err
	}
	return session, nil
}

// RequireOpenSession is the gate every session-scoped financial operation
// calls before posting. Callers tag their lines with the returned session
// id.
func (s *Service) RequireOpenSession(ctx context.Context, tenantID int64) (Session, error) {
	return s.GetCurrentSession(ctx, tenantID)
}

// SessionSummary aggregates a session's reconciliations for display.
type SessionSummary struct {
	Session Session                    `json:"session"`
	Opening *reconcile.Reconciliation  `json:"opening,omitempty"`
	Closing *reconcile.Reconciliation  `json:"closing,omitempty"`
	Ledger  map[string]decimal.Decimal `json:"ledger_totals"`
}

// GetSessionSummary returns the session with its opening/closing
// reconciliations and per-account session-tagged ledger totals.
func (s *Service) GetSessionSummary(ctx context.Context, tenantID int64, sessionID uuid.UUID) (SessionSummary, error) {
	session, err := s.repo.GetSession(ctx, tenantID, sessionID)
	if err != nil {
		return SessionSummary{}, err
	}
	summary := SessionSummary{Session: session, Ledger: map[string]decimal.Decimal{}}
	if opening, err := s.recons.FindCashSession(ctx, tenantID, session.ID, reconcile.SessionOpening); err == nil {
		summary.Opening = &opening
	} else if !errors.Is(err, reconcile.ErrNotFound) {
		return SessionSummary{}, err
	}
	if closing, err := s.recons.FindCashSession(ctx, tenantID, session.ID, reconcile.SessionClosing); err == nil {
		summary.Closing = &closing
	} else if !errors.Is(err, reconcile.ErrNotFound) {
		return SessionSummary{}, err
	}
	required, err := s.methods.CashControlledCodes(ctx, tenantID)
	if err != nil {
		return SessionSummary{}, err
	}
	for _, code := range required {
		bal, err := s.sessionLedgerBalance(ctx, session, code)
		if err != nil {
			return SessionSummary{}, err
		}
		summary.Ledger[code] = bal
	}
	return summary, nil
}

// sessionLedgerBalance sums the lines tagged to this session for one
// account.
func (s *Service) sessionLedgerBalance(ctx context.Context, session Session, code string) (decimal.Decimal, error) {
	bal, err := s.balances.GetAccountBalance(ctx, session.TenantID, code, balance.Query{
		Tags: map[string]string{ledger.TagOpenSession: session.ID.String()},
	})
	if err != nil {
		return decimal.Zero, err
	}
	return bal.Balance, nil
}

// expectedCashTotal computes opening declared total plus session-tagged
// ledger movement across all cash-controlled accounts. The primary code
// (first in configuration order) absorbs aggregate count variances.
func (s *Service) expectedCashTotal(ctx context.Context, session Session) (decimal.Decimal, string, error) {
	required, err := s.methods.CashControlledCodes(ctx, session.TenantID)
	if err != nil {
		return decimal.Zero, "", err
	}
	openingTotal := decimal.Zero
	if opening, err := s.recons.FindCashSession(ctx, session.TenantID, session.ID, reconcile.SessionOpening); err == nil {
		openingTotal = opening.Actual
	} else if !errors.Is(err, reconcile.ErrNotFound) {
		return decimal.Zero, "", err
	}
	total := openingTotal
	for _, code := range required {
		bal, err := s.sessionLedgerBalance(ctx, session, code)
		if err != nil {
			return decimal.Zero, "", err
		}
		total = total.Add(bal)
	}
	primary := ""
	if len(required) > 0 {
		primary = required[0]
	}
	return total, primary, nil
}

func (s *Service) postSessionVariance(ctx context.Context, session Session, reconID uuid.UUID, code string, amount decimal.Decimal, kind reconcile.SessionKind, reason string, at time.Time) error {
	_, _, err := s.variance.PostAdjustment(ctx, variance.Adjustment{
		TenantID:    session.TenantID,
		AccountCode: code,
		Amount:      amount,
		EntryDate:   at,
		Reason:      reason,
		SourceType:  SourceTypeVariance,
		SourceID:    session.ID.String() + ":" + string(kind) + ":" + code,
		Tags: map[string]string{
			ledger.TagReconciliation: reconID.String(),
			ledger.TagOpenSession:    session.ID.String(),
		},
	})
	return err
}

// checkDeclared enforces the completeness rule: a declared amount for every
// required code, and nothing extra.
func checkDeclared(required []string, declared map[string]decimal.Decimal) error {
	var missing []string
	requiredSet := make(map[string]struct{}, len(required))
	for _, code := range required {
		requiredSet[code] = struct{}{}
		amount, ok := declared[code]
		if !ok {
			missing = append(missing, code)
			continue
		}
		if !amount.IsInteger() || amount.IsNegative() {
			return fmt.Errorf("cashier: declared balance for %s must be a non-negative integer amount", code)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s", ErrMissingDeclared, strings.Join(missing, ", "))
	}
	var unknown []string
	for code := range declared {
		if _, ok := requiredSet[code]; !ok {
			unknown = append(unknown, code)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: %s", ErrUnknownDeclared, strings.Join(unknown, ", "))
	}
	return nil
}

func declaredByCode(recon reconcile.Reconciliation) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(recon.Accounts))
	for _, row := range recon.Accounts {
		if row.Declared != nil {
			out[row.AccountCode] = *row.Declared
		}
	}
	return out
}
