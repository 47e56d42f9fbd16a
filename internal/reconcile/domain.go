package reconcile

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Scope identifies what a reconciliation snapshots.
type Scope string

const (
	ScopeManual      Scope = "manual"
	ScopeCashSession Scope = "cash-session"
	ScopeMethod      Scope = "method"
	ScopeBank        Scope = "bank"
	ScopeInventory   Scope = "inventory"
)

// Valid reports whether the scope is one of the known discriminants.
func (s Scope) Valid() bool {
	switch s {
	case ScopeManual, ScopeCashSession, ScopeMethod, ScopeBank, ScopeInventory:
		return true
	}
	return false
}

// Status is the reconciliation lifecycle: draft until a reviewer verifies.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusVerified Status = "verified"
)

// Reconciliation is a per-scope expected-vs-declared snapshot. Balances are
// integer minor units.
type Reconciliation struct {
	ID          uuid.UUID       `json:"id"`
	TenantID    int64           `json:"-"`
	Scope       Scope           `json:"scope"`
	ScopeRef    string          `json:"scope_ref"`
	PeriodStart time.Time       `json:"period_start"`
	PeriodEnd   time.Time       `json:"period_end"`
	Status      Status          `json:"status"`
	Expected    decimal.Decimal `json:"expected"`
	Actual      decimal.Decimal `json:"actual"`
	Variance    decimal.Decimal `json:"variance"`
	Notes       string          `json:"notes,omitempty"`
	CreatedBy   int64           `json:"created_by"`
	VerifiedBy  *int64          `json:"verified_by,omitempty"`
	VerifiedAt  *time.Time      `json:"verified_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Accounts    []AccountRow    `json:"accounts,omitempty"`
}

// AccountRow is the per-account junction line. Amounts are nullable because
// legacy rows predate per-account snapshots.
type AccountRow struct {
	ReconciliationID uuid.UUID        `json:"-"`
	AccountID        uuid.UUID        `json:"account_id"`
	AccountCode      string           `json:"account_code"`
	Declared         *decimal.Decimal `json:"declared,omitempty"`
	Expected         *decimal.Decimal `json:"expected,omitempty"`
	Variance         *decimal.Decimal `json:"variance,omitempty"`
}

// ScopeStatus is the per-reconciliation summary consumed by period-end
// closing.
type ScopeStatus struct {
	ID       uuid.UUID       `json:"id"`
	Scope    Scope           `json:"scope"`
	ScopeRef string          `json:"scope_ref"`
	Status   Status          `json:"status"`
	Variance decimal.Decimal `json:"variance"`
}

var (
	// ErrNotFound indicates the reconciliation does not exist for the tenant.
	ErrNotFound = errors.New("reconcile: reconciliation not found")
	// ErrUnknownScope indicates an unrecognised scope discriminant.
	ErrUnknownScope = errors.New("reconcile: unknown scope")
	// ErrEmptyScopeRef indicates a missing scope reference id.
	ErrEmptyScopeRef = errors.New("reconcile: scope reference id required")
	// ErrReviewerRequired indicates a verify call without a reviewer.
	ErrReviewerRequired = errors.New("reconcile: reviewer required")
)
