package cashier

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SessionStatus is the drawer session lifecycle. Closed is terminal; the
// next shift opens a fresh session.
type SessionStatus string

const (
	SessionOpen   SessionStatus = "open"
	SessionClosed SessionStatus = "closed"
)

// Session is one cash-drawer shift for a tenant. At most one session per
// tenant is open at a time.
type Session struct {
	ID                   uuid.UUID       `json:"id"`
	TenantID             int64           `json:"-"`
	CashierID            int64           `json:"cashier_id"`
	Status               SessionStatus   `json:"status"`
	OpenedAt             time.Time       `json:"opened_at"`
	ClosedAt             *time.Time      `json:"closed_at,omitempty"`
	ClosedBy             *int64          `json:"closed_by,omitempty"`
	ClosingDeclaredTotal decimal.Decimal `json:"closing_declared_total"`
}

// CountType classifies a cash count within a session.
type CountType string

const (
	CountOpening CountType = "opening"
	CountInterim CountType = "interim"
	CountClosing CountType = "closing"
)

// CashCount is a blind drawer count: declared cash is always visible to
// the counter, expected and variance only to a reviewing manager.
type CashCount struct {
	ID           uuid.UUID       `json:"id"`
	SessionID    uuid.UUID       `json:"session_id"`
	TenantID     int64           `json:"-"`
	Type         CountType       `json:"type"`
	DeclaredCash decimal.Decimal `json:"declared_cash"`
	ExpectedCash decimal.Decimal `json:"expected_cash"`
	Variance     decimal.Decimal `json:"variance"`
	Reason       string          `json:"reason,omitempty"`
	CountedBy    int64           `json:"counted_by"`
	ReviewedBy   *int64          `json:"reviewed_by,omitempty"`
	ReviewedAt   *time.Time      `json:"reviewed_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// CountReceipt is what the counting user gets back. Expected and variance
// are withheld to keep the count blind.
type CountReceipt struct {
	CountID      uuid.UUID       `json:"count_id"`
	SessionID    uuid.UUID       `json:"session_id"`
	Type         CountType       `json:"type"`
	DeclaredCash decimal.Decimal `json:"declared_cash"`
	RecordedAt   time.Time       `json:"recorded_at"`
}

// AccountClose is the per-account closing breakdown in a CloseSummary.
type AccountClose struct {
	AccountCode     string          `json:"account_code"`
	OpeningDeclared decimal.Decimal `json:"opening_declared"`
	SessionLedger   decimal.Decimal `json:"session_ledger"`
	Declared        decimal.Decimal `json:"declared"`
	Expected        decimal.Decimal `json:"expected"`
	Variance        decimal.Decimal `json:"variance"`
}

// CloseSummary reports the outcome of closing a session.
type CloseSummary struct {
	SessionID     uuid.UUID       `json:"session_id"`
	OpeningTotal  decimal.Decimal `json:"opening_total"`
	DeclaredTotal decimal.Decimal `json:"declared_total"`
	Accounts      []AccountClose  `json:"accounts"`
	TotalVariance decimal.Decimal `json:"total_variance"`
}

var (
	// ErrSessionAlreadyOpen indicates the tenant already has an open session.
	ErrSessionAlreadyOpen = errors.New("cashier: a session is already open for this tenant")
	// ErrSessionNotFound indicates the session does not exist (or its stored
	// id is corrupt).
	ErrSessionNotFound = errors.New("cashier: session not found")
	// ErrSessionClosed indicates a mutation against a closed session.
	ErrSessionClosed = errors.New("cashier: session already closed")
	// ErrNoOpenSession gates session-scoped postings when no session is open.
	ErrNoOpenSession = errors.New("cashier: no open session; start a session before posting cash-drawer movements")
	// ErrMissingDeclared indicates required accounts without a declared amount.
	ErrMissingDeclared = errors.New("cashier: declared balance missing for required accounts")
	// ErrUnknownDeclared indicates declared amounts for accounts that are not
	// cash-controlled.
	ErrUnknownDeclared = errors.New("cashier: declared balance supplied for non-cash-controlled accounts")
	// ErrCountNotFound indicates the cash count does not exist for the tenant.
	ErrCountNotFound = errors.New("cashier: cash count not found")
)
