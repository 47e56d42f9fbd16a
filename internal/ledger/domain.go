package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JournalEntry is an immutable, balanced financial movement. The
// (tenant, source type, source id) triple is the caller-supplied
// idempotency key: re-posting the same triple returns the original entry.
type JournalEntry struct {
	ID         uuid.UUID
	TenantID   int64
	EntryDate  time.Time
	PostedAt   time.Time
	SourceType string
	SourceID   string
	ReversalOf *uuid.UUID
	Memo       string
	Lines      []JournalLine
}

// JournalLine carries one side of a movement in integer minor currency
// units. Tags hold tenant-scoped references (orderId, customerId,
// openSessionId, ...) used by filtered balance queries.
type JournalLine struct {
	ID          int64
	EntryID     uuid.UUID
	TenantID    int64
	AccountID   uuid.UUID
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Tags        map[string]string
}

// Well-known tag keys.
const (
	TagOpenSession     = "openSessionId"
	TagReconciliation  = "reconciliationId"
	TagOrder           = "orderId"
	TagCustomer        = "customerId"
	TagSupplier        = "supplierId"
	TagExpenseCategory = "expenseCategory"
)

var (
	// ErrEntryNotFound indicates the journal entry does not exist for the tenant.
	ErrEntryNotFound = errors.New("ledger: journal entry not found")
	// ErrUnbalanced indicates the proposed lines do not sum debit = credit.
	ErrUnbalanced = errors.New("ledger: entry debits and credits must be equal")
	// ErrMissingAccounts indicates one or more referenced codes are unresolved.
	ErrMissingAccounts = errors.New("ledger: missing accounts")
	// ErrParentAccount indicates a line targets a roll-up-only account.
	ErrParentAccount = errors.New("ledger: cannot post to a parent account")
	// ErrPeriodLocked indicates the entry date falls inside a closed period.
	ErrPeriodLocked = errors.New("ledger: entry date is within a locked period")
	// ErrDuplicateSource signals an idempotency-key collision on insert.
	// Post resolves it by re-reading; callers should not see it.
	ErrDuplicateSource = errors.New("ledger: source already posted")
	// ErrTooFewLines indicates fewer than two lines.
	ErrTooFewLines = errors.New("ledger: an entry needs at least two lines")
)
