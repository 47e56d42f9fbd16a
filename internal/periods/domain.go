package periods

import (
	"errors"
	"time"
)

// PeriodLock is the per-tenant posting cutoff: no entry may carry an entry
// date on or before LockEndDate. One row per tenant, only ever moved
// forward.
type PeriodLock struct {
	TenantID    int64
	LockEndDate time.Time
	UpdatedAt   time.Time
}

// PeriodStatus is the accounting-period lifecycle. Periods are recorded at
// close; there is no draft state.
type PeriodStatus string

// PeriodStatusClosed marks a completed accounting period.
const PeriodStatusClosed PeriodStatus = "closed"

// AccountingPeriod records one completed close.
type AccountingPeriod struct {
	ID       int64        `json:"id"`
	TenantID int64        `json:"-"`
	EndDate  time.Time    `json:"end_date"`
	Status   PeriodStatus `json:"status"`
	ClosedBy int64        `json:"closed_by"`
	ClosedAt time.Time    `json:"closed_at"`
}

var (
	// ErrFuturePeriod rejects closing a period that has not ended yet.
	ErrFuturePeriod = errors.New("periods: period end date is in the future")
	// ErrBeforeLastClose rejects closing on or before the previous close.
	ErrBeforeLastClose = errors.New("periods: period end date does not advance past the last closed period")
	// ErrMissingReconciliations rejects closing while required
	// reconciliations are unverified; the message lists what is missing.
	ErrMissingReconciliations = errors.New("periods: required reconciliations are not verified")
)
