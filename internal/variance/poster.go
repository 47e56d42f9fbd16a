// Package variance builds and submits short/over adjustment entries. Every
// adjustment flows through the posting engine like any other movement.
package variance

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tillbook/tillbook/internal/accounts"
	"github.com/tillbook/tillbook/internal/ledger"
)

// JournalPoster is the slice of the posting engine the helper needs.
type JournalPoster interface {
	Post(ctx context.Context, in ledger.PostingInput) (ledger.JournalEntry, error)
}

// AlertSink receives operational alerts for variances beyond the
// configured threshold. Delivery is advisory: a failed enqueue never fails
// the posting.
type AlertSink interface {
	VarianceAlert(ctx context.Context, a Alert) error
}

// Alert describes a threshold-exceeding variance for the ops channel.
type Alert struct {
	TenantID    int64  `json:"tenant_id"`
	AccountCode string `json:"account_code"`
	Amount      string `json:"amount"`
	Reason      string `json:"reason"`
	SessionID   string `json:"session_id,omitempty"`
}

// Adjustment describes one signed variance to absorb into the suspense
// account. Positive means the count exceeded the ledger (overage), negative
// a shortage.
type Adjustment struct {
	TenantID    int64
	AccountCode string
	Amount      decimal.Decimal
	EntryDate   time.Time
	Reason      string
	SourceType  string
	SourceID    string
	Tags        map[string]string
}

func (a Adjustment) validate() error {
	if a.TenantID == 0 {
		return errors.New("variance: tenant required")
	}
	if strings.TrimSpace(a.AccountCode) == "" {
		return errors.New("variance: account code required")
	}
	if strings.TrimSpace(a.Reason) == "" {
		return errors.New("variance: reason required")
	}
	if strings.TrimSpace(a.SourceType) == "" || strings.TrimSpace(a.SourceID) == "" {
		return errors.New("variance: source type and id required")
	}
	if a.EntryDate.IsZero() {
		return errors.New("variance: entry date required")
	}
	if !a.Amount.IsInteger() {
		return errors.New("variance: amount must be integer minor units")
	}
	return nil
}

// Poster posts two-line adjustment entries against the tenant's suspense
// account.
type Poster struct {
	journal   JournalPoster
	methods   accounts.MethodConfig
	alerts    AlertSink
	threshold decimal.Decimal
}

// NewPoster constructs the helper. A zero threshold disables alerting.
func NewPoster(journal JournalPoster, methods accounts.MethodConfig, alerts AlertSink, threshold decimal.Decimal) *Poster {
	return &Poster{journal: journal, methods: methods, alerts: alerts, threshold: threshold}
}

// PostAdjustment submits the adjustment. A zero amount is a no-op and
// returns posted=false.
func (p *Poster) PostAdjustment(ctx context.Context, a Adjustment) (ledger.JournalEntry, bool, error) {
	if err := a.validate(); err != nil {
		return ledger.JournalEntry{}, false, err
	}
	if a.Amount.IsZero() {
		return ledger.JournalEntry{}, false, nil
	}
	suspense, err := p.methods.SuspenseAccountCode(ctx, a.TenantID)
	if err != nil {
		return ledger.JournalEntry{}, false, err
	}

	magnitude := a.Amount.Abs()
	var lines []ledger.LineInput
	if a.Amount.IsPositive() {
		// Counted more than expected: the account gained value.
		lines = []ledger.LineInput{
			{AccountCode: a.AccountCode, Debit: magnitude, Tags: a.Tags},
			{AccountCode: suspense, Credit: magnitude, Tags: a.Tags},
		}
	} else {
		lines = []ledger.LineInput{
			{AccountCode: a.AccountCode, Credit: magnitude, Tags: a.Tags},
			{AccountCode: suspense, Debit: magnitude, Tags: a.Tags},
		}
	}

	entry, err := p.journal.Post(ctx, ledger.PostingInput{
		TenantID:   a.TenantID,
		SourceType: a.SourceType,
		SourceID:   a.SourceID,
		EntryDate:  a.EntryDate,
		Memo:       a.Reason,
		Lines:      lines,
	})
	if err != nil {
		return ledger.JournalEntry{}, false, err
	}

	if p.alerts != nil && p.threshold.IsPositive() && magnitude.GreaterThanOrEqual(p.threshold) {
		_ = p.alerts.VarianceAlert(ctx, Alert{
			TenantID:    a.TenantID,
			AccountCode: a.AccountCode,
			Amount:      a.Amount.StringFixed(0),
			Reason:      a.Reason,
			SessionID:   a.Tags[ledger.TagOpenSession],
		})
	}
	return entry, true, nil
}
