package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineInput describes a single proposed journal line. Exactly one of
// Debit/Credit must be positive; amounts are integer minor units.
type LineInput struct {
	AccountCode string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Tags        map[string]string
}

// PostingInput groups everything required to post one journal entry.
type PostingInput struct {
	TenantID   int64
	SourceType string
	SourceID   string
	EntryDate  time.Time
	Memo       string
	ReversalOf *uuid.UUID
	Lines      []LineInput
}

// Validate enforces the structural posting invariants that need no
// database access.
func (in PostingInput) Validate() error {
	if in.TenantID == 0 {
		return errors.New("ledger: tenant required")
	}
	if strings.TrimSpace(in.SourceType) == "" {
		return errors.New("ledger: source type required")
	}
	if strings.TrimSpace(in.SourceID) == "" {
		return errors.New("ledger: source id required")
	}
	if in.EntryDate.IsZero() {
		return errors.New("ledger: entry date required")
	}
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	debit := decimal.Zero
	credit := decimal.Zero
	for idx, line := range in.Lines {
		if strings.TrimSpace(line.AccountCode) == "" {
			return fmt.Errorf("ledger: line %d missing account code", idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("ledger: line %d negative amount", idx)
		}
		if !line.Debit.IsInteger() || !line.Credit.IsInteger() {
			return fmt.Errorf("ledger: line %d amount must be integer minor units", idx)
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return fmt.Errorf("ledger: line %d cannot be both debit and credit", idx)
		}
		if line.Debit.IsZero() && line.Credit.IsZero() {
			return fmt.Errorf("ledger: line %d has no amount", idx)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return ErrUnbalanced
	}
	return nil
}

// AccountCodes returns the distinct codes referenced by the input, in
// first-seen order.
func (in PostingInput) AccountCodes() []string {
	seen := make(map[string]struct{}, len(in.Lines))
	codes := make([]string, 0, len(in.Lines))
	for _, line := range in.Lines {
		if _, ok := seen[line.AccountCode]; ok {
			continue
		}
		seen[line.AccountCode] = struct{}{}
		codes = append(codes, line.AccountCode)
	}
	return codes
}

// ReverseInput wraps parameters for posting a mirror-image entry.
type ReverseInput struct {
	TenantID int64
	EntryID  uuid.UUID
	Memo     string
	ActorID  int64
}
