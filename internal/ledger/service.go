package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tillbook/tillbook/internal/accounts"
)

// Invalidator drops cached balances for accounts a write touched. The
// balance query service owns the cache; the posting engine only signals it.
type Invalidator interface {
	Invalidate(ctx context.Context, tenantID int64, accountCodes ...string) error
}

// Service is the single write path for every financial movement. No other
// component inserts journal lines.
type Service struct {
	repo  Repository
	cache Invalidator
	now   func() time.Time
}

func NewService(repo Repository, cache Invalidator) *Service {
	return &Service{repo: repo, cache: cache, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Post commits the proposed entry atomically, enforcing the idempotency,
// account, balance, and period-lock rules inside one transaction. Retries
// with the same (tenant, source type, source id) return the original entry.
func (s *Service) Post(ctx context.Context, in PostingInput) (JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	var replayed bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, err := tx.GetBySource(ctx, in.TenantID, in.SourceType, in.SourceID)
		if err == nil {
			entry = existing
			replayed = true
			return nil
		}
		if !errors.Is(err, ErrEntryNotFound) {
			return err
		}

		codes := in.AccountCodes()
		resolved, err := tx.ResolveAccounts(ctx, in.TenantID, codes)
		if err != nil {
			return err
		}
		if err := checkAccounts(codes, resolved); err != nil {
			return err
		}

		lockEnd, err := tx.LockEndDate(ctx, in.TenantID)
		if err != nil {
			return err
		}
		if lockEnd != nil && !in.EntryDate.After(*lockEnd) {
			return fmt.Errorf("%w: %s is on or before lock end %s",
				ErrPeriodLocked, in.EntryDate.Format("2006-01-02"), lockEnd.Format("2006-01-02"))
		}

		inserted, err := tx.InsertEntry(ctx, in)
		if err != nil {
			return err
		}
		lines, err := tx.InsertLines(ctx, inserted, resolved, in.Lines)
		if err != nil {
			return err
		}
		inserted.Lines = lines
		entry = inserted
		return nil
	})
	if errors.Is(err, ErrDuplicateSource) {
		// Lost the insert race; the winner's entry is now visible.
		return s.repo.GetBySource(ctx, in.TenantID, in.SourceType, in.SourceID)
	}
	if err != nil {
		return JournalEntry{}, err
	}
	if !replayed {
		s.invalidate(ctx, in.TenantID, in.AccountCodes())
	}
	return entry, nil
}

// Reverse posts a mirror-image entry referencing the original. The
// reversal carries its own source key so it is itself idempotent.
func (s *Service) Reverse(ctx context.Context, in ReverseInput) (JournalEntry, error) {
	if in.TenantID == 0 {
		return JournalEntry{}, errors.New("ledger: tenant required")
	}
	if in.EntryID == uuid.Nil {
		return JournalEntry{}, errors.New("ledger: entry id required")
	}
	original, err := s.repo.GetEntry(ctx, in.TenantID, in.EntryID)
	if err != nil {
		return JournalEntry{}, err
	}
	entryID := original.ID
	posting := PostingInput{
		TenantID:   in.TenantID,
		SourceType: original.SourceType + ":REVERSAL",
		SourceID:   original.SourceID,
		EntryDate:  s.now(),
		Memo:       reversalMemo(in.Memo, original),
		ReversalOf: &entryID,
		Lines:      mirrorLines(original.Lines),
	}
	return s.Post(ctx, posting)
}

// GetBySource returns a previously posted entry by its idempotency key.
func (s *Service) GetBySource(ctx context.Context, tenantID int64, sourceType, sourceID string) (JournalEntry, error) {
	return s.repo.GetBySource(ctx, tenantID, sourceType, sourceID)
}

// GetEntry returns an entry with its lines.
func (s *Service) GetEntry(ctx context.Context, tenantID int64, id uuid.UUID) (JournalEntry, error) {
	return s.repo.GetEntry(ctx, tenantID, id)
}

// ListEntries returns entries within the date window, newest first.
func (s *Service) ListEntries(ctx context.Context, tenantID int64, from, to time.Time, limit int) ([]JournalEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListEntries(ctx, tenantID, from, to, limit)
}

func (s *Service) invalidate(ctx context.Context, tenantID int64, codes []string) {
	if s.cache == nil {
		return
	}
	// Advisory: a stale cache entry expires on its own TTL.
	_ = s.cache.Invalidate(ctx, tenantID, codes...)
}

func checkAccounts(codes []string, resolved map[string]accounts.Account) error {
	var missing []string
	for _, code := range codes {
		if _, ok := resolved[code]; !ok {
			missing = append(missing, code)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s", ErrMissingAccounts, strings.Join(missing, ", "))
	}
	for _, code := range codes {
		if resolved[code].IsParent {
			return fmt.Errorf("%w: %s", ErrParentAccount, code)
		}
	}
	return nil
}

func reversalMemo(memo string, original JournalEntry) string {
	if memo != "" {
		return memo
	}
	return fmt.Sprintf("Reversal of %s/%s", original.SourceType, original.SourceID)
}

func mirrorLines(lines []JournalLine) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountCode: line.AccountCode,
			Debit:       line.Credit,
			Credit:      line.Debit,
			Tags:        line.Tags,
		})
	}
	return out
}

