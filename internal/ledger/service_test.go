package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillbook/tillbook/internal/accounts"
)

type fakeRepo struct {
	accounts map[string]accounts.Account
	entries  []JournalEntry
	lockEnd  *time.Time

	// raceOnInsert makes the next InsertEntry fail as a duplicate after
	// seeding the winner's entry, simulating a lost unique-index race.
	raceOnInsert *JournalEntry
}

func newFakeRepo(codes ...string) *fakeRepo {
	r := &fakeRepo{accounts: map[string]accounts.Account{}}
	for _, code := range codes {
		r.accounts[code] = accounts.Account{ID: uuid.New(), Code: code, Type: accounts.AccountTypeAsset, IsActive: true}
	}
	return r
}

func (r *fakeRepo) addParent(code string) {
	r.accounts[code] = accounts.Account{ID: uuid.New(), Code: code, IsParent: true}
}

func (r *fakeRepo) find(tenantID int64, sourceType, sourceID string) (JournalEntry, bool) {
	for _, e := range r.entries {
		if e.TenantID == tenantID && e.SourceType == sourceType && e.SourceID == sourceID {
			return e, true
		}
	}
	return JournalEntry{}, false
}

func (r *fakeRepo) GetBySource(_ context.Context, tenantID int64, sourceType, sourceID string) (JournalEntry, error) {
	if e, ok := r.find(tenantID, sourceType, sourceID); ok {
		return e, nil
	}
	return JournalEntry{}, ErrEntryNotFound
}

func (r *fakeRepo) GetEntry(_ context.Context, tenantID int64, id uuid.UUID) (JournalEntry, error) {
	for _, e := range r.entries {
		if e.TenantID == tenantID && e.ID == id {
			return e, nil
		}
	}
	return JournalEntry{}, ErrEntryNotFound
}

func (r *fakeRepo) ListEntries(_ context.Context, tenantID int64, from, to time.Time, limit int) ([]JournalEntry, error) {
	var out []JournalEntry
	for _, e := range r.entries {
		if e.TenantID == tenantID && !e.EntryDate.Before(from) && !e.EntryDate.After(to) {
			out = append(out, e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &fakeTx{repo: r})
}

type fakeTx struct {
	repo *fakeRepo
}

func (t *fakeTx) GetBySource(ctx context.Context, tenantID int64, sourceType, sourceID string) (JournalEntry, error) {
	return t.repo.GetBySource(ctx, tenantID, sourceType, sourceID)
}

func (t *fakeTx) ResolveAccounts(_ context.Context, _ int64, codes []string) (map[string]accounts.Account, error) {
	out := map[string]accounts.Account{}
	for _, code := range codes {
		if a, ok := t.repo.accounts[code]; ok {
			out[code] = a
		}
	}
	return out, nil
}

func (t *fakeTx) LockEndDate(_ context.Context, _ int64) (*time.Time, error) {
	return t.repo.lockEnd, nil
}

func (t *fakeTx) InsertEntry(_ context.Context, in PostingInput) (JournalEntry, error) {
	if winner := t.repo.raceOnInsert; winner != nil {
		t.repo.entries = append(t.repo.entries, *winner)
		t.repo.raceOnInsert = nil
		return JournalEntry{}, ErrDuplicateSource
	}
	if _, ok := t.repo.find(in.TenantID, in.SourceType, in.SourceID); ok {
		return JournalEntry{}, ErrDuplicateSource
	}
	entry := JournalEntry{
		ID:         uuid.New(),
		TenantID:   in.TenantID,
		EntryDate:  in.EntryDate,
		PostedAt:   time.Now(),
		SourceType: in.SourceType,
		SourceID:   in.SourceID,
		ReversalOf: in.ReversalOf,
		Memo:       in.Memo,
	}
	return entry, nil
}

func (t *fakeTx) InsertLines(_ context.Context, entry JournalEntry, resolved map[string]accounts.Account, lines []LineInput) ([]JournalLine, error) {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, JournalLine{
			ID:          int64(len(out) + 1),
			EntryID:     entry.ID,
			TenantID:    entry.TenantID,
			AccountID:   resolved[line.AccountCode].ID,
			AccountCode: line.AccountCode,
			Debit:       line.Debit,
			Credit:      line.Credit,
			Tags:        line.Tags,
		})
	}
	entry.Lines = out
	t.repo.entries = append(t.repo.entries, entry)
	return out, nil
}

func (t *fakeTx) GetEntryWithLines(ctx context.Context, tenantID int64, id uuid.UUID) (JournalEntry, error) {
	return t.repo.GetEntry(ctx, tenantID, id)
}

type recordingInvalidator struct {
	calls [][]string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, _ int64, codes ...string) error {
	r.calls = append(r.calls, codes)
	return nil
}

func amount(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func balancedInput(tenantID int64, sourceID string) PostingInput {
	return PostingInput{
		TenantID:   tenantID,
		SourceType: "order",
		SourceID:   sourceID,
		EntryDate:  time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Lines: []LineInput{
			{AccountCode: "CASH", Debit: amount(5000)},
			{AccountCode: "SALES", Credit: amount(5000)},
		},
	}
}

func TestPostBalancedEntry(t *testing.T) {
	repo := newFakeRepo("CASH", "SALES")
	inv := &recordingInvalidator{}
	svc := NewService(repo, inv)

	entry, err := svc.Post(context.Background(), balancedInput(1, "ord-1"))
	require.NoError(t, err)
	require.Len(t, entry.Lines, 2)
	assert.Equal(t, "order", entry.SourceType)
	assert.True(t, entry.Lines[0].Debit.Equal(amount(5000)))

	require.Len(t, inv.calls, 1)
	assert.Equal(t, []string{"CASH", "SALES"}, inv.calls[0])
}

func TestPostUnbalancedRejected(t *testing.T) {
	repo := newFakeRepo("CASH", "SALES")
	svc := NewService(repo, nil)

	in := balancedInput(1, "ord-2")
	in.Lines[1].Credit = amount(4999)
	_, err := svc.Post(context.Background(), in)
	require.ErrorIs(t, err, ErrUnbalanced)
	assert.Empty(t, repo.entries)
}

func TestPostRejectsNonIntegerAmount(t *testing.T) {
	repo := newFakeRepo("CASH", "SALES")
	svc := NewService(repo, nil)

	in := balancedInput(1, "ord-3")
	in.Lines[0].Debit = decimal.RequireFromString("50.5")
	in.Lines[1].Credit = decimal.RequireFromString("50.5")
	_, err := svc.Post(context.Background(), in)
	require.Error(t, err)
}

func TestPostMissingAccountsSorted(t *testing.T) {
	repo := newFakeRepo("CASH")
	svc := NewService(repo, nil)

	in := balancedInput(1, "ord-4")
	in.Lines = append(in.Lines, LineInput{AccountCode: "AR", Debit: amount(100)})
	in.Lines = append(in.Lines, LineInput{AccountCode: "CASH", Credit: amount(100)})
	_, err := svc.Post(context.Background(), in)
	require.ErrorIs(t, err, ErrMissingAccounts)
	assert.Contains(t, err.Error(), "AR, SALES")
}

func TestPostParentAccountRejected(t *testing.T) {
	repo := newFakeRepo("SALES")
	repo.addParent("CASH")
	svc := NewService(repo, nil)

	_, err := svc.Post(context.Background(), balancedInput(1, "ord-5"))
	require.ErrorIs(t, err, ErrParentAccount)
}

func TestPostPeriodLocked(t *testing.T) {
	repo := newFakeRepo("CASH", "SALES")
	lock := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	repo.lockEnd = &lock
	svc := NewService(repo, nil)

	in := balancedInput(1, "ord-6")
	in.EntryDate = lock // on the boundary is still locked
	_, err := svc.Post(context.Background(), in)
	require.ErrorIs(t, err, ErrPeriodLocked)

	in.EntryDate = lock.AddDate(0, 0, 1)
	_, err = svc.Post(context.Background(), in)
	require.NoError(t, err)
}

func TestPostIdempotentReplay(t *testing.T) {
	repo := newFakeRepo("CASH", "SALES")
	inv := &recordingInvalidator{}
	svc := NewService(repo, inv)

	first, err := svc.Post(context.Background(), balancedInput(1, "ord-7"))
	require.NoError(t, err)

	again, err := svc.Post(context.Background(), balancedInput(1, "ord-7"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Len(t, repo.entries, 1)

	// Replays do not invalidate the cache again.
	assert.Len(t, inv.calls, 1)
}

func TestPostDuplicateRaceReturnsWinner(t *testing.T) {
	repo := newFakeRepo("CASH", "SALES")
	svc := NewService(repo, nil)

	winner := JournalEntry{
		ID:         uuid.New(),
		TenantID:   1,
		SourceType: "order",
		SourceID:   "ord-8",
		EntryDate:  time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
	}
	repo.raceOnInsert = &winner

	entry, err := svc.Post(context.Background(), balancedInput(1, "ord-8"))
	require.NoError(t, err)
	assert.Equal(t, winner.ID, entry.ID)
}

func TestPostTenantIsolation(t *testing.T) {
	repo := newFakeRepo("CASH", "SALES")
	svc := NewService(repo, nil)

	a, err := svc.Post(context.Background(), balancedInput(1, "ord-9"))
	require.NoError(t, err)
	b, err := svc.Post(context.Background(), balancedInput(2, "ord-9"))
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, repo.entries, 2)
}

func TestReverseMirrorsLines(t *testing.T) {
	repo := newFakeRepo("CASH", "SALES")
	svc := NewService(repo, nil)
	svc.WithNow(func() time.Time { return time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC) })

	original, err := svc.Post(context.Background(), balancedInput(1, "ord-10"))
	require.NoError(t, err)

	reversal, err := svc.Reverse(context.Background(), ReverseInput{TenantID: 1, EntryID: original.ID})
	require.NoError(t, err)
	require.NotNil(t, reversal.ReversalOf)
	assert.Equal(t, original.ID, *reversal.ReversalOf)
	assert.Equal(t, "order:REVERSAL", reversal.SourceType)
	require.Len(t, reversal.Lines, 2)
	assert.True(t, reversal.Lines[0].Credit.Equal(amount(5000)))
	assert.True(t, reversal.Lines[1].Debit.Equal(amount(5000)))
	assert.Equal(t, fmt.Sprintf("Reversal of order/%s", original.SourceID), reversal.Memo)
}

func TestReverseIsIdempotent(t *testing.T) {
	repo := newFakeRepo("CASH", "SALES")
	svc := NewService(repo, nil)

	original, err := svc.Post(context.Background(), balancedInput(1, "ord-11"))
	require.NoError(t, err)

	first, err := svc.Reverse(context.Background(), ReverseInput{TenantID: 1, EntryID: original.ID})
	require.NoError(t, err)
	second, err := svc.Reverse(context.Background(), ReverseInput{TenantID: 1, EntryID: original.ID})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestValidateLineRules(t *testing.T) {
	base := balancedInput(1, "ord-12")

	both := base
	both.Lines = []LineInput{
		{AccountCode: "CASH", Debit: amount(10), Credit: amount(10)},
		{AccountCode: "SALES", Credit: amount(0)},
	}
	require.ErrorContains(t, both.Validate(), "debit and credit")

	neither := base
	neither.Lines = []LineInput{
		{AccountCode: "CASH"},
		{AccountCode: "SALES", Credit: amount(0)},
	}
	require.Error(t, neither.Validate())

	single := base
	single.Lines = single.Lines[:1]
	require.ErrorIs(t, single.Validate(), ErrTooFewLines)

	negative := base
	negative.Lines = []LineInput{
		{AccountCode: "CASH", Debit: amount(-5)},
		{AccountCode: "SALES", Credit: amount(-5)},
	}
	require.Error(t, negative.Validate())
}
