package variance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillbook/tillbook/internal/accounts"
	"github.com/tillbook/tillbook/internal/ledger"
)

type fakeJournal struct {
	inputs []ledger.PostingInput
}

func (f *fakeJournal) Post(_ context.Context, in ledger.PostingInput) (ledger.JournalEntry, error) {
	f.inputs = append(f.inputs, in)
	return ledger.JournalEntry{ID: uuid.New(), TenantID: in.TenantID, SourceType: in.SourceType, SourceID: in.SourceID}, nil
}

type fakeMethods struct {
	suspense string
	codes    []string
	enabled  bool
}

func (f *fakeMethods) CashControlledCodes(context.Context, int64) ([]string, error) {
	return f.codes, nil
}

func (f *fakeMethods) CashControlledMethods(context.Context, int64) ([]accounts.Method, error) {
	out := make([]accounts.Method, 0, len(f.codes))
	for _, code := range f.codes {
		out = append(out, accounts.Method{Code: code, AccountCode: code})
	}
	return out, nil
}

func (f *fakeMethods) SuspenseAccountCode(context.Context, int64) (string, error) {
	return f.suspense, nil
}

func (f *fakeMethods) CashControlEnabled(context.Context, int64) (bool, error) {
	return f.enabled, nil
}

type fakeAlerts struct {
	alerts []Alert
}

func (f *fakeAlerts) VarianceAlert(_ context.Context, a Alert) error {
	f.alerts = append(f.alerts, a)
	return nil
}

func adjustment(amount int64) Adjustment {
	return Adjustment{
		TenantID:    1,
		AccountCode: "CASH_MAIN",
		Amount:      decimal.NewFromInt(amount),
		EntryDate:   time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Reason:      "Closing balance variance",
		SourceType:  "cash_session_variance",
		SourceID:    "sess:CASH_MAIN:closing",
	}
}

func TestZeroAmountIsNoOp(t *testing.T) {
	journal := &fakeJournal{}
	p := NewPoster(journal, &fakeMethods{suspense: "SUSPENSE"}, nil, decimal.Zero)

	_, posted, err := p.PostAdjustment(context.Background(), adjustment(0))
	require.NoError(t, err)
	assert.False(t, posted)
	assert.Empty(t, journal.inputs)
}

func TestOverageDebitsAccount(t *testing.T) {
	journal := &fakeJournal{}
	p := NewPoster(journal, &fakeMethods{suspense: "SUSPENSE"}, nil, decimal.Zero)

	_, posted, err := p.PostAdjustment(context.Background(), adjustment(500))
	require.NoError(t, err)
	assert.True(t, posted)
	require.Len(t, journal.inputs, 1)
	lines := journal.inputs[0].Lines
	require.Len(t, lines, 2)
	assert.Equal(t, "CASH_MAIN", lines[0].AccountCode)
	assert.True(t, lines[0].Debit.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, "SUSPENSE", lines[1].AccountCode)
	assert.True(t, lines[1].Credit.Equal(decimal.NewFromInt(500)))
}

func TestShortageCreditsAccount(t *testing.T) {
	journal := &fakeJournal{}
	p := NewPoster(journal, &fakeMethods{suspense: "SUSPENSE"}, nil, decimal.Zero)

	_, posted, err := p.PostAdjustment(context.Background(), adjustment(-300))
	require.NoError(t, err)
	assert.True(t, posted)
	lines := journal.inputs[0].Lines
	assert.True(t, lines[0].Credit.Equal(decimal.NewFromInt(300)))
	assert.True(t, lines[1].Debit.Equal(decimal.NewFromInt(300)))
}

func TestAlertFiresAtThreshold(t *testing.T) {
	journal := &fakeJournal{}
	alerts := &fakeAlerts{}
	p := NewPoster(journal, &fakeMethods{suspense: "SUSPENSE"}, alerts, decimal.NewFromInt(1000))

	_, _, err := p.PostAdjustment(context.Background(), adjustment(-999))
	require.NoError(t, err)
	assert.Empty(t, alerts.alerts)

	_, _, err = p.PostAdjustment(context.Background(), Adjustment{
		TenantID:    1,
		AccountCode: "CASH_MAIN",
		Amount:      decimal.NewFromInt(-1000),
		EntryDate:   time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Reason:      "Closing balance variance",
		SourceType:  "cash_session_variance",
		SourceID:    "sess2:CASH_MAIN:closing",
		Tags:        map[string]string{ledger.TagOpenSession: "sess2"},
	})
	require.NoError(t, err)
	require.Len(t, alerts.alerts, 1)
	assert.Equal(t, "-1000", alerts.alerts[0].Amount)
	assert.Equal(t, "sess2", alerts.alerts[0].SessionID)
}

func TestAdjustmentValidation(t *testing.T) {
	p := NewPoster(&fakeJournal{}, &fakeMethods{suspense: "SUSPENSE"}, nil, decimal.Zero)

	bad := adjustment(100)
	bad.Reason = ""
	_, _, err := p.PostAdjustment(context.Background(), bad)
	require.Error(t, err)

	fractional := adjustment(0)
	fractional.Amount = decimal.RequireFromString("10.5")
	_, _, err = p.PostAdjustment(context.Background(), fractional)
	require.Error(t, err)
}
