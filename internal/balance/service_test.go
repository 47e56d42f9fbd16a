package balance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillbook/tillbook/internal/accounts"
)

type fakeAccounts struct {
	byCode   map[string]accounts.Account
	children map[uuid.UUID][]accounts.Account
}

func (f *fakeAccounts) GetByCode(_ context.Context, _ int64, code string) (accounts.Account, error) {
	if a, ok := f.byCode[code]; ok {
		return a, nil
	}
	return accounts.Account{}, accounts.ErrAccountNotFound
}

func (f *fakeAccounts) GetByCodes(_ context.Context, _ int64, codes []string) (map[string]accounts.Account, error) {
	out := map[string]accounts.Account{}
	for _, code := range codes {
		if a, ok := f.byCode[code]; ok {
			out[code] = a
		}
	}
	return out, nil
}

func (f *fakeAccounts) ListChildren(_ context.Context, _ int64, parentID uuid.UUID) ([]accounts.Account, error) {
	return f.children[parentID], nil
}

func (f *fakeAccounts) List(_ context.Context, _ int64) ([]accounts.Account, error) {
	var out []accounts.Account
	for _, a := range f.byCode {
		out = append(out, a)
	}
	return out, nil
}

type sumCall struct {
	code string
	q    Query
}

type fakeSums struct {
	sums  map[string][2]int64
	calls []sumCall
}

func (f *fakeSums) SumAccountLines(_ context.Context, _ int64, accountCode string, q Query) (decimal.Decimal, decimal.Decimal, error) {
	f.calls = append(f.calls, sumCall{code: accountCode, q: q})
	pair := f.sums[accountCode]
	return decimal.NewFromInt(pair[0]), decimal.NewFromInt(pair[1]), nil
}

func chart() (*fakeAccounts, accounts.Account) {
	parent := accounts.Account{ID: uuid.New(), TenantID: 1, Code: "CASH", IsParent: true}
	cashMain := accounts.Account{ID: uuid.New(), TenantID: 1, Code: "CASH_MAIN", ParentID: &parent.ID, IsActive: true}
	cashTill := accounts.Account{ID: uuid.New(), TenantID: 1, Code: "CASH_TILL", ParentID: &parent.ID, IsActive: true}
	return &fakeAccounts{
		byCode: map[string]accounts.Account{
			"CASH":      parent,
			"CASH_MAIN": cashMain,
			"CASH_TILL": cashTill,
		},
		children: map[uuid.UUID][]accounts.Account{
			parent.ID: {cashMain, cashTill},
		},
	}, parent
}

func TestLeafBalance(t *testing.T) {
	dir, _ := chart()
	sums := &fakeSums{sums: map[string][2]int64{"CASH_MAIN": {7000, 2000}}}
	svc := NewService(sums, dir, nil)

	b, err := svc.GetAccountBalance(context.Background(), 1, "CASH_MAIN", Query{})
	require.NoError(t, err)
	assert.Equal(t, "CASH_MAIN", b.AccountCode)
	assert.True(t, b.DebitTotal.Equal(decimal.NewFromInt(7000)))
	assert.True(t, b.CreditTotal.Equal(decimal.NewFromInt(2000)))
	assert.True(t, b.Balance.Equal(decimal.NewFromInt(5000)))
}

func TestUnknownAccount(t *testing.T) {
	dir, _ := chart()
	svc := NewService(&fakeSums{sums: map[string][2]int64{}}, dir, nil)

	_, err := svc.GetAccountBalance(context.Background(), 1, "NOPE", Query{})
	require.ErrorIs(t, err, accounts.ErrAccountNotFound)
}

func TestParentRollsUpChildren(t *testing.T) {
	dir, _ := chart()
	sums := &fakeSums{sums: map[string][2]int64{
		"CASH_MAIN": {7000, 2000},
		"CASH_TILL": {1500, 500},
	}}
	svc := NewService(sums, dir, nil)

	b, err := svc.GetAccountBalance(context.Background(), 1, "CASH", Query{})
	require.NoError(t, err)
	assert.True(t, b.DebitTotal.Equal(decimal.NewFromInt(8500)))
	assert.True(t, b.CreditTotal.Equal(decimal.NewFromInt(2500)))
	assert.True(t, b.Balance.Equal(decimal.NewFromInt(6000)))
	assert.Len(t, sums.calls, 2)
}

func TestParentPropagatesDateNotTags(t *testing.T) {
	dir, _ := chart()
	sums := &fakeSums{sums: map[string][2]int64{}}
	svc := NewService(sums, dir, nil)

	asOf := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	_, err := svc.GetAccountBalance(context.Background(), 1, "CASH", Query{AsOf: &asOf})
	require.NoError(t, err)
	require.Len(t, sums.calls, 2)
	for _, call := range sums.calls {
		require.NotNil(t, call.q.AsOf)
		assert.True(t, call.q.AsOf.Equal(asOf))
		assert.Empty(t, call.q.Tags)
	}
}

func TestTagFilterOnParentRejected(t *testing.T) {
	dir, _ := chart()
	svc := NewService(&fakeSums{sums: map[string][2]int64{}}, dir, nil)

	_, err := svc.GetAccountBalance(context.Background(), 1, "CASH", Query{Tags: map[string]string{"openSessionId": "abc"}})
	require.ErrorIs(t, err, ErrTagFilterOnParent)
}

func TestTagFilterOnLeafPassesThrough(t *testing.T) {
	dir, _ := chart()
	sums := &fakeSums{sums: map[string][2]int64{"CASH_MAIN": {300, 0}}}
	svc := NewService(sums, dir, nil)

	b, err := svc.GetAccountBalance(context.Background(), 1, "CASH_MAIN", Query{Tags: map[string]string{"openSessionId": "abc"}})
	require.NoError(t, err)
	assert.True(t, b.Balance.Equal(decimal.NewFromInt(300)))
	require.Len(t, sums.calls, 1)
	assert.Equal(t, "abc", sums.calls[0].q.Tags["openSessionId"])
}

func TestCacheKeyCanonical(t *testing.T) {
	asOf := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	a := CacheKey(1, "CASH_MAIN", Query{AsOf: &asOf, Tags: map[string]string{"b": "2", "a": "1"}})
	b := CacheKey(1, "CASH_MAIN", Query{AsOf: &asOf, Tags: map[string]string{"a": "1", "b": "2"}})
	assert.Equal(t, a, b)
	assert.Equal(t, "bal:1:CASH_MAIN:2026-02-28:a=1,b=2", a)

	bare := CacheKey(1, "CASH_MAIN", Query{})
	assert.Equal(t, "bal:1:CASH_MAIN::", bare)
	assert.NotEqual(t, a, bare)
}
