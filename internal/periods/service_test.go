package periods

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tillbook/tillbook/internal/accounts"
	"github.com/tillbook/tillbook/internal/cashier"
	"github.com/tillbook/tillbook/internal/reconcile"
)

type fakePeriodRepo struct {
	lock    *PeriodLock
	periods []AccountingPeriod
}

func (f *fakePeriodRepo) GetLock(context.Context, int64) (*PeriodLock, error) {
	return f.lock, nil
}

func (f *fakePeriodRepo) GetLastClosedPeriod(context.Context, int64) (*AccountingPeriod, error) {
	if len(f.periods) == 0 {
		return nil, nil
	}
	last := f.periods[len(f.periods)-1]
	return &last, nil
}

func (f *fakePeriodRepo) ClosePeriod(_ context.Context, p AccountingPeriod) (AccountingPeriod, error) {
	p.ID = int64(len(f.periods) + 1)
	f.periods = append(f.periods, p)
	f.lock = &PeriodLock{TenantID: p.TenantID, LockEndDate: p.EndDate, UpdatedAt: p.ClosedAt}
	return p, nil
}

func (f *fakePeriodRepo) ListPeriods(_ context.Context, _ int64, limit int) ([]AccountingPeriod, error) {
	if limit > len(f.periods) {
		limit = len(f.periods)
	}
	return f.periods[:limit], nil
}

type fakeMethods struct {
	codes   []string
	methods []accounts.Method
	enabled bool
}

func (f *fakeMethods) CashControlledCodes(context.Context, int64) ([]string, error) {
	return f.codes, nil
}

// CashControlledMethods derives same-named methods from codes unless the
// test configures an explicit method list.
func (f *fakeMethods) CashControlledMethods(context.Context, int64) ([]accounts.Method, error) {
	if f.methods != nil {
		return f.methods, nil
	}
	out := make([]accounts.Method, 0, len(f.codes))
	for _, code := range f.codes {
		out = append(out, accounts.Method{Code: code, AccountCode: code})
	}
	return out, nil
}

func (f *fakeMethods) SuspenseAccountCode(context.Context, int64) (string, error) {
	return "SUSPENSE", nil
}

func (f *fakeMethods) CashControlEnabled(context.Context, int64) (bool, error) {
	return f.enabled, nil
}

type fakeRecons struct {
	statuses []reconcile.ScopeStatus
	closing  map[uuid.UUID]reconcile.Status
}

func (f *fakeRecons) StatusForPeriod(context.Context, int64, time.Time) ([]reconcile.ScopeStatus, error) {
	return f.statuses, nil
}

func (f *fakeRecons) FindCashSession(_ context.Context, _ int64, sessionID uuid.UUID, kind reconcile.SessionKind) (reconcile.Reconciliation, error) {
	if kind != reconcile.SessionClosing {
		return reconcile.Reconciliation{}, reconcile.ErrNotFound
	}
	status, ok := f.closing[sessionID]
	if !ok {
		return reconcile.Reconciliation{}, reconcile.ErrNotFound
	}
	return reconcile.Reconciliation{ID: uuid.New(), Status: status}, nil
}

type fakeSessions struct {
	closed []cashier.Session
}

func (f *fakeSessions) ListSessionsClosedBefore(_ context.Context, _ int64, cutoff time.Time) ([]cashier.Session, error) {
	var out []cashier.Session
	for _, s := range f.closed {
		if s.ClosedAt != nil && !s.ClosedAt.After(cutoff) {
			out = append(out, s)
		}
	}
	return out, nil
}

func closedSession(at time.Time) cashier.Session {
	return cashier.Session{ID: uuid.New(), TenantID: 1, Status: cashier.SessionClosed, ClosedAt: &at}
}

func verifiedMethod(code string) reconcile.ScopeStatus {
	return reconcile.ScopeStatus{ID: uuid.New(), Scope: reconcile.ScopeMethod, ScopeRef: code, Status: reconcile.StatusVerified}
}

func newPeriodsService(repo *fakePeriodRepo, methods *fakeMethods, recons *fakeRecons, sessions *fakeSessions) *Service {
	svc := NewService(repo, methods, recons, sessions)
	svc.WithNow(func() time.Time { return time.Date(2026, 4, 5, 12, 0, 0, 0, time.UTC) })
	return svc
}

func TestClosePeriodFutureRejected(t *testing.T) {
	svc := newPeriodsService(&fakePeriodRepo{}, &fakeMethods{}, &fakeRecons{}, &fakeSessions{})

	_, err := svc.ClosePeriod(context.Background(), CloseInput{
		TenantID:      1,
		PeriodEndDate: time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC),
		ActorID:       5,
	})
	require.ErrorIs(t, err, ErrFuturePeriod)
}

func TestClosePeriodMustAdvance(t *testing.T) {
	repo := &fakePeriodRepo{periods: []AccountingPeriod{{
		ID: 1, TenantID: 1, EndDate: time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), Status: PeriodStatusClosed,
	}}}
	svc := newPeriodsService(repo, &fakeMethods{}, &fakeRecons{}, &fakeSessions{})

	_, err := svc.ClosePeriod(context.Background(), CloseInput{
		TenantID:      1,
		PeriodEndDate: time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		ActorID:       5,
	})
	require.ErrorIs(t, err, ErrBeforeLastClose)

	_, err = svc.ClosePeriod(context.Background(), CloseInput{
		TenantID:      1,
		PeriodEndDate: time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC),
		ActorID:       5,
	})
	require.ErrorIs(t, err, ErrBeforeLastClose)
}

func TestClosePeriodListsEveryMissingReconciliation(t *testing.T) {
	sessionAt := time.Date(2026, 3, 20, 18, 0, 0, 0, time.UTC)
	unreconciled := closedSession(sessionAt)
	svc := newPeriodsService(
		&fakePeriodRepo{},
		&fakeMethods{codes: []string{"CASH_MAIN", "CASH_TILL"}, enabled: true},
		&fakeRecons{statuses: []reconcile.ScopeStatus{verifiedMethod("CASH_MAIN")}, closing: map[uuid.UUID]reconcile.Status{}},
		&fakeSessions{closed: []cashier.Session{unreconciled}},
	)

	_, err := svc.ClosePeriod(context.Background(), CloseInput{
		TenantID:      1,
		PeriodEndDate: time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		ActorID:       5,
	})
	require.ErrorIs(t, err, ErrMissingReconciliations)
	assert.Contains(t, err.Error(), "method:CASH_TILL")
	assert.Contains(t, err.Error(), "cash-session:"+unreconciled.ID.String())
	assert.NotContains(t, err.Error(), "method:CASH_MAIN")
}

func TestClosePeriodDraftClosingReconciliationBlocks(t *testing.T) {
	session := closedSession(time.Date(2026, 3, 20, 18, 0, 0, 0, time.UTC))
	svc := newPeriodsService(
		&fakePeriodRepo{},
		&fakeMethods{codes: []string{"CASH_MAIN"}, enabled: true},
		&fakeRecons{
			statuses: []reconcile.ScopeStatus{verifiedMethod("CASH_MAIN")},
			closing:  map[uuid.UUID]reconcile.Status{session.ID: reconcile.StatusDraft},
		},
		&fakeSessions{closed: []cashier.Session{session}},
	)

	_, err := svc.ClosePeriod(context.Background(), CloseInput{
		TenantID:      1,
		PeriodEndDate: time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		ActorID:       5,
	})
	require.ErrorIs(t, err, ErrMissingReconciliations)
	assert.Contains(t, err.Error(), session.ID.String())
}

func TestClosePeriodSucceedsWhenAllVerified(t *testing.T) {
	session := closedSession(time.Date(2026, 3, 20, 18, 0, 0, 0, time.UTC))
	repo := &fakePeriodRepo{}
	svc := newPeriodsService(
		repo,
		&fakeMethods{codes: []string{"CASH_MAIN"}, enabled: true},
		&fakeRecons{
			statuses: []reconcile.ScopeStatus{verifiedMethod("CASH_MAIN")},
			closing:  map[uuid.UUID]reconcile.Status{session.ID: reconcile.StatusVerified},
		},
		&fakeSessions{closed: []cashier.Session{session}},
	)

	end := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	period, err := svc.ClosePeriod(context.Background(), CloseInput{TenantID: 1, PeriodEndDate: end, ActorID: 5})
	require.NoError(t, err)
	assert.Equal(t, PeriodStatusClosed, period.Status)
	assert.True(t, period.EndDate.Equal(end))
	assert.EqualValues(t, 5, period.ClosedBy)

	require.NotNil(t, repo.lock)
	assert.True(t, repo.lock.LockEndDate.Equal(end))
}

func TestClosePeriodCashControlDisabledSkipsSessions(t *testing.T) {
	session := closedSession(time.Date(2026, 3, 20, 18, 0, 0, 0, time.UTC))
	svc := newPeriodsService(
		&fakePeriodRepo{},
		&fakeMethods{codes: []string{"CASH_MAIN"}, enabled: false},
		&fakeRecons{statuses: []reconcile.ScopeStatus{verifiedMethod("CASH_MAIN")}, closing: map[uuid.UUID]reconcile.Status{}},
		&fakeSessions{closed: []cashier.Session{session}},
	)

	_, err := svc.ClosePeriod(context.Background(), CloseInput{
		TenantID:      1,
		PeriodEndDate: time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		ActorID:       5,
	})
	require.NoError(t, err, "session reconciliation is only required under cash control")
}

func TestCurrentStatusReportsLockAndMissing(t *testing.T) {
	lockEnd := time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)
	repo := &fakePeriodRepo{
		lock: &PeriodLock{TenantID: 1, LockEndDate: lockEnd},
		periods: []AccountingPeriod{{
			ID: 1, TenantID: 1, EndDate: lockEnd, Status: PeriodStatusClosed,
		}},
	}
	svc := newPeriodsService(repo, &fakeMethods{codes: []string{"CASH_MAIN"}}, &fakeRecons{}, &fakeSessions{})

	status, err := svc.CurrentStatus(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, status.LockEndDate)
	assert.True(t, status.LockEndDate.Equal(lockEnd))
	require.NotNil(t, status.LastClosed)
	assert.Equal(t, []string{"method:CASH_MAIN"}, status.Missing)
}

func TestClosePeriodMatchesMethodCodeNotAccountCode(t *testing.T) {
	// Method TILL_CASH is backed by account CASH_TILL; completeness keys
	// on the method code the scope ref carries.
	methods := &fakeMethods{
		codes:   []string{"CASH_TILL"},
		methods: []accounts.Method{{Code: "TILL_CASH", AccountCode: "CASH_TILL"}},
		enabled: true,
	}

	svc := newPeriodsService(&fakePeriodRepo{}, methods, &fakeRecons{}, &fakeSessions{})
	_, err := svc.ClosePeriod(context.Background(), CloseInput{
		TenantID:      1,
		PeriodEndDate: time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		ActorID:       5,
	})
	require.ErrorIs(t, err, ErrMissingReconciliations)
	assert.Contains(t, err.Error(), "method:TILL_CASH")
	assert.NotContains(t, err.Error(), "method:CASH_TILL")

	svc = newPeriodsService(
		&fakePeriodRepo{},
		methods,
		&fakeRecons{statuses: []reconcile.ScopeStatus{verifiedMethod("TILL_CASH")}},
		&fakeSessions{},
	)
	_, err = svc.ClosePeriod(context.Background(), CloseInput{
		TenantID:      1,
		PeriodEndDate: time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		ActorID:       5,
	})
	require.NoError(t, err, "a reconciliation referenced by method code satisfies the close")
}
