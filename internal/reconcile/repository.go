package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tillbook/tillbook/internal/platform/db"
)

type Repository interface {
	Insert(ctx context.Context, r Reconciliation) (Reconciliation, error)
	Get(ctx context.Context, tenantID int64, id uuid.UUID) (Reconciliation, error)
	FindByScopeRef(ctx context.Context, tenantID int64, scope Scope, ref string) (Reconciliation, error)
	MarkVerified(ctx context.Context, tenantID int64, id uuid.UUID, reviewerID int64, at time.Time) error
	ListCovering(ctx context.Context, tenantID int64, date time.Time) ([]ScopeStatus, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const reconColumns = `id, tenant_id, scope, scope_ref, period_start, period_end, status, expected_balance, actual_balance, variance_balance, notes, created_by, verified_by, verified_at, created_at`

func scanRecon(row pgx.Row) (Reconciliation, error) {
	var r Reconciliation
	err := row.Scan(&r.ID, &r.TenantID, &r.Scope, &r.ScopeRef, &r.PeriodStart, &r.PeriodEnd, &r.Status,
		&r.Expected, &r.Actual, &r.Variance, &r.Notes, &r.CreatedBy, &r.VerifiedBy, &r.VerifiedAt, &r.CreatedAt)
	return r, err
}

// Insert persists the header and its per-account junction rows in one
// transaction, joining the caller's when one is on the context.
func (p *repository) Insert(ctx context.Context, r Reconciliation) (Reconciliation, error) {
	err := db.WithTx(ctx, p.db, func(ctx context.Context) error {
		q := db.From(ctx, p.db)
		row := q.QueryRow(ctx, `INSERT INTO reconciliations
(tenant_id, scope, scope_ref, period_start, period_end, status, expected_balance, actual_balance, variance_balance, notes, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id, created_at`,
			r.TenantID, r.Scope, r.ScopeRef, r.PeriodStart, r.PeriodEnd, r.Status,
			r.Expected, r.Actual, r.Variance, r.Notes, r.CreatedBy)
		if err := row.Scan(&r.ID, &r.CreatedAt); err != nil {
			return err
		}
		for i := range r.Accounts {
			r.Accounts[i].ReconciliationID = r.ID
			acc := r.Accounts[i]
			if _, err := q.Exec(ctx, `INSERT INTO reconciliation_accounts
(reconciliation_id, account_id, account_code, declared_amount, expected_amount, variance_amount)
VALUES ($1,$2,$3,$4,$5,$6)`,
				acc.ReconciliationID, acc.AccountID, acc.AccountCode, acc.Declared, acc.Expected, acc.Variance); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Reconciliation{}, err
	}
	return r, nil
}

func (p *repository) Get(ctx context.Context, tenantID int64, id uuid.UUID) (Reconciliation, error) {
	r, err := scanRecon(p.db.QueryRow(ctx, `SELECT `+reconColumns+` FROM reconciliations WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reconciliation{}, ErrNotFound
		}
		return Reconciliation{}, err
	}
	r.Accounts, err = p.loadAccounts(ctx, r.ID)
	return r, err
}

func (p *repository) FindByScopeRef(ctx context.Context, tenantID int64, scope Scope, ref string) (Reconciliation, error) {
	r, err := scanRecon(p.db.QueryRow(ctx, `SELECT `+reconColumns+` FROM reconciliations
WHERE tenant_id=$1 AND scope=$2 AND scope_ref=$3 ORDER BY created_at DESC LIMIT 1`, tenantID, scope, ref))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reconciliation{}, ErrNotFound
		}
		return Reconciliation{}, err
	}
	r.Accounts, err = p.loadAccounts(ctx, r.ID)
	return r, err
}

func (p *repository) MarkVerified(ctx context.Context, tenantID int64, id uuid.UUID, reviewerID int64, at time.Time) error {
	cmd, err := p.db.Exec(ctx, `UPDATE reconciliations SET status=$3, verified_by=$4, verified_at=$5
WHERE tenant_id=$1 AND id=$2 AND status=$6`, tenantID, id, StatusVerified, reviewerID, at, StatusDraft)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *repository) ListCovering(ctx context.Context, tenantID int64, date time.Time) ([]ScopeStatus, error) {
	rows, err := p.db.Query(ctx, `SELECT id, scope, scope_ref, status, variance_balance FROM reconciliations
WHERE tenant_id=$1 AND period_start <= $2 AND period_end >= $2 ORDER BY created_at ASC`, tenantID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ScopeStatus
	for rows.Next() {
		var s ScopeStatus
		if err := rows.Scan(&s.ID, &s.Scope, &s.ScopeRef, &s.Status, &s.Variance); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *repository) loadAccounts(ctx context.Context, reconID uuid.UUID) ([]AccountRow, error) {
	rows, err := p.db.Query(ctx, `SELECT reconciliation_id, account_id, account_code, declared_amount, expected_amount, variance_amount
FROM reconciliation_accounts WHERE reconciliation_id=$1 ORDER BY account_code`, reconID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountRow
	for rows.Next() {
		var a AccountRow
		if err := rows.Scan(&a.ReconciliationID, &a.AccountID, &a.AccountCode, &a.Declared, &a.Expected, &a.Variance); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
