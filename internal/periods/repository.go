package periods

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tillbook/tillbook/internal/platform/db"
)

type Repository interface {
	GetLock(ctx context.Context, tenantID int64) (*PeriodLock, error)
	GetLastClosedPeriod(ctx context.Context, tenantID int64) (*AccountingPeriod, error)
	ClosePeriod(ctx context.Context, p AccountingPeriod) (AccountingPeriod, error)
	ListPeriods(ctx context.Context, tenantID int64, limit int) ([]AccountingPeriod, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) GetLock(ctx context.Context, tenantID int64) (*PeriodLock, error) {
	var lock PeriodLock
	err := r.db.QueryRow(ctx, `SELECT tenant_id, lock_end_date, updated_at FROM period_locks WHERE tenant_id=$1`, tenantID).
		Scan(&lock.TenantID, &lock.LockEndDate, &lock.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &lock, nil
}

func (r *repository) GetLastClosedPeriod(ctx context.Context, tenantID int64) (*AccountingPeriod, error) {
	var p AccountingPeriod
	err := r.db.QueryRow(ctx, `SELECT id, tenant_id, end_date, status, closed_by, closed_at FROM accounting_periods
WHERE tenant_id=$1 ORDER BY end_date DESC LIMIT 1`, tenantID).
		Scan(&p.ID, &p.TenantID, &p.EndDate, &p.Status, &p.ClosedBy, &p.ClosedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// ClosePeriod records the closed period and advances the posting lock in
// one transaction.
func (r *repository) ClosePeriod(ctx context.Context, p AccountingPeriod) (AccountingPeriod, error) {
	err := db.WithTx(ctx, r.db, func(ctx context.Context) error {
		q := db.From(ctx, r.db)
		if err := q.QueryRow(ctx, `INSERT INTO accounting_periods (tenant_id, end_date, status, closed_by, closed_at)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, p.TenantID, p.EndDate, p.Status, p.ClosedBy, p.ClosedAt).Scan(&p.ID); err != nil {
			return err
		}
		_, err := q.Exec(ctx, `INSERT INTO period_locks (tenant_id, lock_end_date, updated_at)
VALUES ($1,$2,$3)
ON CONFLICT (tenant_id) DO UPDATE SET lock_end_date = EXCLUDED.lock_end_date, updated_at = EXCLUDED.updated_at
WHERE period_locks.lock_end_date < EXCLUDED.lock_end_date`, p.TenantID, p.EndDate, p.ClosedAt)
		return err
	})
	if err != nil {
		return AccountingPeriod{}, err
	}
	return p, nil
}

func (r *repository) ListPeriods(ctx context.Context, tenantID int64, limit int) ([]AccountingPeriod, error) {
	if limit <= 0 || limit > 200 {
		limit = 24
	}
	rows, err := r.db.Query(ctx, `SELECT id, tenant_id, end_date, status, closed_by, closed_at FROM accounting_periods
WHERE tenant_id=$1 ORDER BY end_date DESC LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountingPeriod
	for rows.Next() {
		var p AccountingPeriod
		if err := rows.Scan(&p.ID, &p.TenantID, &p.EndDate, &p.Status, &p.ClosedBy, &p.ClosedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
