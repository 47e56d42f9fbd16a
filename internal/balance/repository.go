package balance

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository aggregates posted journal lines.
type Repository interface {
	SumAccountLines(ctx context.Context, tenantID int64, accountCode string, q Query) (debit, credit decimal.Decimal, err error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) SumAccountLines(ctx context.Context, tenantID int64, accountCode string, q Query) (decimal.Decimal, decimal.Decimal, error) {
	sql := `SELECT COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
WHERE l.tenant_id = $1 AND l.account_code = $2`
	args := []any{tenantID, accountCode}
	if q.AsOf != nil {
		args = append(args, *q.AsOf)
		sql += ` AND e.entry_date <= $3`
	}
	if len(q.Tags) > 0 {
		args = append(args, q.Tags)
		sql += ` AND l.tags @> $` + strconv.Itoa(len(args))
	}
	var debit, credit decimal.Decimal
	if err := r.db.QueryRow(ctx, sql, args...).Scan(&debit, &credit); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return debit, credit, nil
}
