package accounts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx shared by pools and transactions, so the
// directory can be consulted both inside and outside posting transactions.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ErrAccountNotFound indicates the requested account code does not exist
// for the tenant.
var ErrAccountNotFound = errors.New("accounts: account not found")

type Repository interface {
	GetByCode(ctx context.Context, tenantID int64, code string) (Account, error)
	GetByCodes(ctx context.Context, tenantID int64, codes []string) (map[string]Account, error)
	ListChildren(ctx context.Context, tenantID int64, parentID uuid.UUID) ([]Account, error)
	List(ctx context.Context, tenantID int64) ([]Account, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, tenant_id, code, name, type, parent_id, is_parent, is_active, is_system, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Type, &a.ParentID, &a.IsParent, &a.IsActive, &a.IsSystem, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *repository) GetByCode(ctx context.Context, tenantID int64, code string) (Account, error) {
	return GetByCode(ctx, r.db, tenantID, code)
}

func (r *repository) GetByCodes(ctx context.Context, tenantID int64, codes []string) (map[string]Account, error) {
	return GetByCodes(ctx, r.db, tenantID, codes)
}

func (r *repository) ListChildren(ctx context.Context, tenantID int64, parentID uuid.UUID) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND parent_id=$2 ORDER BY code`, tenantID, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

func (r *repository) List(ctx context.Context, tenantID int64) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 ORDER BY code`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAccounts(rows)
}

// GetByCode resolves a single account using any querier. The posting engine
// calls this form with its open transaction so lock and lookup stay
// consistent.
func GetByCode(ctx context.Context, q Querier, tenantID int64, code string) (Account, error) {
	a, err := scanAccount(q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND code=$2`, tenantID, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

// GetByCodes loads the referenced accounts into a map keyed by code. Codes
// absent from the result are unresolved; the caller decides how to report
// them.
func GetByCodes(ctx context.Context, q Querier, tenantID int64, codes []string) (map[string]Account, error) {
	if len(codes) == 0 {
		return map[string]Account{}, nil
	}
	rows, err := q.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND code = ANY($2)`, tenantID, codes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]Account, len(codes))
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out[a.Code] = a
	}
	return out, rows.Err()
}

type writer struct {
	db *pgxpool.Pool
}

// NewWriter returns the setup-time account writer.
func NewWriter(db *pgxpool.Pool) Writer {
	return &writer{db: db}
}

func (w *writer) Insert(ctx context.Context, a Account) (Account, error) {
	row := w.db.QueryRow(ctx, `INSERT INTO accounts (tenant_id, code, name, type, parent_id, is_parent, is_active, is_system)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, created_at, updated_at`,
		a.TenantID, a.Code, a.Name, a.Type, a.ParentID, a.IsParent, a.IsActive, a.IsSystem)
	if err := row.Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Account{}, err
	}
	return a, nil
}

func collectAccounts(rows pgx.Rows) ([]Account, error) {
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
