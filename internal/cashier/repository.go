package cashier

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tillbook/tillbook/internal/platform/db"
)

// Repository persists sessions and cash counts. Statements join the
// transaction on the context when one is present. Session ids are stored as
// text because historical rows were imported from a system with loose id
// formats; reads validate and skip anything that does not parse.
type Repository interface {
	InsertSession(ctx context.Context, s Session) (Session, error)
	GetSession(ctx context.Context, tenantID int64, id uuid.UUID) (Session, error)
	GetOpenSession(ctx context.Context, tenantID int64) (Session, error)
	CloseSession(ctx context.Context, tenantID int64, id uuid.UUID, closedBy int64, closedAt time.Time, declaredTotal decimal.Decimal) error
	InsertCount(ctx context.Context, c CashCount) (CashCount, error)
	GetCount(ctx context.Context, tenantID int64, id uuid.UUID) (CashCount, error)
	MarkCountReviewed(ctx context.Context, tenantID int64, id uuid.UUID, reviewerID int64, at time.Time) (CashCount, error)
	ListSessionsClosedBefore(ctx context.Context, tenantID int64, cutoff time.Time) ([]Session, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const sessionColumns = `id, tenant_id, cashier_id, status, opened_at, closed_at, closed_by, closing_declared_total`

type rawSession struct {
	Session
	rawID string
}

func scanSession(row pgx.Row) (rawSession, error) {
	var s rawSession
	var total *decimal.Decimal
	err := row.Scan(&s.rawID, &s.TenantID, &s.CashierID, &s.Status, &s.OpenedAt, &s.ClosedAt, &s.ClosedBy, &total)
	if err != nil {
		return rawSession{}, err
	}
	if total != nil {
		s.ClosingDeclaredTotal = *total
	}
	return s, nil
}

// resolve validates the stored id. Rows with malformed ids are corrupt
// legacy data and are never surfaced.
func (s rawSession) resolve() (Session, bool) {
	id, err := uuid.Parse(s.rawID)
	if err != nil {
		return Session{}, false
	}
	out := s.Session
	out.ID = id
	return out, true
}

func (r *repository) InsertSession(ctx context.Context, s Session) (Session, error) {
	s.ID = uuid.New()
	err := db.From(ctx, r.db).QueryRow(ctx, `INSERT INTO cashier_sessions (id, tenant_id, cashier_id, status)
VALUES ($1,$2,$3,$4) RETURNING opened_at`, s.ID.String(), s.TenantID, s.CashierID, SessionOpen).Scan(&s.OpenedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "uq_cashier_sessions_open" {
			return Session{}, ErrSessionAlreadyOpen
		}
		return Session{}, err
	}
	s.Status = SessionOpen
	return s, nil
}

func (r *repository) GetSession(ctx context.Context, tenantID int64, id uuid.UUID) (Session, error) {
	raw, err := scanSession(db.From(ctx, r.db).QueryRow(ctx, `SELECT `+sessionColumns+` FROM cashier_sessions
WHERE tenant_id=$1 AND id=$2`, tenantID, id.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	session, ok := raw.resolve()
	if !ok {
		return Session{}, ErrSessionNotFound
	}
	return session, nil
}

func (r *repository) GetOpenSession(ctx context.Context, tenantID int64) (Session, error) {
	rows, err := db.From(ctx, r.db).Query(ctx, `SELECT `+sessionColumns+` FROM cashier_sessions
WHERE tenant_id=$1 AND status=$2 ORDER BY opened_at DESC`, tenantID, SessionOpen)
	if err != nil {
		return Session{}, err
	}
	defer rows.Close()
	for rows.Next() {
		raw, err := scanSession(rows)
		if err != nil {
			return Session{}, err
		}
		if session, ok := raw.resolve(); ok {
			return session, nil
		}
	}
	if err := rows.Err(); err != nil {
		return Session{}, err
	}
	return Session{}, ErrSessionNotFound
}

func (r *repository) CloseSession(ctx context.Context, tenantID int64, id uuid.UUID, closedBy int64, closedAt time.Time, declaredTotal decimal.Decimal) error {
	cmd, err := db.From(ctx, r.db).Exec(ctx, `UPDATE cashier_sessions
SET status=$3, closed_at=$4, closed_by=$5, closing_declared_total=$6
WHERE tenant_id=$1 AND id=$2 AND status=$7`,
		tenantID, id.String(), SessionClosed, closedAt, closedBy, declaredTotal, SessionOpen)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrSessionClosed
	}
	return nil
}

func (r *repository) InsertCount(ctx context.Context, c CashCount) (CashCount, error) {
	c.ID = uuid.New()
	err := db.From(ctx, r.db).QueryRow(ctx, `INSERT INTO cash_drawer_counts
(id, session_id, tenant_id, count_type, declared_cash, expected_cash, variance, reason, counted_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING created_at`,
		c.ID, c.SessionID.String(), c.TenantID, c.Type, c.DeclaredCash, c.ExpectedCash, c.Variance, c.Reason, c.CountedBy).
		Scan(&c.CreatedAt)
	if err != nil {
		return CashCount{}, err
	}
	return c, nil
}

func (r *repository) GetCount(ctx context.Context, tenantID int64, id uuid.UUID) (CashCount, error) {
	return r.scanCount(db.From(ctx, r.db).QueryRow(ctx, `SELECT id, session_id, tenant_id, count_type, declared_cash, expected_cash, variance, reason, counted_by, reviewed_by, reviewed_at, created_at
FROM cash_drawer_counts WHERE tenant_id=$1 AND id=$2`, tenantID, id))
}

func (r *repository) MarkCountReviewed(ctx context.Context, tenantID int64, id uuid.UUID, reviewerID int64, at time.Time) (CashCount, error) {
	return r.scanCount(db.From(ctx, r.db).QueryRow(ctx, `UPDATE cash_drawer_counts SET reviewed_by=$3, reviewed_at=$4
WHERE tenant_id=$1 AND id=$2
RETURNING id, session_id, tenant_id, count_type, declared_cash, expected_cash, variance, reason, counted_by, reviewed_by, reviewed_at, created_at`,
		tenantID, id, reviewerID, at))
}

func (r *repository) ListSessionsClosedBefore(ctx context.Context, tenantID int64, cutoff time.Time) ([]Session, error) {
	rows, err := db.From(ctx, r.db).Query(ctx, `SELECT `+sessionColumns+` FROM cashier_sessions
WHERE tenant_id=$1 AND status=$2 AND closed_at <= $3 ORDER BY closed_at ASC`, tenantID, SessionClosed, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		raw, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		if session, ok := raw.resolve(); ok {
			out = append(out, session)
		}
	}
	return out, rows.Err()
}

func (r *repository) scanCount(row pgx.Row) (CashCount, error) {
	var c CashCount
	var rawSessionID string
	err := row.Scan(&c.ID, &rawSessionID, &c.TenantID, &c.Type, &c.DeclaredCash, &c.ExpectedCash, &c.Variance, &c.Reason, &c.CountedBy, &c.ReviewedBy, &c.ReviewedAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CashCount{}, ErrCountNotFound
		}
		return CashCount{}, err
	}
	sessionID, err := uuid.Parse(rawSessionID)
	if err != nil {
		return CashCount{}, ErrCountNotFound
	}
	c.SessionID = sessionID
	return c, nil
}
