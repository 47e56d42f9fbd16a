package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tillbook/tillbook/internal/accounts"
	"github.com/tillbook/tillbook/internal/platform/db"
)

// Repository encapsulates journal storage. Mutations go through WithTx so
// the idempotency, balance, and period checks observe the same snapshot as
// the write.
type Repository interface {
	GetBySource(ctx context.Context, tenantID int64, sourceType, sourceID string) (JournalEntry, error)
	GetEntry(ctx context.Context, tenantID int64, id uuid.UUID) (JournalEntry, error)
	ListEntries(ctx context.Context, tenantID int64, from, to time.Time, limit int) ([]JournalEntry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the operations available inside a posting transaction.
type TxRepository interface {
	GetBySource(ctx context.Context, tenantID int64, sourceType, sourceID string) (JournalEntry, error)
	ResolveAccounts(ctx context.Context, tenantID int64, codes []string) (map[string]accounts.Account, error)
	LockEndDate(ctx context.Context, tenantID int64) (*time.Time, error)
	InsertEntry(ctx context.Context, in PostingInput) (JournalEntry, error)
	InsertLines(ctx context.Context, entry JournalEntry, resolved map[string]accounts.Account, lines []LineInput) ([]JournalLine, error)
	GetEntryWithLines(ctx context.Context, tenantID int64, id uuid.UUID) (JournalEntry, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `id, tenant_id, entry_date, posted_at, source_type, source_id, reversal_of, memo`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.TenantID, &e.EntryDate, &e.PostedAt, &e.SourceType, &e.SourceID, &e.ReversalOf, &e.Memo)
	return e, err
}

func (r *repository) GetBySource(ctx context.Context, tenantID int64, sourceType, sourceID string) (JournalEntry, error) {
	return getBySource(ctx, r.db, tenantID, sourceType, sourceID)
}

func (r *repository) GetEntry(ctx context.Context, tenantID int64, id uuid.UUID) (JournalEntry, error) {
	return getEntryWithLines(ctx, r.db, tenantID, id)
}

func (r *repository) ListEntries(ctx context.Context, tenantID int64, from, to time.Time, limit int) ([]JournalEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+` FROM journal_entries
WHERE tenant_id=$1 AND entry_date >= $2 AND entry_date <= $3 ORDER BY entry_date DESC, posted_at DESC LIMIT $4`,
		tenantID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// WithTx delegates to the shared transaction helper, so a posting issued
// inside a composite flow (session close, manual reconciliation) joins
// the caller's transaction instead of committing on its own.
func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.db, func(ctx context.Context) error {
		return fn(ctx, &txRepository{q: db.From(ctx, r.db)})
	})
}

type txRepository struct {
	q db.Querier
}

func (r *txRepository) GetBySource(ctx context.Context, tenantID int64, sourceType, sourceID string) (JournalEntry, error) {
	return getBySource(ctx, r.q, tenantID, sourceType, sourceID)
}

func (r *txRepository) ResolveAccounts(ctx context.Context, tenantID int64, codes []string) (map[string]accounts.Account, error) {
	return accounts.GetByCodes(ctx, r.q, tenantID, codes)
}

func (r *txRepository) LockEndDate(ctx context.Context, tenantID int64) (*time.Time, error) {
	var end time.Time
	err := r.q.QueryRow(ctx, `SELECT lock_end_date FROM period_locks WHERE tenant_id=$1`, tenantID).Scan(&end)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &end, nil
}

func (r *txRepository) InsertEntry(ctx context.Context, in PostingInput) (JournalEntry, error) {
	row := r.q.QueryRow(ctx, `INSERT INTO journal_entries (tenant_id, entry_date, source_type, source_id, reversal_of, memo)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, posted_at`,
		in.TenantID, in.EntryDate, in.SourceType, in.SourceID, in.ReversalOf, in.Memo)
	entry := JournalEntry{
		TenantID:   in.TenantID,
		EntryDate:  in.EntryDate,
		SourceType: in.SourceType,
		SourceID:   in.SourceID,
		ReversalOf: in.ReversalOf,
		Memo:       in.Memo,
	}
	if err := row.Scan(&entry.ID, &entry.PostedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return JournalEntry{}, ErrDuplicateSource
		}
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entry JournalEntry, resolved map[string]accounts.Account, lines []LineInput) ([]JournalLine, error) {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		account := resolved[line.AccountCode]
		stored := JournalLine{
			EntryID:     entry.ID,
			TenantID:    entry.TenantID,
			AccountID:   account.ID,
			AccountCode: account.Code,
			Debit:       line.Debit,
			Credit:      line.Credit,
			Tags:        line.Tags,
		}
		tags := line.Tags
		if tags == nil {
			tags = map[string]string{}
		}
		err := r.q.QueryRow(ctx, `INSERT INTO journal_lines (entry_id, tenant_id, account_id, account_code, debit, credit, tags)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
			entry.ID, entry.TenantID, account.ID, account.Code, line.Debit, line.Credit, tags).Scan(&stored.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	return out, nil
}

func (r *txRepository) GetEntryWithLines(ctx context.Context, tenantID int64, id uuid.UUID) (JournalEntry, error) {
	return getEntryWithLines(ctx, r.q, tenantID, id)
}

func getBySource(ctx context.Context, q accounts.Querier, tenantID int64, sourceType, sourceID string) (JournalEntry, error) {
	entry, err := scanEntry(q.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries
WHERE tenant_id=$1 AND source_type=$2 AND source_id=$3`, tenantID, sourceType, sourceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	entry.Lines, err = loadLines(ctx, q, tenantID, entry.ID)
	return entry, err
}

func getEntryWithLines(ctx context.Context, q accounts.Querier, tenantID int64, id uuid.UUID) (JournalEntry, error) {
	entry, err := scanEntry(q.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries
WHERE tenant_id=$1 AND id=$2`, tenantID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrEntryNotFound
		}
		return JournalEntry{}, err
	}
	entry.Lines, err = loadLines(ctx, q, tenantID, entry.ID)
	return entry, err
}

func loadLines(ctx context.Context, q accounts.Querier, tenantID int64, entryID uuid.UUID) ([]JournalLine, error) {
	rows, err := q.Query(ctx, `SELECT id, entry_id, tenant_id, account_id, account_code, debit, credit, tags
FROM journal_lines WHERE tenant_id=$1 AND entry_id=$2 ORDER BY id ASC`, tenantID, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.EntryID, &line.TenantID, &line.AccountID, &line.AccountCode, &line.Debit, &line.Credit, &line.Tags); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}
