package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"moneybook/internal/core"

	_ "modernc.org/sqlite"
)

const (
	SyncPending SyncStatus = "pending"
	SyncDone    SyncStatus = "synced"
	SyncError   SyncStatus = "error"
	// SyncDeleted counts tombstones: rows deleted locally whose mirror copy
	// has not been removed yet.
	SyncDeleted SyncStatus = "deleted"
)

var ErrNotFound = errors.New("transaction not stored")

type (
	SyncStatus string

	// StoredTransaction is a transaction with its sync bookkeeping. Version
	// starts at 1 and grows with every update so that stale sync messages
	// can be recognised.
	StoredTransaction struct {
		core.Transaction
		Version    int64
		SyncStatus SyncStatus
		UpdatedAt  time.Time
	}

	// PendingSync is the minimal data needed to re-queue a sync message.
	PendingSync struct {
		ID        string
		Version   int64
		UpdatedAt time.Time
	}
)

type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Migrations get their own handle: the migrate driver closes it.
	migrateDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open migration database: %w", err)
	}
	version, err := RunMigrations(migrateDB)
	if err != nil {
		migrateDB.Close()
		return nil, err
	}
	slog.Info("Database schema ready", "path", dbPath, "version", version)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// single writer; modernc serialises access per connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{db: db, now: time.Now}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ListTransactions returns every stored transaction, newest inserted first.
func (r *SQLiteRepository) ListTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, amount_cents, occurred_at, description, category, type, version, sync_status, updated_at
		FROM transactions
		ORDER BY seq DESC`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		st, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st.Transaction)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id string) (StoredTransaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, amount_cents, occurred_at, description, category, type, version, sync_status, updated_at
		FROM transactions
		WHERE id = ?`, id)
	st, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredTransaction{}, fmt.Errorf("get transaction %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return StoredTransaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return st, nil
}

// InsertTransaction stores a new transaction at the head of the collection
// and marks it pending sync.
func (r *SQLiteRepository) InsertTransaction(ctx context.Context, tx core.Transaction) (StoredTransaction, error) {
	now := r.stamp()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, seq, amount_cents, occurred_at, description, category, type, version, sync_status, created_at, updated_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM transactions), ?, ?, ?, ?, ?, 1, ?, ?, ?)`,
		tx.ID, tx.Amount.Cents, formatTime(tx.Date), tx.Description, tx.Category, string(tx.Type),
		string(SyncPending), now, now)
	if err != nil {
		return StoredTransaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	// a reinserted ID must not be removed from the mirror by an old tombstone
	if _, err := r.db.ExecContext(ctx, `DELETE FROM transaction_tombstones WHERE id = ?`, tx.ID); err != nil {
		return StoredTransaction{}, fmt.Errorf("clear tombstone %s: %w", tx.ID, err)
	}

	slog.InfoContext(ctx, "Transaction saved to SQLite",
		"id", tx.ID,
		"type", tx.Type,
		"category", tx.Category,
		"amount_cents", tx.Amount.Cents)

	return StoredTransaction{Transaction: tx, Version: 1, SyncStatus: SyncPending, UpdatedAt: parseTime(now)}, nil
}

// UpdateTransaction rewrites the mutable fields, bumps the version and
// marks the row pending sync again.
func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, tx core.Transaction) (StoredTransaction, error) {
	now := r.stamp()
	var version int64
	err := r.db.QueryRowContext(ctx, `
		UPDATE transactions
		SET amount_cents = ?, occurred_at = ?, description = ?, category = ?, type = ?,
		    version = version + 1, sync_status = ?, updated_at = ?
		WHERE id = ?
		RETURNING version`,
		tx.Amount.Cents, formatTime(tx.Date), tx.Description, tx.Category, string(tx.Type),
		string(SyncPending), now, tx.ID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return StoredTransaction{}, fmt.Errorf("update transaction %s: %w", tx.ID, ErrNotFound)
	}
	if err != nil {
		return StoredTransaction{}, fmt.Errorf("update transaction %s: %w", tx.ID, err)
	}

	slog.InfoContext(ctx, "Transaction updated in SQLite", "id", tx.ID, "version", version)
	return StoredTransaction{Transaction: tx, Version: version, SyncStatus: SyncPending, UpdatedAt: parseTime(now)}, nil
}

// DeleteTransaction removes the row and leaves a tombstone so the worker
// can remove the mirror copy later, whether or not a delete message is
// ever delivered.
func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id string) error {
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer dbtx.Rollback()

	res, err := dbtx.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("delete transaction %s: %w", id, ErrNotFound)
	}
	if _, err := dbtx.ExecContext(ctx, `
		INSERT INTO transaction_tombstones (id, deleted_at) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET deleted_at = excluded.deleted_at`, id, r.stamp()); err != nil {
		return fmt.Errorf("tombstone transaction %s: %w", id, err)
	}

	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("commit delete: %w", err)
	}
	slog.InfoContext(ctx, "Transaction deleted from SQLite", "id", id)
	return nil
}

// ClearAll deletes every row, leaving a tombstone for each.
func (r *SQLiteRepository) ClearAll(ctx context.Context) error {
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	defer dbtx.Rollback()

	if _, err := dbtx.ExecContext(ctx, `
		INSERT INTO transaction_tombstones (id, deleted_at)
		SELECT id, ? FROM transactions WHERE true
		ON CONFLICT(id) DO UPDATE SET deleted_at = excluded.deleted_at`, r.stamp()); err != nil {
		return fmt.Errorf("tombstone transactions: %w", err)
	}
	res, err := dbtx.ExecContext(ctx, `DELETE FROM transactions`)
	if err != nil {
		return fmt.Errorf("clear transactions: %w", err)
	}

	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("commit clear: %w", err)
	}
	n, _ := res.RowsAffected()
	slog.InfoContext(ctx, "Transactions cleared from SQLite", "count", n)
	return nil
}

// PendingDeletes returns tombstoned IDs, oldest deletion first. A limit of
// zero or less returns all of them.
func (r *SQLiteRepository) PendingDeletes(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM transaction_tombstones
		ORDER BY deleted_at ASC, id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending deletes: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending delete: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// PurgeTombstone forgets a tombstone once the mirror no longer holds the row.
func (r *SQLiteRepository) PurgeTombstone(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM transaction_tombstones WHERE id = ?`, id); err != nil {
		return fmt.Errorf("purge tombstone %s: %w", id, err)
	}
	slog.DebugContext(ctx, "Tombstone purged", "id", id)
	return nil
}

// ReplaceAll swaps the stored collection for txs, keeping their order.
// The rows come from the remote mirror, so they are stored as synced.
func (r *SQLiteRepository) ReplaceAll(ctx context.Context, txs []core.Transaction) error {
	dbtx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer dbtx.Rollback()

	if _, err := dbtx.ExecContext(ctx, `DELETE FROM transactions`); err != nil {
		return fmt.Errorf("clear transactions: %w", err)
	}

	stmt, err := dbtx.PrepareContext(ctx, `
		INSERT INTO transactions (id, seq, amount_cents, occurred_at, description, category, type, version, sync_status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := r.stamp()
	for i, tx := range txs {
		// first element is the newest, so it gets the highest seq
		seq := len(txs) - i
		if _, err := stmt.ExecContext(ctx, tx.ID, seq, tx.Amount.Cents, formatTime(tx.Date),
			tx.Description, tx.Category, string(tx.Type), string(SyncDone), now, now); err != nil {
			return fmt.Errorf("insert transaction %s: %w", tx.ID, err)
		}
	}

	if err := dbtx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	slog.InfoContext(ctx, "Transactions replaced in SQLite", "count", len(txs))
	return nil
}

// PendingSync returns rows waiting to be mirrored, oldest change first.
func (r *SQLiteRepository) PendingSync(ctx context.Context, limit int) ([]PendingSync, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, version, updated_at
		FROM transactions
		WHERE sync_status IN (?, ?)
		ORDER BY updated_at ASC, seq ASC
		LIMIT ?`, string(SyncPending), string(SyncError), limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync transactions: %w", err)
	}
	defer rows.Close()

	var out []PendingSync
	for rows.Next() {
		var (
			p         PendingSync
			updatedAt string
		)
		if err := rows.Scan(&p.ID, &p.Version, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan pending sync: %w", err)
		}
		p.UpdatedAt = parseTime(updatedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// MarkSynced flags the row as mirrored, unless it changed after version was
// read.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string, version int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions SET sync_status = ?
		WHERE id = ? AND version = ?`, string(SyncDone), id, version)
	if err != nil {
		return fmt.Errorf("mark transaction synced: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		slog.DebugContext(ctx, "Transaction changed since sync started, leaving pending", "id", id, "version", version)
		return nil
	}
	slog.InfoContext(ctx, "Transaction marked as synced", "id", id, "version", version)
	return nil
}

func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE transactions SET sync_status = ? WHERE id = ?`, string(SyncError), id); err != nil {
		return fmt.Errorf("mark transaction sync error: %w", err)
	}
	slog.WarnContext(ctx, "Transaction marked with sync error", "id", id)
	return nil
}

// CountByStatus reports how many rows are in each sync state.
func (r *SQLiteRepository) CountByStatus(ctx context.Context) (map[SyncStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT sync_status, COUNT(*) FROM transactions GROUP BY sync_status`)
	if err != nil {
		return nil, fmt.Errorf("count sync status: %w", err)
	}
	defer rows.Close()

	counts := map[SyncStatus]int{SyncPending: 0, SyncDone: 0, SyncError: 0, SyncDeleted: 0}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan sync status: %w", err)
		}
		counts[SyncStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync status: %w", err)
	}
	// release the single connection before the next query
	rows.Close()

	var deleted int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM transaction_tombstones`).Scan(&deleted); err != nil {
		return nil, fmt.Errorf("count tombstones: %w", err)
	}
	counts[SyncDeleted] = deleted
	return counts, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(s scanner) (StoredTransaction, error) {
	var (
		st         StoredTransaction
		cents      sql.NullInt64
		occurredAt string
		typ        string
		status     string
		updatedAt  string
	)
	if err := s.Scan(&st.ID, &cents, &occurredAt, &st.Description, &st.Category, &typ, &st.Version, &status, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return st, err
		}
		return st, fmt.Errorf("scan transaction: %w", err)
	}

	t, err := core.ParseTransactionType(typ)
	if err != nil {
		return st, fmt.Errorf("transaction %s: %w", st.ID, err)
	}
	date, err := time.Parse(time.RFC3339Nano, occurredAt)
	if err != nil {
		return st, fmt.Errorf("transaction %s: %w", st.ID, core.ErrInvalidDate)
	}

	st.Type = t
	st.Date = date.Local()
	st.Amount = core.SanitizeAmount(core.Money{Cents: cents.Int64})
	st.SyncStatus = SyncStatus(status)
	st.UpdatedAt = parseTime(updatedAt)
	return st, nil
}

func (r *SQLiteRepository) stamp() string {
	return r.now().UTC().Format(time.RFC3339Nano)
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
