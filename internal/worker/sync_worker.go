package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"moneybook/internal/amqp"
	"moneybook/internal/core"
	"moneybook/internal/sheets"
	"moneybook/internal/storage"
)

const (
	DefaultBatchSize   = 100
	DefaultConcurrency = 4

	StatusSuccess = "success"
	StatusError   = "error"
)

type (
	// Repository is the slice of storage the worker reads sync state from.
	Repository interface {
		GetTransaction(ctx context.Context, id string) (storage.StoredTransaction, error)
		PendingSync(ctx context.Context, limit int) ([]storage.PendingSync, error)
		MarkSynced(ctx context.Context, id string, version int64) error
		MarkSyncError(ctx context.Context, id string) error
		PendingDeletes(ctx context.Context, limit int) ([]string, error)
		PurgeTombstone(ctx context.Context, id string) error
	}

	// Ledger receives pulled transactions.
	Ledger interface {
		Replace(ctx context.Context, txs []core.Transaction) error
	}

	// SyncResult reports a bulk push. Status is success when anything was
	// synced, even partially.
	SyncResult struct {
		Status       string `json:"status"`
		Message      string `json:"message"`
		SyncedCount  int    `json:"syncedCount"`
		SkippedCount int    `json:"skippedCount"`
		ErrorCount   int    `json:"errorCount"`
		DeletedCount int    `json:"deletedCount"`
	}
)

// SyncWorker mirrors transactions from SQLite to the remote sheet.
type SyncWorker struct {
	storage     Repository
	mirror      sheets.Mirror
	batchSize   int
	concurrency int
}

func NewSyncWorker(repo Repository, mirror sheets.Mirror, batchSize, concurrency int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &SyncWorker{
		storage:     repo,
		mirror:      mirror,
		batchSize:   batchSize,
		concurrency: concurrency,
	}
}

// HandleSyncMessage mirrors the current state of one transaction. A row
// deleted after the message was published is acknowledged without work;
// the matching delete message removes it from the mirror.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.TransactionSyncMessage) error {
	st, err := w.storage.GetTransaction(ctx, msg.ID)
	if errors.Is(err, storage.ErrNotFound) {
		slog.InfoContext(ctx, "Transaction no longer stored, skipping sync", "id", msg.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}
	if st.Version > msg.Version {
		slog.DebugContext(ctx, "Sync message is older than stored row, syncing latest",
			"id", msg.ID, "message_version", msg.Version, "stored_version", st.Version)
	}
	return w.syncOne(ctx, st)
}

func (w *SyncWorker) HandleDeleteMessage(ctx context.Context, msg *amqp.TransactionDeleteMessage) error {
	if err := w.deleteOne(ctx, msg.ID); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Deleted transaction from mirror", "id", msg.ID, "timestamp", msg.Timestamp)
	return nil
}

func (w *SyncWorker) deleteOne(ctx context.Context, id string) error {
	if err := w.mirror.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete transaction from mirror: %w", err)
	}
	// a tombstone left behind only repeats an idempotent delete
	if err := w.storage.PurgeTombstone(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Failed to purge tombstone", "id", id, "error", err)
	}
	return nil
}

// flushDeletes removes tombstoned rows from the mirror. Failed IDs keep
// their tombstone and are retried on the next call.
func (w *SyncWorker) flushDeletes(ctx context.Context, limit int) (deleted, failed int, err error) {
	ids, err := w.storage.PendingDeletes(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending deletes: %w", err)
	}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return deleted, failed, err
		}
		if err := w.deleteOne(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Failed to delete transaction from mirror", "id", id, "error", err)
			failed++
			continue
		}
		deleted++
	}
	if deleted > 0 {
		slog.InfoContext(ctx, "Removed deleted transactions from mirror", "count", deleted)
	}
	return deleted, failed, nil
}

// ProcessPending removes tombstoned rows from the mirror and syncs rows that
// are still pending or failed. It is the backup for lost or never sent AMQP
// messages and returns how many rows were synced or deleted.
func (w *SyncWorker) ProcessPending(ctx context.Context) (int, error) {
	return w.sweep(ctx, w.batchSize)
}

// StartupSyncCheck runs a larger sweep when the worker starts, to recover
// from downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	synced, err := w.sweep(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	slog.InfoContext(ctx, "Startup sync completed", "synced", synced)
	return nil
}

func (w *SyncWorker) sweep(ctx context.Context, limit int) (int, error) {
	deleted, _, err := w.flushDeletes(ctx, limit)
	if err != nil {
		return 0, err
	}

	pending, err := w.storage.PendingSync(ctx, limit)
	if err != nil {
		return deleted, fmt.Errorf("get pending transactions: %w", err)
	}
	if len(pending) == 0 {
		return deleted, nil
	}

	slog.InfoContext(ctx, "Processing pending transactions", "count", len(pending))

	synced := deleted
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		st, err := w.storage.GetTransaction(ctx, p.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to get transaction", "id", p.ID, "error", err)
			continue
		}
		if err := w.syncOne(ctx, st); err != nil {
			slog.ErrorContext(ctx, "Failed to sync transaction", "id", p.ID, "error", err)
			continue
		}
		synced++
	}
	return synced, nil
}

func (w *SyncWorker) syncOne(ctx context.Context, st storage.StoredTransaction) error {
	if err := w.mirror.Upsert(ctx, []core.Transaction{st.Transaction}); err != nil {
		if markErr := w.storage.MarkSyncError(ctx, st.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "id", st.ID, "error", markErr)
		}
		return fmt.Errorf("upsert to mirror: %w", err)
	}

	// the mirror has the row; a failed bookkeeping write only causes a resync
	if err := w.storage.MarkSynced(ctx, st.ID, st.Version); err != nil {
		slog.ErrorContext(ctx, "Failed to mark as synced", "id", st.ID, "error", err)
	}

	slog.InfoContext(ctx, "Successfully synced transaction",
		"id", st.ID,
		"version", st.Version,
		"amount_cents", st.Amount.Cents)
	return nil
}

// SyncAll removes tombstoned rows from the mirror, then upserts txs in
// batches. Batches run concurrently; a failed batch counts all of its
// records as errors without stopping the others. Rows of a pushed batch
// that still match storage are marked synced.
func (w *SyncWorker) SyncAll(ctx context.Context, txs []core.Transaction) SyncResult {
	deleted, deleteFailed, err := w.flushDeletes(ctx, 0)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to read pending deletes", "error", err)
	}

	valid := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.ID != "" {
			valid = append(valid, tx)
		}
	}
	skipped := len(txs) - len(valid)

	if len(valid) == 0 {
		return SyncResult{
			Status:       StatusSuccess,
			Message:      "No transactions to sync.",
			SkippedCount: skipped,
			ErrorCount:   deleteFailed,
			DeletedCount: deleted,
		}
	}

	var (
		mu      sync.Mutex
		synced  int
		failed  int
		g, gctx = errgroup.WithContext(ctx)
	)
	g.SetLimit(w.concurrency)

	for start := 0; start < len(valid); start += w.batchSize {
		batch := valid[start:min(start+w.batchSize, len(valid))]
		offset := start
		g.Go(func() error {
			if err := w.mirror.Upsert(gctx, batch); err != nil {
				slog.ErrorContext(gctx, "Sync batch failed", "offset", offset, "size", len(batch), "error", err)
				mu.Lock()
				failed += len(batch)
				mu.Unlock()
				return nil
			}
			w.markPushed(gctx, batch)
			mu.Lock()
			synced += len(batch)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	res := SyncResult{SyncedCount: synced, SkippedCount: skipped, ErrorCount: failed + deleteFailed, DeletedCount: deleted}
	switch {
	case failed > 0 && synced == 0:
		res.Status = StatusError
		res.Message = fmt.Sprintf("Sync failed. %d transactions could not be synced.", failed)
	case failed > 0:
		res.Status = StatusSuccess
		res.Message = fmt.Sprintf("Partially synced: %d synced, %d failed.", synced, failed)
	default:
		res.Status = StatusSuccess
		res.Message = fmt.Sprintf("Successfully synced %d transactions.", synced)
	}

	slog.InfoContext(ctx, "Bulk sync finished",
		"status", res.Status,
		"synced", synced,
		"failed", failed,
		"skipped", skipped,
		"deleted", deleted,
		"delete_failed", deleteFailed)
	return res
}

// markPushed flags pushed rows as synced when storage still holds exactly
// what was pushed. Rows edited meanwhile stay pending for the sweep.
func (w *SyncWorker) markPushed(ctx context.Context, batch []core.Transaction) {
	for _, tx := range batch {
		st, err := w.storage.GetTransaction(ctx, tx.ID)
		if err != nil {
			slog.DebugContext(ctx, "Pushed transaction not in storage", "id", tx.ID, "error", err)
			continue
		}
		if !sameContent(st.Transaction, tx) {
			continue
		}
		if err := w.storage.MarkSynced(ctx, st.ID, st.Version); err != nil {
			slog.ErrorContext(ctx, "Failed to mark as synced", "id", st.ID, "error", err)
		}
	}
}

func sameContent(a, b core.Transaction) bool {
	return a.ID == b.ID &&
		a.Amount == b.Amount &&
		a.Date.Equal(b.Date) &&
		a.Description == b.Description &&
		a.Category == b.Category &&
		a.Type == b.Type
}

// Pull replaces the ledger with the mirror contents. Pending deletes are
// applied to the mirror first; if any fails the pull is refused so the
// deleted rows do not come back.
func (w *SyncWorker) Pull(ctx context.Context, l Ledger) (int, error) {
	_, failed, err := w.flushDeletes(ctx, 0)
	if err != nil {
		return 0, err
	}
	if failed > 0 {
		return 0, fmt.Errorf("remove %d deleted transactions from mirror first", failed)
	}

	txs, err := w.mirror.Fetch(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch from mirror: %w", err)
	}
	if err := l.Replace(ctx, txs); err != nil {
		return 0, fmt.Errorf("replace ledger: %w", err)
	}
	slog.InfoContext(ctx, "Pulled transactions from mirror", "count", len(txs))
	return len(txs), nil
}
