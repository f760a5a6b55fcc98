package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"moneybook/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "moneybook.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func tx(id string, cents int64, typ core.TransactionType, category string) core.Transaction {
	return core.Transaction{
		ID:          id,
		Amount:      core.Money{Cents: cents},
		Date:        time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
		Description: "desc " + id,
		Category:    category,
		Type:        typ,
	}
}

func TestInsertAndListNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, x := range []core.Transaction{
		tx("a", 100, core.Expense, "Food"),
		tx("b", 5000, core.Income, "Salary"),
		tx("c", 250, core.Expense, "Transport"),
	} {
		st, err := repo.InsertTransaction(ctx, x)
		if err != nil {
			t.Fatalf("insert %s: %v", x.ID, err)
		}
		if st.Version != 1 || st.SyncStatus != SyncPending {
			t.Fatalf("unexpected bookkeeping %+v", st)
		}
	}

	list, err := repo.ListTransactions(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var ids []string
	for _, x := range list {
		ids = append(ids, x.ID)
	}
	if len(ids) != 3 || ids[0] != "c" || ids[1] != "b" || ids[2] != "a" {
		t.Fatalf("expected [c b a], got %v", ids)
	}
	if !list[1].Date.Equal(time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)) || list[1].Type != core.Income || list[1].Amount.Cents != 5000 {
		t.Fatalf("round trip mismatch: %+v", list[1])
	}
}

func TestUpdateBumpsVersion(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	orig := tx("a", 100, core.Expense, "Food")
	if _, err := repo.InsertTransaction(ctx, orig); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.MarkSynced(ctx, "a", 1); err != nil {
		t.Fatalf("mark synced: %v", err)
	}

	orig.Amount = core.Money{Cents: 999}
	st, err := repo.UpdateTransaction(ctx, orig)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if st.Version != 2 {
		t.Fatalf("expected version 2, got %d", st.Version)
	}

	got, err := repo.GetTransaction(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Amount.Cents != 999 || got.SyncStatus != SyncPending {
		t.Fatalf("unexpected stored row %+v", got)
	}

	if _, err := repo.UpdateTransaction(ctx, tx("missing", 1, core.Expense, "Food")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkSyncedIgnoresStaleVersion(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	x := tx("a", 100, core.Expense, "Food")
	repo.InsertTransaction(ctx, x)
	repo.UpdateTransaction(ctx, x)

	if err := repo.MarkSynced(ctx, "a", 1); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	got, _ := repo.GetTransaction(ctx, "a")
	if got.SyncStatus != SyncPending {
		t.Fatalf("stale sync must not mark the row synced, got %s", got.SyncStatus)
	}

	if err := repo.MarkSynced(ctx, "a", 2); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	got, _ = repo.GetTransaction(ctx, "a")
	if got.SyncStatus != SyncDone {
		t.Fatalf("expected synced, got %s", got.SyncStatus)
	}
}

func TestPendingSyncIncludesErrors(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	repo.InsertTransaction(ctx, tx("a", 1, core.Expense, "Food"))
	repo.InsertTransaction(ctx, tx("b", 2, core.Expense, "Food"))
	repo.InsertTransaction(ctx, tx("c", 3, core.Expense, "Food"))
	repo.MarkSynced(ctx, "a", 1)
	repo.MarkSyncError(ctx, "b")

	pending, err := repo.PendingSync(ctx, 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending rows, got %+v", pending)
	}

	counts, err := repo.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[SyncDone] != 1 || counts[SyncError] != 1 || counts[SyncPending] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}

	limited, _ := repo.PendingSync(ctx, 1)
	if len(limited) != 1 {
		t.Fatalf("limit not applied: %+v", limited)
	}
}

func TestDeleteAndReplace(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	repo.InsertTransaction(ctx, tx("a", 1, core.Expense, "Food"))

	if err := repo.DeleteTransaction(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.DeleteTransaction(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	pulled := []core.Transaction{
		tx("new", 10, core.Expense, "Food"),
		tx("old", 20, core.Income, "Gift"),
	}
	if err := repo.ReplaceAll(ctx, pulled); err != nil {
		t.Fatalf("replace: %v", err)
	}
	list, _ := repo.ListTransactions(ctx)
	if len(list) != 2 || list[0].ID != "new" || list[1].ID != "old" {
		t.Fatalf("replace must keep order, got %+v", list)
	}
	pending, _ := repo.PendingSync(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("replaced rows should be synced, got %+v", pending)
	}

	if err := repo.ReplaceAll(ctx, nil); err != nil {
		t.Fatalf("clear: %v", err)
	}
	list, _ = repo.ListTransactions(ctx)
	if len(list) != 0 {
		t.Fatalf("expected empty table, got %d rows", len(list))
	}
}

func TestDeleteLeavesTombstone(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	repo.InsertTransaction(ctx, tx("a", 1, core.Expense, "Food"))
	repo.InsertTransaction(ctx, tx("b", 2, core.Expense, "Food"))

	if err := repo.DeleteTransaction(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetTransaction(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted row still readable: %v", err)
	}
	deletes, err := repo.PendingDeletes(ctx, 0)
	if err != nil || len(deletes) != 1 || deletes[0] != "a" {
		t.Fatalf("PendingDeletes() = %v, %v", deletes, err)
	}
	counts, err := repo.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[SyncDeleted] != 1 || counts[SyncPending] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}

	if err := repo.PurgeTombstone(ctx, "a"); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if deletes, _ := repo.PendingDeletes(ctx, 0); len(deletes) != 0 {
		t.Fatalf("tombstone not purged: %v", deletes)
	}

	if err := repo.DeleteTransaction(ctx, "b"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.InsertTransaction(ctx, tx("b", 3, core.Expense, "Food")); err != nil {
		t.Fatalf("reinsert: %v", err)
	}
	if deletes, _ := repo.PendingDeletes(ctx, 0); len(deletes) != 0 {
		t.Fatalf("reinserted id kept its tombstone: %v", deletes)
	}
}

func TestClearAllTombstonesEveryRow(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		repo.InsertTransaction(ctx, tx(id, 1, core.Expense, "Food"))
	}

	if err := repo.ClearAll(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if list, _ := repo.ListTransactions(ctx); len(list) != 0 {
		t.Fatalf("expected empty table, got %d rows", len(list))
	}
	deletes, err := repo.PendingDeletes(ctx, 2)
	if err != nil || len(deletes) != 2 {
		t.Fatalf("PendingDeletes(2) = %v, %v", deletes, err)
	}
	if all, _ := repo.PendingDeletes(ctx, 0); len(all) != 3 {
		t.Fatalf("expected 3 tombstones, got %v", all)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moneybook.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	repo.InsertTransaction(context.Background(), tx("a", 1, core.Expense, "Food"))
	repo.Close()

	repo, err = NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer repo.Close()
	list, _ := repo.ListTransactions(context.Background())
	if len(list) != 1 {
		t.Fatalf("expected persisted row, got %d", len(list))
	}
}
