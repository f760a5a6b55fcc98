package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"moneybook/internal/core"
)

type fakePersister struct {
	created  []string
	updated  []string
	deleted  []string
	replaced int
	cleared  int
	fail     error
}

func (f *fakePersister) Create(_ context.Context, tx core.Transaction) error {
	if f.fail != nil {
		return f.fail
	}
	f.created = append(f.created, tx.ID)
	return nil
}

func (f *fakePersister) Update(_ context.Context, tx core.Transaction) error {
	if f.fail != nil {
		return f.fail
	}
	f.updated = append(f.updated, tx.ID)
	return nil
}

func (f *fakePersister) Delete(_ context.Context, id string) error {
	if f.fail != nil {
		return f.fail
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakePersister) Replace(_ context.Context, txs []core.Transaction) error {
	if f.fail != nil {
		return f.fail
	}
	f.replaced++
	return nil
}

func (f *fakePersister) Clear(context.Context) error {
	if f.fail != nil {
		return f.fail
	}
	f.cleared++
	return nil
}

type fakeLoader struct {
	txs []core.Transaction
	err error
}

func (l fakeLoader) ListTransactions(context.Context) ([]core.Transaction, error) {
	return l.txs, l.err
}

func newTestStore(p Persister) *Store {
	s := New(p, nil)
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	s.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.Local) }
	return s
}

func draft(desc string, cents int64) Draft {
	return Draft{Amount: core.Money{Cents: cents}, Description: desc, Category: "Food", Type: core.Expense}
}

func TestStoreAddPrependsAndPersists(t *testing.T) {
	p := &fakePersister{}
	s := newTestStore(p)
	ctx := context.Background()

	first, err := s.Add(ctx, draft("first", 100))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := s.Add(ctx, draft("second", 200)); err != nil {
		t.Fatalf("add: %v", err)
	}

	list := s.List()
	if len(list) != 2 || list[0].Description != "second" || list[1].ID != first.ID {
		t.Fatalf("expected newest first, got %+v", list)
	}
	if !first.Date.Equal(s.now()) {
		t.Fatalf("expected default date, got %v", first.Date)
	}
	if len(p.created) != 2 || s.Version() != 2 {
		t.Fatalf("expected 2 persisted creates and version 2, got %v / %d", p.created, s.Version())
	}
}

func TestStoreAddRejectsInvalid(t *testing.T) {
	s := newTestStore(nil)
	d := draft("salary", 100)
	d.Category = "Salary"
	if _, err := s.Add(context.Background(), d); !errors.Is(err, core.ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
	if s.Len() != 0 || s.Version() != 0 {
		t.Fatalf("store must be unchanged after a rejected add")
	}
}

func TestStorePersistFailureLeavesMemoryUntouched(t *testing.T) {
	p := &fakePersister{fail: errors.New("disk full")}
	s := newTestStore(p)
	if _, err := s.Add(context.Background(), draft("x", 1)); err == nil {
		t.Fatalf("expected persist error")
	}
	if s.Len() != 0 {
		t.Fatalf("memory changed despite persist failure")
	}
}

func TestStoreUpdateKeepsIDAndPosition(t *testing.T) {
	s := newTestStore(&fakePersister{})
	ctx := context.Background()
	a, _ := s.Add(ctx, draft("a", 100))
	s.Add(ctx, draft("b", 200))

	a.Type = core.Income // category stays "Food": edits do not re-validate it
	a.Amount = core.Money{Cents: 150}
	if _, err := s.Update(ctx, a); err != nil {
		t.Fatalf("update: %v", err)
	}
	list := s.List()
	if list[1].ID != a.ID || list[1].Amount.Cents != 150 || list[1].Type != core.Income {
		t.Fatalf("unexpected list after update %+v", list)
	}

	if _, err := s.Update(ctx, core.Transaction{ID: "missing", Amount: core.Money{}, Date: time.Now(), Description: "x", Category: "Food", Type: core.Expense}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreDeleteAndClear(t *testing.T) {
	p := &fakePersister{}
	s := newTestStore(p)
	ctx := context.Background()
	a, _ := s.Add(ctx, draft("a", 100))
	s.Add(ctx, draft("b", 200))

	if err := s.Delete(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := s.Get(a.ID); ok {
		t.Fatalf("deleted transaction still present")
	}
	if err := s.Delete(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if s.Len() != 0 || p.cleared != 1 || p.replaced != 0 {
		t.Fatalf("expected empty store and one clear, got len=%d cleared=%d replaced=%d", s.Len(), p.cleared, p.replaced)
	}
}

func TestStoreReplaceAssignsMissingIDs(t *testing.T) {
	s := newTestStore(nil)
	err := s.Replace(context.Background(), []core.Transaction{{ID: "keep"}, {}})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	list := s.List()
	if list[0].ID != "keep" || list[1].ID == "" {
		t.Fatalf("unexpected ids %+v", list)
	}
}

func TestStoreListIsACopy(t *testing.T) {
	s := newTestStore(nil)
	s.Add(context.Background(), draft("a", 100))
	list := s.List()
	list[0].Description = "changed"
	if got, _ := s.Get(list[0].ID); got.Description != "a" {
		t.Fatalf("List must return a copy")
	}
}

func TestStoreSubscribe(t *testing.T) {
	s := newTestStore(nil)
	events, cancel := s.Subscribe(4)
	ctx := context.Background()

	tx, _ := s.Add(ctx, draft("a", 100))
	s.Delete(ctx, tx.ID)

	for _, want := range []EventKind{EventAdded, EventDeleted} {
		select {
		case e := <-events:
			if e.Kind != want || e.ID != tx.ID {
				t.Fatalf("got %+v, want kind %s", e, want)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}

	cancel()
	cancel()
	if _, ok := <-events; ok {
		t.Fatalf("channel should be closed after cancel")
	}
	// publishing after cancel must not panic
	s.Add(ctx, draft("b", 100))
}

func TestLoad(t *testing.T) {
	seed := []core.Transaction{{ID: "1"}, {ID: "2"}}
	s, err := Load(context.Background(), fakeLoader{txs: seed}, nil)
	if err != nil || s.Len() != 2 {
		t.Fatalf("unexpected load result len=%d err=%v", s.Len(), err)
	}
	if _, err := Load(context.Background(), fakeLoader{err: errors.New("boom")}, nil); err == nil {
		t.Fatalf("expected load error")
	}
}
