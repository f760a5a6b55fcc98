// Package ledger holds the in-memory transaction collection shared by the
// API and exports. Writes go through a Persister first and are then applied
// in memory; readers get copies and may subscribe to change events.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"moneybook/internal/core"
)

var ErrNotFound = errors.New("transaction not found")

const (
	EventAdded    EventKind = "added"
	EventUpdated  EventKind = "updated"
	EventDeleted  EventKind = "deleted"
	EventReplaced EventKind = "replaced"
	EventCleared  EventKind = "cleared"
)

type (
	EventKind string

	// Event describes a committed change. ID is empty for whole-collection
	// changes.
	Event struct {
		Kind    EventKind
		ID      string
		Version uint64
	}

	// Persister stores committed changes. Implementations must be safe for
	// use by a single writer.
	Persister interface {
		Create(ctx context.Context, tx core.Transaction) error
		Update(ctx context.Context, tx core.Transaction) error
		Delete(ctx context.Context, id string) error
		Replace(ctx context.Context, txs []core.Transaction) error
		// Clear removes everything. Unlike Replace with an empty list, the
		// removal must also reach the remote mirror.
		Clear(ctx context.Context) error
	}

	// Loader reads the persisted collection at startup.
	Loader interface {
		ListTransactions(ctx context.Context) ([]core.Transaction, error)
	}

	// Draft is a transaction before it receives an ID.
	Draft struct {
		Amount      core.Money
		Date        time.Time
		Description string
		Category    string
		Type        core.TransactionType
	}
)

type Store struct {
	mu      sync.RWMutex
	txs     []core.Transaction // newest inserted first
	version uint64
	persist Persister

	subMu  sync.Mutex
	subs   map[int]chan Event
	nextID int

	now   func() time.Time
	newID func() string
}

// New creates a store seeded with txs. A nil persister keeps the store
// purely in memory.
func New(p Persister, txs []core.Transaction) *Store {
	return &Store{
		txs:     slices.Clone(txs),
		persist: p,
		subs:    make(map[int]chan Event),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Load builds a store from the persisted collection.
func Load(ctx context.Context, l Loader, p Persister) (*Store, error) {
	txs, err := l.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load transactions: %w", err)
	}
	slog.InfoContext(ctx, "Ledger loaded", "count", len(txs))
	return New(p, txs), nil
}

// List returns a copy of the collection, newest inserted first.
func (s *Store) List() []core.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.txs)
}

func (s *Store) Get(id string) (core.Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(id); i >= 0 {
		return s.txs[i], true
	}
	return core.Transaction{}, false
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.txs)
}

// Version increases on every committed change. Derived views can use it as
// a cache key.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Add validates the draft, assigns an ID and prepends the new transaction.
// A zero date defaults to the current time.
func (s *Store) Add(ctx context.Context, d Draft) (core.Transaction, error) {
	tx := core.Transaction{
		ID:          s.newID(),
		Amount:      d.Amount,
		Date:        d.Date,
		Description: strings.TrimSpace(d.Description),
		Category:    strings.TrimSpace(d.Category),
		Type:        d.Type,
	}
	if tx.Date.IsZero() {
		tx.Date = s.now()
	}
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}

	s.mu.Lock()
	if s.persist != nil {
		if err := s.persist.Create(ctx, tx); err != nil {
			s.mu.Unlock()
			return core.Transaction{}, fmt.Errorf("persist transaction: %w", err)
		}
	}
	s.txs = slices.Insert(s.txs, 0, tx)
	v := s.bump()
	s.mu.Unlock()

	s.publish(Event{Kind: EventAdded, ID: tx.ID, Version: v})
	return tx, nil
}

// Update replaces the mutable fields of an existing transaction. The ID
// never changes and the position in the collection is kept.
func (s *Store) Update(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	tx.Description = strings.TrimSpace(tx.Description)
	tx.Category = strings.TrimSpace(tx.Category)
	if err := tx.ValidateUpdate(); err != nil {
		return core.Transaction{}, err
	}

	s.mu.Lock()
	i := s.indexOf(tx.ID)
	if i < 0 {
		s.mu.Unlock()
		return core.Transaction{}, ErrNotFound
	}
	if s.persist != nil {
		if err := s.persist.Update(ctx, tx); err != nil {
			s.mu.Unlock()
			return core.Transaction{}, fmt.Errorf("persist transaction: %w", err)
		}
	}
	s.txs[i] = tx
	v := s.bump()
	s.mu.Unlock()

	s.publish(Event{Kind: EventUpdated, ID: tx.ID, Version: v})
	return tx, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	if s.persist != nil {
		if err := s.persist.Delete(ctx, id); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("persist delete: %w", err)
		}
	}
	s.txs = slices.Delete(s.txs, i, i+1)
	v := s.bump()
	s.mu.Unlock()

	s.publish(Event{Kind: EventDeleted, ID: id, Version: v})
	return nil
}

// Clear removes every transaction.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	if s.persist != nil {
		if err := s.persist.Clear(ctx); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("persist clear: %w", err)
		}
	}
	s.txs = nil
	v := s.bump()
	s.mu.Unlock()

	s.publish(Event{Kind: EventCleared, Version: v})
	return nil
}

// Replace swaps the whole collection, as done after pulling from the remote
// mirror. Records with an empty ID get a fresh one.
func (s *Store) Replace(ctx context.Context, txs []core.Transaction) error {
	next := slices.Clone(txs)
	for i := range next {
		if next[i].ID == "" {
			next[i].ID = s.newID()
		}
	}

	s.mu.Lock()
	if s.persist != nil {
		if err := s.persist.Replace(ctx, next); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("persist replace: %w", err)
		}
	}
	s.txs = next
	v := s.bump()
	s.mu.Unlock()

	s.publish(Event{Kind: EventReplaced, Version: v})
	return nil
}

// Subscribe returns a channel of change events and a cancel function.
// Events are dropped for subscribers whose buffer is full.
func (s *Store) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) publish(e Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- e:
		default:
			slog.Warn("Dropping ledger event for slow subscriber", "kind", e.Kind, "version", e.Version)
		}
	}
}

func (s *Store) bump() uint64 {
	s.version++
	return s.version
}

func (s *Store) indexOf(id string) int {
	return slices.IndexFunc(s.txs, func(tx core.Transaction) bool { return tx.ID == id })
}
