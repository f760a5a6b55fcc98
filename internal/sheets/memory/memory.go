// Package memory is an in-process mirror used in development and tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"moneybook/internal/core"
	ports "moneybook/internal/sheets"
)

var _ ports.Mirror = (*Store)(nil)

type Store struct {
	mu    sync.Mutex
	order []string
	items map[string]core.Transaction
}

func New(txs ...core.Transaction) *Store {
	s := &Store{items: make(map[string]core.Transaction)}
	s.put(txs)
	return s
}

// seedRecord is the loose JSON shape of exported records: amounts may be
// numbers, strings or missing.
type seedRecord struct {
	ID          string `json:"id"`
	Amount      any    `json:"amount"`
	Date        string `json:"date"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Type        string `json:"type"`
}

// NewFromFile seeds the store from a JSON array of records. A missing file
// yields an empty store; records without an ID or with an unknown type are
// skipped.
func NewFromFile(path string) (*Store, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var recs []seedRecord
	if err := json.Unmarshal(b, &recs); err != nil {
		return nil, fmt.Errorf("decode seed file: %w", err)
	}

	txs := make([]core.Transaction, 0, len(recs))
	for _, r := range recs {
		typ, err := core.ParseTransactionType(r.Type)
		if err != nil || strings.TrimSpace(r.ID) == "" {
			continue
		}
		date, err := time.Parse(time.RFC3339Nano, r.Date)
		if err != nil {
			continue
		}
		txs = append(txs, core.Transaction{
			ID:          r.ID,
			Amount:      core.SanitizeAmount(r.Amount),
			Date:        date,
			Description: r.Description,
			Category:    r.Category,
			Type:        typ,
		})
	}
	return New(txs...), nil
}

func (s *Store) Upsert(_ context.Context, txs []core.Transaction) error {
	s.put(txs)
	return nil
}

func (s *Store) put(txs []core.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range txs {
		if _, ok := s.items[tx.ID]; !ok {
			s.order = append(s.order, tx.ID)
		}
		s.items[tx.ID] = tx
	}
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return nil
	}
	delete(s.items, id)
	s.order = slices.DeleteFunc(s.order, func(v string) bool { return v == id })
	return nil
}

// Fetch returns the stored rows, newest date first.
func (s *Store) Fetch(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	out := make([]core.Transaction, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id])
	}
	s.mu.Unlock()

	slices.SortStableFunc(out, func(a, b core.Transaction) int { return b.Date.Compare(a.Date) })
	return out, nil
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
