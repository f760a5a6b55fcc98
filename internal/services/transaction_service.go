package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"moneybook/internal/core"
	"moneybook/internal/ledger"
	"moneybook/internal/storage"
)

type (
	// Repository is the durable side of the ledger.
	Repository interface {
		InsertTransaction(ctx context.Context, tx core.Transaction) (storage.StoredTransaction, error)
		UpdateTransaction(ctx context.Context, tx core.Transaction) (storage.StoredTransaction, error)
		DeleteTransaction(ctx context.Context, id string) error
		ReplaceAll(ctx context.Context, txs []core.Transaction) error
		ClearAll(ctx context.Context) error
	}

	// Publisher announces changes to the sync worker.
	Publisher interface {
		PublishTransactionSync(ctx context.Context, id string, version int64) error
		PublishTransactionDelete(ctx context.Context, id string) error
	}
)

var _ ledger.Persister = (*TransactionService)(nil)

// TransactionService orchestrates transaction writes across SQLite and
// AMQP. The database write decides success; publish failures are logged
// and left to the pending sweep.
type TransactionService struct {
	storage   Repository
	publisher Publisher
}

// NewTransactionService wires the repository and an optional publisher.
// Pass a nil publisher to run without a broker.
func NewTransactionService(repo Repository, publisher Publisher) *TransactionService {
	return &TransactionService{
		storage:   repo,
		publisher: publisher,
	}
}

func (s *TransactionService) Create(ctx context.Context, tx core.Transaction) error {
	stored, err := s.storage.InsertTransaction(ctx, tx)
	if err != nil {
		return fmt.Errorf("save transaction: %w", err)
	}
	s.publishSync(ctx, stored.ID, stored.Version)
	return nil
}

func (s *TransactionService) Update(ctx context.Context, tx core.Transaction) error {
	stored, err := s.storage.UpdateTransaction(ctx, tx)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	s.publishSync(ctx, stored.ID, stored.Version)
	return nil
}

// Delete removes the row and leaves a tombstone in storage. The delete
// message only speeds things up: without it the worker sweep, a full push
// or a pull removes the mirror copy from the tombstone.
func (s *TransactionService) Delete(ctx context.Context, id string) error {
	if err := s.storage.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping delete message", "id", id)
		return nil
	}
	if err := s.publisher.PublishTransactionDelete(ctx, id); err != nil {
		slog.ErrorContext(ctx, "Failed to publish delete message", "id", id, "error", err)
	}
	return nil
}

// Clear removes every row, tombstoning each. No messages are published;
// the worker sweep removes the mirror copies.
func (s *TransactionService) Clear(ctx context.Context) error {
	if err := s.storage.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear transactions: %w", err)
	}
	return nil
}

// Replace overwrites the stored collection. It does not publish: replaced
// rows come from the mirror already.
func (s *TransactionService) Replace(ctx context.Context, txs []core.Transaction) error {
	if err := s.storage.ReplaceAll(ctx, txs); err != nil {
		return fmt.Errorf("replace transactions: %w", err)
	}
	return nil
}

func (s *TransactionService) publishSync(ctx context.Context, id string, version int64) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping sync message", "id", id)
		return
	}
	if err := s.publisher.PublishTransactionSync(ctx, id, version); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync message",
			"id", id, "version", version, "error", err)
	}
}

// Close closes the storage and publisher when they hold resources.
func (s *TransactionService) Close() error {
	var errs []error

	if c, ok := s.storage.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if c, ok := s.publisher.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("close transaction service: %w", err)
	}
	return nil
}
