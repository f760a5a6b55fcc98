// Package sheets defines the remote mirror the sync worker pushes
// transactions to and pulls them back from.
package sheets

import (
	"context"

	"moneybook/internal/core"
)

// Ports for outbound adapters. Rows are keyed by transaction ID.
type (
	TransactionWriter interface {
		// Upsert inserts or overwrites each transaction by ID.
		Upsert(ctx context.Context, txs []core.Transaction) error
	}

	TransactionDeleter interface {
		// Delete removes the row for id. A missing row is not an error.
		Delete(ctx context.Context, id string) error
	}

	TransactionReader interface {
		// Fetch returns every mirrored transaction, newest date first.
		Fetch(ctx context.Context) ([]core.Transaction, error)
	}

	Mirror interface {
		TransactionWriter
		TransactionDeleter
		TransactionReader
	}
)
