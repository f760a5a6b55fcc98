package analytics

import "moneybook/internal/core"

// FilterByScope returns the transactions that fall inside the scope, in
// their original relative order. The input slice is never modified and an
// empty result is an empty, non-nil slice.
func FilterByScope(txs []core.Transaction, s Scope) []core.Transaction {
	from, to, bounded := s.Bounds()
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if bounded && (tx.Date.Before(from) || !tx.Date.Before(to)) {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// FilterByType keeps the transactions of a single type.
func FilterByType(txs []core.Transaction, t core.TransactionType) []core.Transaction {
	out := make([]core.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Type == t {
			out = append(out, tx)
		}
	}
	return out
}
