package cache

import (
	"fmt"
	"time"

	"moneybook/internal/analytics"
	"moneybook/internal/core"
)

// Source is the transaction list summaries are computed from. Version must
// change whenever the list does.
type Source interface {
	List() []core.Transaction
	Version() uint64
}

// Summaries memoizes analytics.Summarize per scope and source version. A
// write to the source bumps its version, so stale entries are never read
// and simply age out.
type Summaries struct {
	src Source
	lru *LRUCache[analytics.Summary]
}

func NewSummaries(src Source, maxSize int, ttl time.Duration) *Summaries {
	return &Summaries{src: src, lru: NewLRUCache[analytics.Summary](maxSize, ttl)}
}

// Get returns the summary for scope. Entries are shared by every reference
// inside the same period, so the returned Scope and Title are always the
// caller's own.
func (s *Summaries) Get(scope analytics.Scope) analytics.Summary {
	version := s.src.Version()
	key := SummaryKey(scope, version)
	sum, ok := s.lru.Get(key)
	if !ok {
		sum = analytics.Summarize(s.src.List(), scope)
		s.lru.Set(key, sum)
	}
	scope = scope.Normalize()
	sum.Scope = scope
	sum.Title = scope.Title()
	return sum
}

func (s *Summaries) CleanExpired() int { return s.lru.CleanExpired() }

func (s *Summaries) Size() int { return s.lru.Size() }

// SummaryKey identifies a scope by mode and covered interval, so two
// references inside the same month share an entry.
func SummaryKey(scope analytics.Scope, version uint64) string {
	scope = scope.Normalize()
	from, to, ok := scope.Bounds()
	if !ok {
		return fmt.Sprintf("%s|v%d", analytics.All, version)
	}
	return fmt.Sprintf("%s|%d|%d|v%d", scope.Mode, from.Unix(), to.Unix(), version)
}
