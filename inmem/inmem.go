// Package inmem provides an in-memory implementation of a session's price store.
package inmem

import (
	"cmp"
	"context"
	"slices"

	mte "github.com/harveysanders/meanstoend"
)

// Check that *Store implements the interface.
var _ mte.Store = (*Store)(nil)

type Store struct {
	// prices are sorted by ascending timestamp. Timestamps are unique.
	prices []mte.Price
}

// NewStore returns a new, empty in-memory store.
func NewStore() *Store {
	return &Store{
		prices: make([]mte.Price, 0, 64),
	}
}

// Open is a meanstoend.StoreFunc returning a new in-memory store.
func Open(ctx context.Context) (mte.Store, error) {
	return NewStore(), nil
}

// Insert inserts p in chronological ascending order.
func (s *Store) Insert(_ context.Context, p mte.Price) error {
	i, found := s.search(p.Timestamp)
	if found {
		return mte.ErrDuplicateTimestamp
	}
	s.prices = slices.Insert(s.prices, i, p)
	return nil
}

func (s *Store) Mean(_ context.Context, minTime, maxTime int32) (int32, error) {
	if minTime > maxTime {
		return 0, nil
	}

	start, _ := s.search(minTime)
	var sum, n int64
	for _, p := range s.prices[start:] {
		if p.Timestamp > maxTime {
			break
		}
		sum += int64(p.Price)
		n++
	}
	return mte.TruncatedMean(sum, n), nil
}

// Len returns the number of stored prices.
func (s *Store) Len() int {
	return len(s.prices)
}

func (s *Store) Close() error {
	s.prices = nil
	return nil
}

// search returns the index of the first price at or after timestamp, and whether that price is exactly at timestamp.
func (s *Store) search(timestamp int32) (int, bool) {
	return slices.BinarySearchFunc(s.prices, timestamp, func(p mte.Price, t int32) int {
		return cmp.Compare(p.Timestamp, t)
	})
}
