// Package meanstoend implements the Means to an End price service.
//
// Clients insert timestamped prices and query the mean price over a range of
// timestamps. Each connection owns its own set of prices, which is discarded
// when the connection closes.
package meanstoend

import (
	"context"
	"errors"
)

var (
	ErrDuplicateTimestamp = errors.New("duplicate timestamp")
)

// Price is a single price observation.
type Price struct {
	Timestamp int32
	Price     int32
}

// Store holds the prices of a single session. Stores are never shared between
// connections, so implementations do not need to be safe for concurrent use.
type Store interface {
	// Insert records p. It returns ErrDuplicateTimestamp if a price already exists for p.Timestamp.
	Insert(ctx context.Context, p Price) error
	// Mean returns the mean of all prices with minTime <= timestamp <= maxTime, or 0 if there are none.
	Mean(ctx context.Context, minTime, maxTime int32) (int32, error)
	Close() error
}

// StoreFunc opens a new, empty Store for a connection.
type StoreFunc func(ctx context.Context) (Store, error)

// TruncatedMean returns sum/count truncated toward zero, or 0 if count is 0.
// A sum of int32 prices can not overflow an int64 for any count a session can hold.
func TruncatedMean(sum, count int64) int32 {
	if count == 0 {
		return 0
	}
	return int32(sum / count)
}
