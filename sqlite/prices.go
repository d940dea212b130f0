package sqlite

import (
	"context"
	"errors"
	"fmt"

	mte "github.com/harveysanders/meanstoend"
	"github.com/mattn/go-sqlite3"
)

// Check that *PriceStore implements the interface.
var _ mte.Store = (*PriceStore)(nil)

// PriceStore is a session store backed by a SQLite database.
type PriceStore struct {
	db *DB
}

func NewPriceStore(db *DB) *PriceStore {
	return &PriceStore{db: db}
}

// OpenSession is a meanstoend.StoreFunc. Every call opens a new private
// in-memory database, which is dropped when the store is closed.
func OpenSession(ctx context.Context) (mte.Store, error) {
	db := NewDB(MemoryDSN)
	if err := db.Open(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db.Open: %w", err)
	}
	return NewPriceStore(db), nil
}

func (s *PriceStore) Insert(ctx context.Context, p mte.Price) error {
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO prices (timestamp, price) VALUES (?, ?)`,
		p.Timestamp, p.Price)
	if err != nil {
		if isUniqueViolation(err) {
			return mte.ErrDuplicateTimestamp
		}
		return fmt.Errorf("insert price: %w", err)
	}
	return nil
}

func (s *PriceStore) Mean(ctx context.Context, minTime, maxTime int32) (int32, error) {
	if minTime > maxTime {
		return 0, nil
	}

	var sum, count int64
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(price), 0), COUNT(*) FROM prices WHERE timestamp BETWEEN ? AND ?`,
		minTime, maxTime).Scan(&sum, &count)
	if err != nil {
		return 0, fmt.Errorf("select mean: %w", err)
	}
	return mte.TruncatedMean(sum, count), nil
}

func (s *PriceStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
