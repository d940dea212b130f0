package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/maragudk/migrate"
	_ "github.com/mattn/go-sqlite3"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

var (
	ErrDSNRequired = errors.New("DSN required")
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB represents the database connection.
// Based off Ben Johnson's WTF Dial example.
// https://github.com/benbjohnson/wtf
type DB struct {
	DB *sql.DB

	// Data source name.
	DSN string
}

func NewDB(dsn string) *DB {
	return &DB{
		DSN: dsn,
	}
}

// Open opens the database connection and applies all migrations.
func (db *DB) Open(ctx context.Context) (err error) {
	// Ensure a DSN is set before attempting to open the database.
	if db.DSN == "" {
		return ErrDSNRequired
	}

	// Make the parent directory unless using an in-memory db.
	if !isMemory(db.DSN) {
		if err := os.MkdirAll(filepath.Dir(db.DSN), 0700); err != nil {
			return err
		}
	}

	// Connect to the database.
	if db.DB, err = sql.Open("sqlite3", db.DSN); err != nil {
		return err
	}

	// Every connection to ":memory:" is a separate database, so the pool must
	// never open a second one.
	db.DB.SetMaxOpenConns(1)
	db.DB.SetConnMaxIdleTime(0)
	db.DB.SetConnMaxLifetime(0)

	if err := db.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	if err := db.migrateUp(ctx); err != nil {
		return fmt.Errorf("migrateUp: %w", err)
	}

	return nil
}

func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	return db.DB.Close()
}

func (db *DB) migrateUp(ctx context.Context) error {
	dirFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("fs.Sub: %w", err)
	}
	if err := migrate.Up(ctx, db.DB, dirFS); err != nil {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func isMemory(dsn string) bool {
	return dsn == MemoryDSN
}
