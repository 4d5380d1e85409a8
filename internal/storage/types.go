package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrClosed       = errors.New("storage closed")
	ErrInvalidTable = errors.New("invalid table name")
)

// Config configures storage.
//
// Driver values:
//   - "file": one JSON document per table in the Path directory
//   - "sqlite": SQLite database file at Path
//   - "bolt": bbolt database file at Path
//   - "postgres": DSN
//   - "redis": Addr/Password/DB
type Config struct {
	Driver      string
	Path        string
	DSN         string
	Addr        string
	Password    string
	DB          int
	KeyPrefix   string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Record is one row of a table.
type Record struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Store loads and replaces whole tables.
type Store interface {
	// LoadTable returns every record of table sorted by key. A table that
	// was never saved is empty, not an error.
	LoadTable(ctx context.Context, table string) ([]Record, error)
	// SaveTable atomically replaces the content of table with recs.
	SaveTable(ctx context.Context, table string, recs []Record) error
	Close() error
}

func validTable(name string) error {
	if name == "" || len(name) > 64 {
		return ErrInvalidTable
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_') {
			return ErrInvalidTable
		}
	}
	return nil
}
