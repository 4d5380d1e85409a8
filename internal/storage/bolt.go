package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	logx "raidbot/pkg/logx"
)

// boltStore keeps one bucket per table, keyed by record key.
type boltStore struct {
	db  *bolt.DB
	log logx.Logger
}

func openBolt(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("bolt path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	return &boltStore{db: db, log: log}, nil
}

func (s *boltStore) LoadTable(ctx context.Context, table string) ([]Record, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(table))
		if b == nil {
			return nil
		}
		// Bucket keys iterate in byte order.
		return b.ForEach(func(k, v []byte) error {
			out = append(out, Record{
				Key:   string(k),
				Value: append([]byte(nil), v...),
			})
			return nil
		})
	})
	return out, err
}

func (s *boltStore) SaveTable(ctx context.Context, table string, recs []Record) error {
	if err := validTable(table); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		name := []byte(table)
		if tx.Bucket(name) != nil {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
		}
		b, err := tx.CreateBucket(name)
		if err != nil {
			return err
		}
		for _, r := range recs {
			if err := b.Put([]byte(r.Key), r.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *boltStore) Close() error {
	return s.db.Close()
}
