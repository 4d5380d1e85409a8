package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	logx "raidbot/pkg/logx"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS raidbot_records (
	tbl   TEXT  NOT NULL,
	key   TEXT  NOT NULL,
	value JSONB NOT NULL,
	PRIMARY KEY (tbl, key)
)`

type postgresStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	pcfg.MaxConns = 4

	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(cctx, pcfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(cctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := pool.Exec(cctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	return &postgresStore{pool: pool, log: log}, nil
}

type txKey struct{}

func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}

	txCtx := context.WithValue(ctx, txKey{}, tx)
	if err := fn(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func txFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

func (s *postgresStore) LoadTable(ctx context.Context, table string) ([]Record, error) {
	if err := validTable(table); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `SELECT key, value::text FROM raidbot_records WHERE tbl = $1 ORDER BY key`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		out = append(out, Record{Key: key, Value: []byte(value)})
	}
	return out, rows.Err()
}

func (s *postgresStore) SaveTable(ctx context.Context, table string, recs []Record) error {
	if err := validTable(table); err != nil {
		return err
	}
	return withTx(ctx, s.pool, func(txCtx context.Context) error {
		tx := txFromContext(txCtx)
		if _, err := tx.Exec(txCtx, `DELETE FROM raidbot_records WHERE tbl = $1`, table); err != nil {
			return err
		}
		if len(recs) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for _, r := range recs {
			batch.Queue(`INSERT INTO raidbot_records(tbl, key, value) VALUES($1, $2, $3::jsonb)`, table, r.Key, string(r.Value))
		}
		return tx.SendBatch(txCtx, batch).Close()
	})
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}
