package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound indicates the key has no value of the requested type.
	ErrNotFound = errors.New("storage: key not found")
)

const (
	putBigIntSQL = `INSERT INTO kv_store (key, big_value)
    VALUES ($1, $2)
    ON CONFLICT (key) DO UPDATE
    SET big_value = EXCLUDED.big_value, updated_at = now();`

	getBigIntSQL = `SELECT big_value FROM kv_store WHERE key = $1 AND big_value IS NOT NULL;`

	putStringSQL = `INSERT INTO kv_store (key, str_value)
    VALUES ($1, $2)
    ON CONFLICT (key) DO UPDATE
    SET str_value = EXCLUDED.str_value, updated_at = now();`

	getStringSQL = `SELECT str_value FROM kv_store WHERE key = $1 AND str_value IS NOT NULL;`

	putJSONSQL = `INSERT INTO kv_store (key, json_value)
    VALUES ($1, $2)
    ON CONFLICT (key) DO UPDATE
    SET json_value = EXCLUDED.json_value, updated_at = now();`

	getJSONSQL = `SELECT json_value FROM kv_store WHERE key = $1 AND json_value IS NOT NULL;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// KeyValueStore defines the typed get/put operations the pipelines use.
type KeyValueStore interface {
	GetBigInt(ctx context.Context, key string) (*big.Int, error)
	PutBigInt(ctx context.Context, key string, value *big.Int) error
	GetString(ctx context.Context, key string) (string, error)
	PutString(ctx context.Context, key, value string) error
	GetJSON(ctx context.Context, key string, dst any) error
	PutJSON(ctx context.Context, key string, value any) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store is the pgx-backed key/value store shared across invocations. Big
// integers travel as decimal strings to keep full 256-bit precision.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// GetBigInt reads a big-integer record. Missing keys read as zero, matching
// the monotonic-from-zero semantics of the share value guard.
func (s *Store) GetBigInt(ctx context.Context, key string) (*big.Int, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var raw string
	if scanErr := pool.QueryRow(ctx, getBigIntSQL, key).Scan(&raw); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("get bigint %s: %w", key, scanErr)
	}

	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("get bigint %s: malformed value %q", key, raw)
	}
	return value, nil
}

// PutBigInt upserts a big-integer record.
func (s *Store) PutBigInt(ctx context.Context, key string, value *big.Int) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if value == nil {
		value = new(big.Int)
	}
	if _, execErr := pool.Exec(ctx, putBigIntSQL, key, value.String()); execErr != nil {
		return fmt.Errorf("put bigint %s: %w", key, execErr)
	}
	return nil
}

// GetString reads a string record; ErrNotFound when absent.
func (s *Store) GetString(ctx context.Context, key string) (string, error) {
	pool, err := s.getPool()
	if err != nil {
		return "", err
	}

	var value string
	if scanErr := pool.QueryRow(ctx, getStringSQL, key).Scan(&value); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get string %s: %w", key, scanErr)
	}
	return value, nil
}

// PutString upserts a string record.
func (s *Store) PutString(ctx context.Context, key, value string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, putStringSQL, key, value); execErr != nil {
		return fmt.Errorf("put string %s: %w", key, execErr)
	}
	return nil
}

// GetJSON reads a structured record into dst; ErrNotFound when absent.
func (s *Store) GetJSON(ctx context.Context, key string, dst any) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var raw []byte
	if scanErr := pool.QueryRow(ctx, getJSONSQL, key).Scan(&raw); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("get json %s: %w", key, scanErr)
	}
	if unmarshalErr := json.Unmarshal(raw, dst); unmarshalErr != nil {
		return fmt.Errorf("get json %s: %w", key, unmarshalErr)
	}
	return nil
}

// PutJSON upserts a structured record wholesale (overwrite, not append).
func (s *Store) PutJSON(ctx context.Context, key string, value any) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	raw, marshalErr := json.Marshal(value)
	if marshalErr != nil {
		return fmt.Errorf("put json %s: %w", key, marshalErr)
	}
	if _, execErr := pool.Exec(ctx, putJSONSQL, key, raw); execErr != nil {
		return fmt.Errorf("put json %s: %w", key, execErr)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a
// release func. It serialises campaign runs across instances.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

var (
	_ KeyValueStore  = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
