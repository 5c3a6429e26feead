// Package database centralises sqlx connection helpers for the control-plane
// (mother) database and the per-reseller databases.  The driver is
// go-sql-driver/mysql, which also works with MariaDB.
//
// Public entry points:
//
//	OpenWithOptions(ctx, dsn, opts)    pool sized by opts, ping with bounded retry.
//	Credentials.DSN(dbName)            DSN for any schema on the shared server.
//
// DefaultOptions size the mother pool, TenantOptions a reseller handle.
// The pool is pinged before it is returned so callers can fail fast.
// Callers should Close() the returned *sqlx.DB when no longer needed.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// Options tunes a pool.  Retries counts extra Ping attempts after the first;
// zero means a single attempt.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Retries         int
	RetryBackoff    time.Duration
}

// DefaultOptions suit the long-lived primary pool.
var DefaultOptions = Options{
	MaxOpenConns:    15,
	MaxIdleConns:    5,
	ConnMaxLifetime: 30 * time.Minute,
}

// TenantOptions keep a reseller handle small.  It lives for one
// verification call only.
var TenantOptions = Options{
	MaxOpenConns:    2,
	MaxIdleConns:    1,
	ConnMaxLifetime: 5 * time.Minute,
	Retries:         1,
	RetryBackoff:    250 * time.Millisecond,
}

// OpenWithOptions opens a pool and pings it, retrying with exponential
// backoff when opts.Retries > 0.  The pool is closed again if every ping
// fails.
func OpenWithOptions(ctx context.Context, dsn string, opts Options) (*sqlx.DB, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	if err := ping(ctx, db, opts); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func ping(ctx context.Context, db *sqlx.DB, opts Options) error {
	if opts.Retries <= 0 {
		return db.PingContext(ctx)
	}

	eb := backoff.NewExponentialBackOff()
	if opts.RetryBackoff > 0 {
		eb.InitialInterval = opts.RetryBackoff
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(opts.Retries)), ctx)

	var attempts int
	err := backoff.Retry(func() error {
		attempts++
		return db.PingContext(ctx)
	}, policy)
	if err != nil {
		return fmt.Errorf("ping after %d attempt(s): %w", attempts, err)
	}
	return nil
}
