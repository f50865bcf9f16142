package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Config struct {
	User       string
	Password   string
	Host       string
	Name       string
	DisableTLS bool
}

func Open(cfg Config) (*sqlx.DB, error) {
	sslMode := "require"
	if cfg.DisableTLS {
		sslMode = "disable"
	}

	q := make(url.Values)
	q.Set("sslmode", sslMode)
	q.Set("timezone", "utc")

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     cfg.Host,
		Path:     cfg.Name,
		RawQuery: q.Encode(),
	}

	return sqlx.Open("postgres", u.String())
}

func StatusCheck(ctx context.Context, db *sqlx.DB) error {
	var pingError error
	for attempts := 1; ; attempts++ {
		pingError = db.Ping()
		if pingError == nil {
			break
		}
		time.Sleep(time.Duration(attempts) * 100 * time.Millisecond)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	const query = `SELECT true`
	var tmp bool
	return db.QueryRowContext(ctx, query).Scan(&tmp)
}

func Transaction(db *sqlx.DB, fn func(sqlx.ExtContext) error) error {
	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	mustRollback := true
	defer func() {
		if mustRollback {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				_ = err
			}
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	mustRollback = false
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// LockTimeout bounds the wait for row locks acquired later in the same
// transaction. A transaction exceeding it fails with a lock_not_available
// error instead of hanging.
func LockTimeout(ctx context.Context, tx sqlx.ExtContext, d time.Duration) error {
	q := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", d.Milliseconds())
	if _, err := tx.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("setting lock timeout: %w", err)
	}
	return nil
}

// IsLockTimeout reports whether err is a lock_not_available failure, which
// callers should surface as a retryable condition.
func IsLockTimeout(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "55P03"
	}
	return false
}
