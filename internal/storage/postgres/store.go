package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/sheikh-saqib/service-hours-ledger/internal/storage/migrate"
	"github.com/sheikh-saqib/service-hours-ledger/internal/storage/postgres/migrations"
	"github.com/sheikh-saqib/service-hours-ledger/internal/storage/sqlstore"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// PostgresLedgerStore persists ledger state in Postgres. Rows touched by a
// mutation are locked with SELECT ... FOR UPDATE for the transaction.
type PostgresLedgerStore struct {
	*sqlstore.Store
}

// Dialect returns the Postgres dialect.
func Dialect() sqlstore.Dialect {
	return sqlstore.Dialect{
		Name:                  "postgres",
		Rebind:                sqlstore.RebindDollar,
		LockSuffix:            " FOR UPDATE",
		IsUniqueViolation:     func(err error) bool { return hasCode(err, uniqueViolation) },
		IsForeignKeyViolation: func(err error) bool { return hasCode(err, foreignKeyViolation) },
	}
}

// NewPostgresLedgerStore wraps an already migrated database handle.
func NewPostgresLedgerStore(db *sql.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{
		Store: sqlstore.New(db, Dialect()),
	}
}

// Open connects with dsn and applies embedded migrations.
func Open(ctx context.Context, dsn string) (*PostgresLedgerStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres db: %w", err)
	}
	if err := migrate.Apply(ctx, db, migrations.FS, ".", sqlstore.RebindDollar); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return NewPostgresLedgerStore(db), nil
}

func hasCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == code
	}
	return false
}
