// Package storage is the relational persistence layer of spec §4.A: typed
// CRUD for every aggregate in §3, the secondary indexes it names, and the
// single-transaction-per-logical-operation discipline of spec §5.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store aggregates one repository per aggregate in spec §3 over a shared
// *sqlx.DB (or, inside WithTx, a shared *sqlx.Tx).
type Store struct {
	db  Queryer
	log *zap.Logger

	Projects      *ProjectRepository
	Entities      *EntityRepository
	Relations     *RelationRepository
	Sessions      *SessionRepository
	Decisions     *DecisionRepository
	Notes         *NoteRepository
	Todos         *TodoRepository
	QualityIssues *QualityIssueRepository
	DebtSnapshots *DebtSnapshotRepository
	ErrorRecords  *ErrorRecordRepository
	InterceptLogs *InterceptLogRepository
}

// Queryer is the subset of *sqlx.DB/*sqlx.Tx every repository needs;
// WithTx swaps in a *sqlx.Tx that satisfies the same interface so
// repository code never branches on whether it is inside a transaction.
type Queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	QueryRowxContext(ctx context.Context, query string, args ...interface{}) *sqlx.Row
}

func newStore(q Queryer, log *zap.Logger) *Store {
	return &Store{
		db:            q,
		log:           log,
		Projects:      &ProjectRepository{q: q, log: log},
		Entities:      &EntityRepository{q: q, log: log},
		Relations:     &RelationRepository{q: q, log: log},
		Sessions:      &SessionRepository{q: q, log: log},
		Decisions:     &DecisionRepository{q: q, log: log},
		Notes:         &NoteRepository{q: q, log: log},
		Todos:         &TodoRepository{q: q, log: log},
		QualityIssues: &QualityIssueRepository{q: q, log: log},
		DebtSnapshots: &DebtSnapshotRepository{q: q, log: log},
		ErrorRecords:  &ErrorRecordRepository{q: q, log: log},
		InterceptLogs: &InterceptLogRepository{q: q, log: log},
	}
}

// NewWithDB builds a Store over an already-open *sqlx.DB, skipping the
// connect-and-migrate steps Open performs. Callers that manage their own
// connection lifecycle (or, in tests, wrap a sqlmock database) use this
// instead of Open.
func NewWithDB(db *sqlx.DB, log *zap.Logger) *Store {
	return newStore(db, log)
}

// Open connects to Postgres, runs pending goose migrations, and returns a
// ready Store.
func Open(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to storage: %w", err)
	}

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("setting migration dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return newStore(db, log), nil
}

// WithTx runs fn against a Store whose repositories share a single
// transaction, satisfying the "one transaction per logical operation"
// rule of spec §5. fn's error rolls the transaction back.
func (s *Store) WithTx(ctx context.Context, fn func(*Store) error) error {
	sqlxDB, ok := s.db.(*sqlx.DB)
	if !ok {
		// Already inside a transaction — nesting runs fn against the
		// same Store rather than opening a second transaction.
		return fn(s)
	}

	tx, err := sqlxDB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	txStore := newStore(tx, s.log)
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Error("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	return tx.Commit()
}

// Close releases the underlying connection pool, if any.
func (s *Store) Close() error {
	if db, ok := s.db.(*sqlx.DB); ok {
		return db.Close()
	}
	return nil
}

// isNoRows reports whether err is sql.ErrNoRows, the sentinel every
// repository's single-row Get methods translate into errors.NewNotFoundError.
func isNoRows(err error) bool {
	return err == sql.ErrNoRows
}
