package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"
)

// Postgres error codes the store reacts to
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// MaxSerializableRetries bounds how often a serializable transaction is
// re-run after a serialization failure or deadlock.
const MaxSerializableRetries = 3

// Querier is satisfied by both *sql.DB and *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repositories bundles every repository bound to one Querier
type Repositories struct {
	Users         UserRepository
	RefreshTokens RefreshTokenRepository
	Categories    CategoryRepository
	Items         ItemRepository
	Filters       FilterRepository
	Customers     CustomerRepository
	Orders        OrderRepository
	Reservations  ReservationRepository
	Cards         SavedCardRepository
	Addresses     SavedAddressRepository
}

// NewRepositories binds all repositories to q.
func NewRepositories(q Querier) Repositories {
	return Repositories{
		Users:         NewUserRepository(q),
		RefreshTokens: NewRefreshTokenRepository(q),
		Categories:    NewCategoryRepository(q),
		Items:         NewItemRepository(q),
		Filters:       NewFilterRepository(q),
		Customers:     NewCustomerRepository(q),
		Orders:        NewOrderRepository(q),
		Reservations:  NewReservationRepository(q),
		Cards:         NewSavedCardRepository(q),
		Addresses:     NewSavedAddressRepository(q),
	}
}

// Transactor runs a function against transaction-scoped repositories
type Transactor interface {
	// WithinTx runs fn in a read committed transaction.
	WithinTx(ctx context.Context, fn func(repos Repositories) error) error
	// WithinSerializableTx runs fn in a serializable transaction and re-runs
	// the whole of fn when Postgres reports a serialization failure.
	WithinSerializableTx(ctx context.Context, fn func(repos Repositories) error) error
}

// Store owns the pool and hands out repositories
type Store struct {
	db      *sql.DB
	backoff func() retry.Backoff
}

// NewStore creates a store over db.
func NewStore(db *sql.DB) *Store {
	return &Store{
		db: db,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(MaxSerializableRetries, retry.NewExponential(20*time.Millisecond))
		},
	}
}

// Repositories returns repositories bound to the pool, outside any transaction.
func (s *Store) Repositories() Repositories {
	return NewRepositories(s.db)
}

func (s *Store) WithinTx(ctx context.Context, fn func(repos Repositories) error) error {
	return s.runTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, fn)
}

func (s *Store) WithinSerializableTx(ctx context.Context, fn func(repos Repositories) error) error {
	return retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		err := s.runTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable}, fn)
		if IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (s *Store) runTx(ctx context.Context, opts *sql.TxOptions, fn func(repos Repositories) error) error {
	tx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(NewRepositories(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// IsRetryable reports whether err is a serialization failure or a deadlock.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
	}
	return false
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeUniqueViolation
	}
	return false
}
