package store

import (
	"context"
	"fmt"

	"vision/internal/domain/orders"
	"vision/internal/domain/txlog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Storage aggregates the durable stores of the payment subsystem. The
// Orders ledger and the TxLog are the only holders of persistent state;
// everything above them is orchestration.
type Storage struct {
	Orders orders.Store
	TxLog  txlog.Store

	pool *pgxpool.Pool
}

func NewStorage(pool *pgxpool.Pool) Storage {
	return Storage{
		Orders: orders.NewRepository(pool),
		TxLog:  txlog.NewRepository(pool),
		pool:   pool,
	}
}

// InitSchema installs both tables; safe to run on every startup.
func (s Storage) InitSchema(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	if err := orders.NewRepository(s.pool).InitSchema(ctx); err != nil {
		return err
	}
	return txlog.NewRepository(s.pool).InitSchema(ctx)
}

// WithTx runs fn against a Storage view bound to a single database
// transaction, committing when fn returns nil. This is how the log append
// and the ledger status update become one logical write: a unique-violation
// in the append rolls back the status change with it.
//
// A Storage assembled from plain stores (tests, fakes) has no pool and runs
// fn in place.
func (s Storage) WithTx(ctx context.Context, fn func(Storage) error) error {
	if s.pool == nil {
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// Rollback after a successful commit returns ErrTxClosed and is a no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	view := Storage{
		Orders: orders.NewRepository(tx),
		TxLog:  txlog.NewRepository(tx),
	}
	if err := fn(view); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
