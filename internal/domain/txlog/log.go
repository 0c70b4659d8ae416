package txlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"vision/internal/domain/orders"
	"vision/internal/infra/dbx"

	"github.com/jackc/pgx/v5/pgconn"
)

const successConstraint = "tx_log_one_success_per_order"

type Repository struct{ q dbx.Querier }

func NewRepository(q dbx.Querier) *Repository { return &Repository{q: q} }

// InitSchema creates the log table and its indexes. The partial unique
// index scoped to successful statuses is the replay guarantee: two
// concurrent settlements race on it and exactly one insert wins.
func (r *Repository) InitSchema(ctx context.Context) error {
	stmts := []string{`
		CREATE TABLE IF NOT EXISTS transaction_log (
			id                     BIGSERIAL PRIMARY KEY,
			order_id               TEXT NOT NULL,
			transaction_status     TEXT NOT NULL,
			amount                 NUMERIC(12,2) NOT NULL,
			transaction_count      INT NOT NULL CHECK (transaction_count >= 1),
			products               JSONB NOT NULL DEFAULT '[]',
			payment_gateway        TEXT NOT NULL DEFAULT 'HDFC',
			gateway_transaction_id TEXT,
			signature_verified     BOOLEAN NOT NULL DEFAULT FALSE,
			created_at             TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, `
		CREATE INDEX IF NOT EXISTS tx_log_order_idx
			ON transaction_log (order_id)`, `
		CREATE UNIQUE INDEX IF NOT EXISTS ` + successConstraint + `
			ON transaction_log (order_id)
			WHERE transaction_status IN ('CHARGED','SUCCESS','COMPLETED')`,
	}
	for _, stmt := range stmts {
		if _, err := r.q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init transaction_log schema: %w", err)
		}
	}
	return nil
}

func (r *Repository) CountAttempts(ctx context.Context, orderID string) (int, error) {
	var count int
	err := r.q.QueryRow(ctx, `
		SELECT COUNT(*) FROM transaction_log WHERE order_id = $1
	`, orderID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count attempts for %s: %w", orderID, err)
	}
	return count, nil
}

func (r *Repository) HasSuccessful(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM transaction_log
			WHERE order_id = $1
			  AND transaction_status IN ('CHARGED','SUCCESS','COMPLETED')
		)
	`, orderID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check successful entry for %s: %w", orderID, err)
	}
	return exists, nil
}

func (r *Repository) Append(ctx context.Context, e *Entry) error {
	products := e.Products
	if products == nil {
		products = []orders.LineItem{}
	}
	productsJSON, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("marshal products snapshot: %w", err)
	}

	err = r.q.QueryRow(ctx, `
		INSERT INTO transaction_log
			(order_id, transaction_status, amount, transaction_count,
			 products, payment_gateway, gateway_transaction_id, signature_verified)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
		RETURNING id, created_at
	`, e.OrderID, string(e.TransactionStatus), e.Amount, e.TransactionCount,
		productsJSON, e.PaymentGateway, e.GatewayTransactionID, e.SignatureVerified).
		Scan(&e.ID, &e.Timestamp)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == successConstraint {
			return ErrDuplicateSuccess
		}
		return fmt.Errorf("append transaction log for %s: %w", e.OrderID, err)
	}
	return nil
}
