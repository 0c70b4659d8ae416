package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"vision/internal/infra/dbx"

	"github.com/jackc/pgx/v5"
)

type Repository struct{ q dbx.Querier }

func NewRepository(q dbx.Querier) *Repository { return &Repository{q: q} }

// InitSchema creates the ledger table if it does not exist.
func (r *Repository) InitSchema(ctx context.Context) error {
	_, err := r.q.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS order_ledger (
			order_id         VARCHAR(21) PRIMARY KEY,
			line_items       JSONB NOT NULL DEFAULT '[]',
			expected_amount  NUMERIC(12,2) NOT NULL DEFAULT 0,
			payment_status   TEXT NOT NULL DEFAULT 'PENDING',
			customer_details JSONB NOT NULL DEFAULT '{}',
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("init order_ledger schema: %w", err)
	}
	return nil
}

func (r *Repository) Upsert(ctx context.Context, orderID string, items []LineItem, customer CustomerDetails) (*OrderRecord, error) {
	if items == nil {
		items = []LineItem{}
	}
	// The expected amount is always recomputed here; whatever total the
	// client declared never reaches the ledger.
	expected := ExpectedAmount(items)

	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal line items: %w", err)
	}
	customerJSON, err := json.Marshal(customer)
	if err != nil {
		return nil, fmt.Errorf("marshal customer details: %w", err)
	}

	rec := OrderRecord{
		OrderID:        orderID,
		LineItems:      items,
		ExpectedAmount: expected,
		Customer:       customer,
	}
	err = r.q.QueryRow(ctx, `
		INSERT INTO order_ledger (order_id, line_items, expected_amount, customer_details)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_id) DO UPDATE SET
			line_items       = EXCLUDED.line_items,
			expected_amount  = EXCLUDED.expected_amount,
			customer_details = EXCLUDED.customer_details,
			updated_at       = now()
		RETURNING payment_status, created_at, updated_at
	`, orderID, itemsJSON, expected, customerJSON).
		Scan(&rec.PaymentStatus, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("upsert order %s: %w", orderID, err)
	}
	return &rec, nil
}

func (r *Repository) Get(ctx context.Context, orderID string) (*OrderRecord, error) {
	var (
		rec          OrderRecord
		itemsJSON    []byte
		customerJSON []byte
	)
	err := r.q.QueryRow(ctx, `
		SELECT order_id, line_items, expected_amount, payment_status, customer_details, created_at, updated_at
		FROM order_ledger WHERE order_id = $1
	`, orderID).Scan(
		&rec.OrderID, &itemsJSON, &rec.ExpectedAmount, &rec.PaymentStatus, &customerJSON, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	if err := json.Unmarshal(itemsJSON, &rec.LineItems); err != nil {
		return nil, fmt.Errorf("decode line items for %s: %w", orderID, err)
	}
	if err := json.Unmarshal(customerJSON, &rec.Customer); err != nil {
		return nil, fmt.Errorf("decode customer details for %s: %w", orderID, err)
	}
	return &rec, nil
}

func (r *Repository) GetExpectedAmount(ctx context.Context, orderID string) (float64, error) {
	var expected float64
	err := r.q.QueryRow(ctx, `
		SELECT expected_amount FROM order_ledger WHERE order_id = $1
	`, orderID).Scan(&expected)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrOrderNotFound
		}
		return 0, fmt.Errorf("get expected amount for %s: %w", orderID, err)
	}
	return expected, nil
}

func (r *Repository) SetStatus(ctx context.Context, orderID string, status PaymentStatus) error {
	// COMPLETED never regresses; the WHERE clause makes the transition
	// monotonic without a read-modify-write cycle.
	tag, err := r.q.Exec(ctx, `
		UPDATE order_ledger
		   SET payment_status = $2, updated_at = now()
		 WHERE order_id = $1 AND payment_status <> 'COMPLETED'
	`, orderID, string(status))
	if err != nil {
		return fmt.Errorf("set status for %s: %w", orderID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM order_ledger WHERE order_id = $1)
	`, orderID).Scan(&exists); err != nil {
		return fmt.Errorf("set status for %s: %w", orderID, err)
	}
	if !exists {
		return ErrOrderNotFound
	}
	// Row exists but is already COMPLETED; the terminal state wins.
	return nil
}
