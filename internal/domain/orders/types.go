package orders

import (
	"context"
	"errors"
	"math"
	"time"
)

// PaymentStatus is the ledger-side lifecycle of an order. COMPLETED and
// FAILED are terminal for the callback flow; CANCELLED is reachable from
// elsewhere but never produced here.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "PENDING"
	PaymentProcessing PaymentStatus = "PROCESSING"
	PaymentCompleted  PaymentStatus = "COMPLETED"
	PaymentFailed     PaymentStatus = "FAILED"
	PaymentCancelled  PaymentStatus = "CANCELLED"
)

type LineItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

type CustomerDetails struct {
	CustomerID    string `json:"customer_id"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
	CustomerName  string `json:"customer_name"`
}

// OrderRecord is the authoritative, server-computed record of a priced
// order. ExpectedAmount is derived from LineItems on every write and is the
// only amount callback reconciliation trusts.
type OrderRecord struct {
	OrderID        string          `json:"order_id"`
	LineItems      []LineItem      `json:"line_items"`
	ExpectedAmount float64         `json:"expected_amount"`
	PaymentStatus  PaymentStatus   `json:"payment_status"`
	Customer       CustomerDetails `json:"customer_details"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

var ErrOrderNotFound = errors.New("order not found")

type Store interface {
	// Upsert creates or replaces the priced contents of an order,
	// recomputing the expected amount server-side. New records start
	// PENDING; an existing record keeps its payment status.
	Upsert(ctx context.Context, orderID string, items []LineItem, customer CustomerDetails) (*OrderRecord, error)
	Get(ctx context.Context, orderID string) (*OrderRecord, error)
	GetExpectedAmount(ctx context.Context, orderID string) (float64, error)
	// SetStatus moves the payment status. COMPLETED is sticky: once set it
	// is never downgraded, a late FAILED transition becomes a no-op.
	SetStatus(ctx context.Context, orderID string, status PaymentStatus) error
}

// ExpectedAmount computes the authoritative order total from its line
// items, rounded to the cent so repeated upserts of identical items are
// byte-stable in the ledger.
func ExpectedAmount(items []LineItem) float64 {
	var total float64
	for _, it := range items {
		total += it.UnitPrice * float64(it.Quantity)
	}
	return math.Round(total*100) / 100
}
