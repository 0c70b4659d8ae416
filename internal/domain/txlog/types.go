package txlog

import (
	"context"
	"errors"
	"strings"
	"time"

	"vision/internal/domain/orders"
)

// Status is the gateway-reported transaction status as recorded in the log.
type Status string

const (
	StatusCharged   Status = "CHARGED"
	StatusSuccess   Status = "SUCCESS"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusPending   Status = "PENDING"
	StatusCancelled Status = "CANCELLED"
	StatusUnknown   Status = "UNKNOWN"
)

// Successful reports whether the status counts as a settled payment. At
// most one entry per order may carry a successful status.
func (s Status) Successful() bool {
	switch s {
	case StatusCharged, StatusSuccess, StatusCompleted:
		return true
	}
	return false
}

// Classify maps a raw gateway status string onto the recorded status set;
// anything unrecognized becomes UNKNOWN rather than leaking free text into
// the log.
func Classify(raw string) Status {
	switch s := Status(strings.ToUpper(strings.TrimSpace(raw))); s {
	case StatusCharged, StatusSuccess, StatusCompleted,
		StatusFailed, StatusPending, StatusCancelled:
		return s
	default:
		return StatusUnknown
	}
}

// Entry is one callback attempt, successful or not. Entries are append-only
// and immutable once written.
type Entry struct {
	ID                   int64             `json:"id"`
	OrderID              string            `json:"order_id"`
	TransactionStatus    Status            `json:"transaction_status"`
	Amount               float64           `json:"amount"`
	TransactionCount     int               `json:"transaction_count"`
	Products             []orders.LineItem `json:"products"`
	PaymentGateway       string            `json:"payment_gateway"`
	GatewayTransactionID string            `json:"gateway_transaction_id,omitempty"`
	SignatureVerified    bool              `json:"signature_verified"`
	Timestamp            time.Time         `json:"timestamp"`
}

// ErrDuplicateSuccess means a successful entry already exists for the
// order. It is the storage-level guarantee behind at-most-one settlement.
var ErrDuplicateSuccess = errors.New("successful transaction already logged for order")

type Store interface {
	// CountAttempts returns how many entries exist for the order. The
	// result feeds the displayed transaction_count only; the uniqueness
	// constraint, not this count, is what prevents double settlement.
	CountAttempts(ctx context.Context, orderID string) (int, error)
	// HasSuccessful reports whether a settled entry already exists.
	HasSuccessful(ctx context.Context, orderID string) (bool, error)
	// Append inserts a new entry, failing with ErrDuplicateSuccess when a
	// second successful entry would violate the settlement constraint.
	Append(ctx context.Context, e *Entry) error
}
