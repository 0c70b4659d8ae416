package reconcile

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"vision/internal/domain/orders"
	"vision/internal/domain/txlog"
	"vision/internal/gateway"
	"vision/internal/store"

	"go.uber.org/zap"
)

// AmountEpsilon absorbs floating-point rounding between the gateway's
// reported amount and the ledger's expected amount. Anything beyond one
// cent is tampering.
const AmountEpsilon = 0.01

// Rejection reasons. Every rejected callback maps to exactly one of these
// (or orders.ErrOrderNotFound); none of them leaves the order in an
// ambiguous state.
var (
	ErrInvalidOrderID         = errors.New("invalid or missing order_id")
	ErrAlreadyProcessed       = errors.New("payment for this order has already been processed")
	ErrSignatureVerification  = errors.New("payment signature verification failed")
	ErrInvalidGatewayResponse = errors.New("invalid order status received from payment gateway")
	ErrAmountMismatch         = errors.New("payment amount does not match expected order amount")
)

// StatusClient is the slice of the gateway client the reconciler needs: the
// authoritative status fetch. The callback's own status fields are never
// trusted for settlement decisions.
type StatusClient interface {
	OrderStatus(ctx context.Context, orderID string) (*gateway.OrderStatusResponse, error)
}

// Outcome describes a processed (not rejected) callback.
type Outcome struct {
	OrderID          string                 `json:"order_id"`
	Settled          bool                   `json:"settled"`
	Status           txlog.Status           `json:"status"`
	GatewayStatus    string                 `json:"gateway_status"`
	Amount           float64                `json:"amount"`
	TransactionCount int                    `json:"transaction_count"`
	TransactionID    string                 `json:"gateway_transaction_id,omitempty"`
	Customer         orders.CustomerDetails `json:"-"`
}

// Reconciler verifies gateway callbacks and reconciles them against the
// order ledger. It owns no state of its own; all durable writes go through
// the stores, and the final log-append plus status-update run inside one
// transaction.
type Reconciler struct {
	store       store.Storage
	gw          StatusClient
	responseKey string
	gatewayName string
	logger      *zap.SugaredLogger
}

func New(st store.Storage, gw StatusClient, responseKey string, logger *zap.SugaredLogger) *Reconciler {
	return &Reconciler{
		store:       st,
		gw:          gw,
		responseKey: responseKey,
		gatewayName: "HDFC",
		logger:      logger,
	}
}

// Process runs one inbound callback through the full pipeline: shape
// check, replay check, signature verification, authoritative status fetch,
// amount reconciliation, classification, transactional commit.
func (r *Reconciler) Process(ctx context.Context, payload map[string]string) (*Outcome, error) {
	orderID := strings.TrimSpace(payload["order_id"])
	if orderID == "" {
		return nil, ErrInvalidOrderID
	}

	// Replay check before anything with side effects: an already-settled
	// order must neither gain a log entry nor change status.
	settled, err := r.store.TxLog.HasSuccessful(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("replay check for %s: %w", orderID, err)
	}
	if settled {
		r.logger.Warnw("replay detected, payment already processed", "order_id", orderID)
		return nil, ErrAlreadyProcessed
	}

	// An unverified callback records nothing: a forged payload must not be
	// able to grow the audit trail.
	if !gateway.VerifySignature(payload, r.responseKey) {
		r.logger.Errorw("callback signature verification failed", "order_id", orderID)
		return nil, ErrSignatureVerification
	}

	// Authoritative status. The callback body said whatever the payer's
	// browser relayed; only the processor's answer decides settlement.
	statusResp, err := r.gw.OrderStatus(ctx, orderID)
	if err != nil {
		r.logger.Errorw("order status fetch failed", "order_id", orderID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrInvalidGatewayResponse, err)
	}

	rec, err := r.store.Orders.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			r.logger.Errorw("callback for unknown order", "order_id", orderID)
			return nil, orders.ErrOrderNotFound
		}
		return nil, fmt.Errorf("load ledger record for %s: %w", orderID, err)
	}

	gatewayAmount := statusResp.Amount
	if rec.ExpectedAmount > 0 && math.Abs(gatewayAmount-rec.ExpectedAmount) > AmountEpsilon {
		r.logger.Errorw("amount mismatch detected",
			"order_id", orderID,
			"expected_amount", rec.ExpectedAmount,
			"received_amount", gatewayAmount,
		)
		// The tampered attempt still lands in the log for audit, as FAILED;
		// the ledger goes FAILED, never COMPLETED.
		if _, commitErr := r.commit(ctx, rec, statusResp, txlog.StatusFailed); commitErr != nil {
			return nil, commitErr
		}
		return nil, ErrAmountMismatch
	}

	status := txlog.Classify(statusResp.Status)
	outcome, err := r.commit(ctx, rec, statusResp, status)
	if err != nil {
		return nil, err
	}
	outcome.GatewayStatus = statusResp.Status

	if outcome.Settled {
		r.logger.Infow("payment settled",
			"order_id", orderID,
			"amount", gatewayAmount,
			"status", statusResp.Status,
			"transaction_count", outcome.TransactionCount,
		)
	} else {
		r.logger.Warnw("non-successful payment callback",
			"order_id", orderID,
			"status", statusResp.Status,
		)
	}
	return outcome, nil
}

// commit appends the log entry and moves the ledger status as one logical
// write. A duplicate-success violation means a concurrent callback won the
// race after our replay check; the whole transaction rolls back and the
// caller sees ErrAlreadyProcessed.
func (r *Reconciler) commit(ctx context.Context, rec *orders.OrderRecord, statusResp *gateway.OrderStatusResponse, status txlog.Status) (*Outcome, error) {
	entry := txlog.Entry{
		OrderID:              rec.OrderID,
		TransactionStatus:    status,
		Amount:               statusResp.Amount,
		Products:             rec.LineItems,
		PaymentGateway:       r.gatewayName,
		GatewayTransactionID: statusResp.TransactionID(),
		SignatureVerified:    true,
	}

	err := r.store.WithTx(ctx, func(s store.Storage) error {
		count, err := s.TxLog.CountAttempts(ctx, rec.OrderID)
		if err != nil {
			return err
		}
		entry.TransactionCount = count + 1

		if err := s.TxLog.Append(ctx, &entry); err != nil {
			return err
		}

		ledgerStatus := orders.PaymentFailed
		if status.Successful() {
			ledgerStatus = orders.PaymentCompleted
		}
		return s.Orders.SetStatus(ctx, rec.OrderID, ledgerStatus)
	})
	if err != nil {
		if errors.Is(err, txlog.ErrDuplicateSuccess) {
			return nil, ErrAlreadyProcessed
		}
		return nil, fmt.Errorf("commit callback for %s: %w", rec.OrderID, err)
	}

	return &Outcome{
		OrderID:          rec.OrderID,
		Settled:          status.Successful(),
		Status:           status,
		Amount:           statusResp.Amount,
		TransactionCount: entry.TransactionCount,
		TransactionID:    statusResp.TransactionID(),
		Customer:         rec.Customer,
	}, nil
}
