package gateway

import "fmt"

// CustomerDetails is the customer block the processor expects on a session
// request. Phone must be a bare 10-digit number; the processor rejects
// prefixed formats.
type CustomerDetails struct {
	CustomerID    string `json:"customer_id"`
	CustomerEmail string `json:"customer_email"`
	CustomerPhone string `json:"customer_phone"`
	CustomerName  string `json:"customer_name"`
}

// SessionRequest creates a hosted payment page session for an order. Amount
// is in currency units and must be the server-computed total, never a
// client-declared one.
type SessionRequest struct {
	OrderID   string          `json:"order_id"`
	Amount    float64         `json:"amount"`
	Currency  string          `json:"currency"`
	ReturnURL string          `json:"return_url"`
	Customer  CustomerDetails `json:"customer_details"`
}

// sessionPayload is the wire shape: the request plus the merchant's payment
// page client id, which callers never supply themselves.
type sessionPayload struct {
	PaymentPageClientID string `json:"payment_page_client_id"`
	SessionRequest
}

type SessionResponse struct {
	ID           string `json:"id"`
	OrderID      string `json:"order_id"`
	Status       string `json:"status"`
	PaymentURL   string `json:"payment_url"`
	PaymentLinks struct {
		Web string `json:"web"`
	} `json:"payment_links"`
}

// RedirectURL returns wherever the payer should be sent; the processor
// answers with payment_url on some plans and payment_links.web on others.
func (s *SessionResponse) RedirectURL() string {
	if s.PaymentURL != "" {
		return s.PaymentURL
	}
	return s.PaymentLinks.Web
}

type OrderStatusResponse struct {
	ID      string  `json:"id"`
	OrderID string  `json:"order_id"`
	Status  string  `json:"status"`
	Amount  float64 `json:"amount"`
	TxnID   string  `json:"txn_id"`
}

// TransactionID is the processor-side reference for the settlement attempt.
func (o *OrderStatusResponse) TransactionID() string {
	if o.TxnID != "" {
		return o.TxnID
	}
	return o.ID
}

type RefundRequest struct {
	OrderID         string
	UniqueRequestID string
	Amount          float64
}

type RefundResponse struct {
	OrderID string  `json:"order_id"`
	Status  string  `json:"status"`
	Amount  float64 `json:"amount"`
}

// APIError is a gateway-level failure: a non-2xx response, an unparseable
// body, or a timed-out call. The upstream status/code/message are preserved
// so callers can surface them unchanged.
type APIError struct {
	HTTPStatus   int
	Status       string
	ErrorCode    string
	ErrorMessage string
}

func (e *APIError) Error() string {
	if e.ErrorMessage != "" {
		return e.ErrorMessage
	}
	if e.ErrorCode != "" {
		return e.ErrorCode
	}
	return fmt.Sprintf("gateway error (http %d)", e.HTTPStatus)
}

// Timeout reports whether the call was aborted by the hard request timeout.
func (e *APIError) Timeout() bool {
	return e.ErrorCode == "REQUEST_TIMEOUT"
}
