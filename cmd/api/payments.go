package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"vision/internal/domain/orders"
	"vision/internal/gateway"
	"vision/internal/mailer"
	"vision/internal/reconcile"

	"github.com/google/uuid"
)

type initiateProduct struct {
	ProductID string  `json:"product_id" validate:"required"`
	Name      string  `json:"name" validate:"required"`
	Price     float64 `json:"price" validate:"gte=0"`
	Quantity  int     `json:"quantity" validate:"gte=1"`
}

type initiateCustomer struct {
	CustomerID    string `json:"customer_id" validate:"required"`
	CustomerEmail string `json:"customer_email" validate:"required,email"`
	CustomerPhone string `json:"customer_phone"`
	CustomerName  string `json:"customer_name" validate:"required"`
}

type initiatePaymentRequest struct {
	OrderID   string            `json:"order_id"`
	Products  []initiateProduct `json:"products" validate:"required,min=1,dive"`
	Customer  initiateCustomer  `json:"customer" validate:"required"`
	ReturnURL string            `json:"return_url" validate:"required,url"`
}

// initiatePaymentHandler godoc
//
//	@Summary		Initiate a gateway payment session
//	@Description	Persists the priced order server-side, then asks the gateway for a hosted payment page session. The amount sent to the gateway is always the server-computed total.
//	@Tags			Payments
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	map[string]any	"Envelope: { data: { order_id, payment_url, session } }"
//	@Failure		400	{object}	error			"Bad Request"
//	@Failure		502	{object}	error			"Gateway error"
//	@Router			/payments/initiate [post]
func (app *application) initiatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	var payload initiatePaymentRequest
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	orderID := orders.NormalizeOrderID(payload.OrderID)
	if orderID == "" {
		orderID = app.orderIDs.Generate()
	}

	items := make([]orders.LineItem, 0, len(payload.Products))
	for _, p := range payload.Products {
		items = append(items, orders.LineItem{
			ProductID: p.ProductID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  p.Quantity,
		})
	}
	customer := orders.CustomerDetails{
		CustomerID:    payload.Customer.CustomerID,
		CustomerEmail: payload.Customer.CustomerEmail,
		CustomerPhone: payload.Customer.CustomerPhone,
		CustomerName:  payload.Customer.CustomerName,
	}

	// The ledger row has to exist, with its server-computed amount, before
	// any gateway session is created; the callback reconciles against it.
	rec, err := app.store.Orders.Upsert(r.Context(), orderID, items, customer)
	if err != nil {
		app.internalServerError(w, r, fmt.Errorf("failed to save order details: %w", err))
		return
	}
	if rec.ExpectedAmount <= 0 {
		app.badRequestResponse(w, r, errors.New("order total must be greater than zero"))
		return
	}

	session, err := app.gateway.OrderSession(r.Context(), gateway.SessionRequest{
		OrderID:   orderID,
		Amount:    rec.ExpectedAmount,
		Currency:  "INR",
		ReturnURL: payload.ReturnURL,
		Customer: gateway.CustomerDetails{
			CustomerID:    customer.CustomerID,
			CustomerEmail: customer.CustomerEmail,
			CustomerPhone: customer.CustomerPhone,
			CustomerName:  customer.CustomerName,
		},
	})
	if err != nil {
		app.gatewayErrorResponse(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, map[string]any{
		"order_id":    orderID,
		"payment_url": session.RedirectURL(),
		"session":     session,
	})
}

// paymentCallbackHandler godoc
//
//	@Summary		Gateway payment callback
//	@Description	Verifies the callback signature, reconciles the reported amount against the ledger and records the attempt. Browsers are redirected to the frontend status page; JSON callers get the outcome envelope.
//	@Tags			Payments
//	@Accept			json
//	@Produce		json
//	@Router			/payments/callback [post]
func (app *application) paymentCallbackHandler(w http.ResponseWriter, r *http.Request) {
	payload, err := flattenCallbackPayload(w, r)
	if err != nil {
		app.badRequestResponse(w, r, fmt.Errorf("invalid callback payload: %w", err))
		return
	}

	outcome, err := app.reconciler.Process(r.Context(), payload)
	if err != nil {
		app.callbackRejection(w, r, payload["order_id"], err)
		return
	}

	if outcome.Settled && app.mailer != nil {
		go app.sendPaymentReceipt(*outcome)
	}

	if wantsJSON(r) {
		app.jsonResponse(w, http.StatusOK, outcome)
		return
	}
	app.redirectToStatusPage(w, r, outcome.OrderID, outcome.GatewayStatus)
}

// paymentStatusHandler godoc
//
//	@Summary		Query gateway order status
//	@Tags			Payments
//	@Produce		json
//	@Param			order_id	query	string	true	"Order identifier"
//	@Router			/payments/status [get]
func (app *application) paymentStatusHandler(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(r.URL.Query().Get("order_id"))
	if orderID == "" {
		app.badRequestResponse(w, r, errors.New("missing order_id"))
		return
	}

	status, err := app.gateway.OrderStatus(r.Context(), orderID)
	if err != nil {
		app.gatewayErrorResponse(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, map[string]any{"order": status})
}

type refundPaymentRequest struct {
	OrderID string  `json:"order_id" validate:"required"`
	Amount  float64 `json:"amount" validate:"gt=0"`
}

// refundPaymentHandler asks the gateway to reverse a settled order. The
// unique request id makes retries of the same refund idempotent upstream.
func (app *application) refundPaymentHandler(w http.ResponseWriter, r *http.Request) {
	var payload refundPaymentRequest
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}
	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	refund, err := app.gateway.Refund(r.Context(), gateway.RefundRequest{
		OrderID:         orders.NormalizeOrderID(payload.OrderID),
		UniqueRequestID: uuid.NewString(),
		Amount:          payload.Amount,
	})
	if err != nil {
		app.gatewayErrorResponse(w, r, err)
		return
	}

	app.jsonResponse(w, http.StatusOK, map[string]any{"refund": refund})
}

// flattenCallbackPayload accepts the gateway's form-encoded POST as well as
// a JSON body and flattens either into the string map the verifier signs
// over. Numbers are kept as their source text (json.Number): the signature
// was computed over the wire bytes, so "1234567.89" must not come out as
// "1.23456789e+06".
func flattenCallbackPayload(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	ct := r.Header.Get("Content-Type")
	if strings.Contains(ct, "application/json") {
		r.Body = http.MaxBytesReader(w, r.Body, 1_048_578)
		decoder := json.NewDecoder(r.Body)
		decoder.UseNumber()

		var raw map[string]any
		if err := decoder.Decode(&raw); err != nil {
			return nil, err
		}
		payload := make(map[string]string, len(raw))
		for k, v := range raw {
			switch t := v.(type) {
			case string:
				payload[k] = t
			case json.Number:
				payload[k] = t.String()
			case bool:
				payload[k] = strconv.FormatBool(t)
			case nil:
				payload[k] = "null"
			default:
				payload[k] = fmt.Sprint(t)
			}
		}
		return payload, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	payload := make(map[string]string, len(r.PostForm))
	for k, vals := range r.PostForm {
		if len(vals) > 0 {
			payload[k] = vals[0]
		}
	}
	return payload, nil
}

type callbackError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	OrderID string `json:"order_id,omitempty"`
}

// callbackRejection maps every reconciliation failure onto a stable error
// code; rejected callbacks never redirect, the gateway retries against the
// JSON response.
func (app *application) callbackRejection(w http.ResponseWriter, r *http.Request, orderID string, err error) {
	var apiErr *gateway.APIError

	switch {
	case errors.Is(err, reconcile.ErrInvalidOrderID):
		writeJSON(w, http.StatusBadRequest, callbackError{Error: "INVALID_ORDER_ID", Message: err.Error()})
	case errors.Is(err, reconcile.ErrAlreadyProcessed):
		app.logger.Warnw("duplicate callback rejected", "order_id", orderID)
		writeJSON(w, http.StatusConflict, callbackError{Error: "PAYMENT_ALREADY_PROCESSED", Message: err.Error(), OrderID: orderID})
	case errors.Is(err, reconcile.ErrSignatureVerification):
		writeJSON(w, http.StatusBadRequest, callbackError{Error: "SIGNATURE_VERIFICATION_FAILED", Message: err.Error()})
	case errors.Is(err, orders.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, callbackError{Error: "ORDER_NOT_FOUND", Message: "order details not found", OrderID: orderID})
	case errors.Is(err, reconcile.ErrAmountMismatch):
		writeJSON(w, http.StatusBadRequest, callbackError{Error: "AMOUNT_MISMATCH", Message: err.Error(), OrderID: orderID})
	case errors.As(err, &apiErr) && apiErr.Timeout():
		app.logger.Errorw("gateway timeout during callback", "order_id", orderID)
		writeJSON(w, http.StatusGatewayTimeout, callbackError{Error: "REQUEST_TIMEOUT", Message: err.Error(), OrderID: orderID})
	case errors.Is(err, reconcile.ErrInvalidGatewayResponse):
		writeJSON(w, http.StatusBadGateway, callbackError{Error: "INVALID_ORDER_STATUS", Message: err.Error(), OrderID: orderID})
	default:
		app.internalServerError(w, r, err)
	}
}

// gatewayErrorResponse surfaces client-side gateway failures, preserving
// the upstream status code where one exists.
func (app *application) gatewayErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Timeout():
			app.gatewayTimeoutResponse(w, r, err)
		case apiErr.HTTPStatus >= 400 && apiErr.HTTPStatus < 600:
			app.logger.Errorw("gateway error", "method", r.Method, "path", r.URL.Path,
				"upstream_status", apiErr.Status, "error_code", apiErr.ErrorCode, "http_status", apiErr.HTTPStatus)
			writeJSONError(w, apiErr.HTTPStatus, apiErr.Error())
		default:
			app.badGatewayResponse(w, r, err)
		}
		return
	}
	app.badGatewayResponse(w, r, err)
}

func (app *application) redirectToStatusPage(w http.ResponseWriter, r *http.Request, orderID, status string) {
	q := url.Values{}
	q.Set("order_id", orderID)
	q.Set("status", status)
	http.Redirect(w, r, fmt.Sprintf("%s/payment/callback?%s", app.config.frontendURL, q.Encode()), http.StatusFound)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func (app *application) sendPaymentReceipt(outcome reconcile.Outcome) {
	if outcome.Customer.CustomerEmail == "" {
		return
	}

	data := map[string]any{
		"OrderID":       outcome.OrderID,
		"CustomerName":  outcome.Customer.CustomerName,
		"Amount":        outcome.Amount,
		"Status":        string(outcome.Status),
		"TransactionID": outcome.TransactionID,
	}

	if _, err := app.mailer.Send(mailer.PaymentReceiptTemplate, outcome.Customer.CustomerName, outcome.Customer.CustomerEmail, data); err != nil {
		app.logger.Errorw("failed to send payment receipt", "order_id", outcome.OrderID, "error", err)
		return
	}
	app.logger.Infow("payment receipt sent", "order_id", outcome.OrderID)
}
