package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	apiVersion = "2024-06-24"
	userAgent  = "GO_KIT/1.0.0"
)

// Client issues authenticated calls to the payment processor. It is
// constructed once at startup and passed by handle to whoever needs it;
// connections are reused across calls through the shared transport.
type Client struct {
	cfg        Config
	httpClient *http.Client
	audit      *AuditLogger
}

func NewClient(cfg Config, audit *AuditLogger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		audit: audit,
	}
}

// OrderSession asks the processor for a hosted payment page session. The
// ledger row for the order must already exist when this is called.
func (c *Client) OrderSession(ctx context.Context, req SessionRequest) (*SessionResponse, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return nil, &APIError{HTTPStatus: -1, Status: "INVALID_PARAMS", ErrorCode: "INVALID_PARAMS", ErrorMessage: "order_id is required"}
	}

	raw, err := c.do(ctx, apiCall{
		tag:      "ORDER_SESSION",
		method:   http.MethodPost,
		path:     "/session",
		jsonBody: sessionPayload{PaymentPageClientID: c.cfg.PaymentPageClientID, SessionRequest: req},
	})
	if err != nil {
		return nil, err
	}

	var session SessionResponse
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, &APIError{HTTPStatus: -1, Status: "INVALID_RESPONSE", ErrorCode: "INVALID_RESPONSE", ErrorMessage: "failed to decode session response"}
	}
	if session.RedirectURL() == "" {
		return nil, &APIError{HTTPStatus: -1, Status: "INVALID_RESPONSE", ErrorCode: "INVALID_RESPONSE", ErrorMessage: "session response missing payment url"}
	}
	return &session, nil
}

// OrderStatus queries the processor for the authoritative state of an
// order. Callback reconciliation trusts this response, never the callback's
// own status fields.
func (c *Client) OrderStatus(ctx context.Context, orderID string) (*OrderStatusResponse, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, &APIError{HTTPStatus: -1, Status: "INVALID_PARAMS", ErrorCode: "INVALID_PARAMS", ErrorMessage: "order_id is missing"}
	}

	raw, err := c.do(ctx, apiCall{
		tag:    "ORDER_STATUS",
		method: http.MethodGet,
		path:   "/orders/" + url.PathEscape(orderID),
	})
	if err != nil {
		return nil, err
	}

	var status OrderStatusResponse
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, &APIError{HTTPStatus: -1, Status: "INVALID_RESPONSE", ErrorCode: "INVALID_RESPONSE", ErrorMessage: "failed to decode order status response"}
	}
	if status.Status == "" {
		return nil, &APIError{HTTPStatus: -1, Status: "INVALID_RESPONSE", ErrorCode: "INVALID_RESPONSE", ErrorMessage: "order status response missing status"}
	}
	return &status, nil
}

// Refund asks the processor to reverse a settled order, fully or partially.
func (c *Client) Refund(ctx context.Context, req RefundRequest) (*RefundResponse, error) {
	if strings.TrimSpace(req.OrderID) == "" {
		return nil, &APIError{HTTPStatus: -1, Status: "INVALID_PARAMS", ErrorCode: "INVALID_PARAMS", ErrorMessage: "order_id is required"}
	}

	form := url.Values{}
	form.Set("order_id", req.OrderID)
	form.Set("unique_request_id", req.UniqueRequestID)
	form.Set("amount", fmt.Sprintf("%.2f", req.Amount))

	raw, err := c.do(ctx, apiCall{
		tag:    "ORDER_REFUND",
		method: http.MethodPost,
		path:   "/refunds",
		form:   form,
	})
	if err != nil {
		return nil, err
	}

	var refund RefundResponse
	if err := json.Unmarshal(raw, &refund); err != nil {
		return nil, &APIError{HTTPStatus: -1, Status: "INVALID_RESPONSE", ErrorCode: "INVALID_RESPONSE", ErrorMessage: "failed to decode refund response"}
	}
	return &refund, nil
}

type apiCall struct {
	tag      string
	method   string
	path     string
	query    url.Values
	jsonBody any        // marshalled as application/json when set
	form     url.Values // x-www-form-urlencoded otherwise
}

// do runs one authenticated round trip. Each call gets a fresh correlation
// id that tags every audit line for the call; audit logging is best-effort
// and never fails the request.
func (c *Client) do(ctx context.Context, call apiCall) (json.RawMessage, error) {
	requestID := uuid.NewString()

	var (
		body        []byte
		contentType string
	)
	switch {
	case call.jsonBody != nil:
		b, err := json.Marshal(call.jsonBody)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", call.tag, err)
		}
		body = b
		contentType = "application/json"
	case call.form != nil:
		body = []byte(call.form.Encode())
		contentType = "application/x-www-form-urlencoded"
	default:
		contentType = "application/x-www-form-urlencoded"
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + call.path
	if len(call.query) > 0 {
		endpoint += "?" + call.query.Encode()
	}

	c.audit.Info(call.tag, requestID, "request parameters", string(body))
	c.audit.Info(call.tag, requestID, "executing request", endpoint)

	req, err := http.NewRequestWithContext(ctx, call.method, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", call.tag, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("version", apiVersion)
	req.Header.Set("x-merchantid", c.cfg.MerchantID)
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(c.cfg.APIKey)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			c.audit.Error(call.tag, requestID, "request has been timed out", nil)
			return nil, &APIError{HTTPStatus: -1, Status: "REQUEST_TIMEOUT", ErrorCode: "REQUEST_TIMEOUT", ErrorMessage: "request has been timed out"}
		}
		c.audit.Error(call.tag, requestID, "failed to establish connection", err.Error())
		return nil, fmt.Errorf("gateway %s request: %w", call.tag, err)
	}
	defer resp.Body.Close()

	c.audit.Info(call.tag, requestID, "received http response code", resp.StatusCode)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			c.audit.Error(call.tag, requestID, "request has been timed out", nil)
			return nil, &APIError{HTTPStatus: -1, Status: "REQUEST_TIMEOUT", ErrorCode: "REQUEST_TIMEOUT", ErrorMessage: "request has been timed out"}
		}
		c.audit.Error(call.tag, requestID, "failed to read response body", err.Error())
		return nil, fmt.Errorf("gateway %s response: %w", call.tag, err)
	}

	c.audit.Info(call.tag, requestID, "received response", string(respBody))

	// Only JSON bodies are accepted, success or failure.
	var probe any
	if err := json.Unmarshal(respBody, &probe); err != nil {
		c.audit.Error(call.tag, requestID, "invalid response format", string(respBody))
		message := string(respBody)
		if message == "" {
			message = "failed to parse response json"
		}
		return nil, &APIError{HTTPStatus: resp.StatusCode, Status: "INVALID_RESPONSE", ErrorCode: "INVALID_RESPONSE", ErrorMessage: message}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return json.RawMessage(respBody), nil
	}

	var upstream struct {
		Status       string `json:"status"`
		ErrorCode    string `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	}
	_ = json.Unmarshal(respBody, &upstream)
	return nil, &APIError{
		HTTPStatus:   resp.StatusCode,
		Status:       upstream.Status,
		ErrorCode:    upstream.ErrorCode,
		ErrorMessage: upstream.ErrorMessage,
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
