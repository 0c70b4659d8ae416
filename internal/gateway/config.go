package gateway

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DefaultRequestTimeout bounds a single outbound gateway call, connection
// setup included. The processor is slow on busy days; 100s matches their
// integration guidance.
const DefaultRequestTimeout = 100 * time.Second

// Config carries the merchant credentials and switches for one gateway
// account. It is built once at startup and passed by value into the client;
// there is no package-level instance.
type Config struct {
	MerchantID          string
	APIKey              string
	PaymentPageClientID string
	BaseURL             string
	ResponseKey         string
	EnableLogging       bool
	LoggingPath         string
	RequestTimeout      time.Duration
}

// ConfigError reports a required gateway key missing from the environment.
// It is fatal at startup: a client constructed without credentials would
// fail every call anyway.
type ConfigError struct {
	Key string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("gateway config: %s not present", e.Key)
}

// requiredKeys mirrors the processor's integration kit: all seven must be
// set before the client may be constructed.
var requiredKeys = []string{
	"MERCHANT_ID",
	"API_KEY",
	"PAYMENT_PAGE_CLIENT_ID",
	"BASE_URL",
	"ENABLE_LOGGING",
	"LOGGING_PATH",
	"RESPONSE_KEY",
}

// LoadConfig reads the gateway configuration from the environment. The
// first missing key aborts the load with a ConfigError naming it.
func LoadConfig() (Config, error) {
	for _, key := range requiredKeys {
		if os.Getenv(key) == "" {
			return Config{}, &ConfigError{Key: key}
		}
	}

	enableLogging, err := strconv.ParseBool(os.Getenv("ENABLE_LOGGING"))
	if err != nil {
		return Config{}, fmt.Errorf("gateway config: invalid ENABLE_LOGGING: %w", err)
	}

	timeout := DefaultRequestTimeout
	if raw := os.Getenv("GATEWAY_REQUEST_TIMEOUT"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("gateway config: invalid GATEWAY_REQUEST_TIMEOUT: %q", raw)
		}
		timeout = time.Duration(seconds) * time.Second
	}

	return Config{
		MerchantID:          os.Getenv("MERCHANT_ID"),
		APIKey:              os.Getenv("API_KEY"),
		PaymentPageClientID: os.Getenv("PAYMENT_PAGE_CLIENT_ID"),
		BaseURL:             os.Getenv("BASE_URL"),
		ResponseKey:         os.Getenv("RESPONSE_KEY"),
		EnableLogging:       enableLogging,
		LoggingPath:         os.Getenv("LOGGING_PATH"),
		RequestTimeout:      timeout,
	}, nil
}
