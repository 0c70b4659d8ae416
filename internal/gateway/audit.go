package gateway

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// AuditLogger writes one JSON line per gateway request/response to the
// configured audit file. Every line carries the api tag (which operation)
// and the per-call payment request id so a single call can be traced across
// request, response and error lines. It never blocks the response path and
// never propagates a failure: a broken audit trail must not break payments.
type AuditLogger struct {
	l *zap.Logger
}

// NewAuditLogger opens (or creates) the audit file at path. With enabled
// false it returns a no-op logger so call sites stay unconditional.
func NewAuditLogger(path string, enabled bool) (*AuditLogger, error) {
	if !enabled {
		return &AuditLogger{l: zap.NewNop()}, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("audit log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit log file: %w", err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(f),
		zapcore.InfoLevel,
	)

	return &AuditLogger{l: zap.New(core)}, nil
}

func (a *AuditLogger) Info(apiTag, requestID, message string, value any) {
	if a == nil || a.l == nil {
		return
	}
	a.l.Info(message,
		zap.String("api_tag", apiTag),
		zap.String("payment_request_id", requestID),
		zap.Any("value", value),
	)
}

func (a *AuditLogger) Error(apiTag, requestID, message string, value any) {
	if a == nil || a.l == nil {
		return
	}
	a.l.Error(message,
		zap.String("api_tag", apiTag),
		zap.String("payment_request_id", requestID),
		zap.Any("value", value),
	)
}

// Sync flushes buffered audit lines; called on shutdown.
func (a *AuditLogger) Sync() {
	if a == nil || a.l == nil {
		return
	}
	_ = a.l.Sync()
}
