package main

import (
	"context"
	"expvar"
	"log"
	"os"
	"runtime"
	"strconv"
	"time"

	"vision/internal/db"
	"vision/internal/domain/orders"
	"vision/internal/gateway"
	"vision/internal/mailer"
	"vision/internal/reconcile"
	"vision/internal/store"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a new zap logger with color.
func NewLogger() (*zap.SugaredLogger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)
	level := zapcore.InfoLevel

	core := zapcore.NewCore(consoleEncoder, zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout)), level)

	return zap.New(core).Sugar(), nil
}

var version = "1.0.0"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Fatalf("Error loading .env file: %v", err)
	}

	maxConns := int32(10)
	if raw := os.Getenv("DB_MAX_CONNS"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			log.Fatalf("Invalid value for DB_MAX_CONNS: %v", err)
		}
		maxConns = int32(parsed)
	}

	mailPort := 587
	if raw := os.Getenv("SMTP_PORT"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			log.Fatalf("Invalid value for SMTP_PORT: %v", err)
		}
		mailPort = parsed
	}

	gatewayCfg, err := gateway.LoadConfig()
	if err != nil {
		log.Fatalf("gateway configuration: %v", err)
	}

	cfg := config{
		addr:        os.Getenv("ADDR"),
		env:         os.Getenv("ENV"),
		apiURL:      os.Getenv("EXTERNAL_URL"),
		frontendURL: os.Getenv("FRONTEND_URL"),
		db: dbConfig{
			addr:        os.Getenv("DB_ADDR"),
			maxConns:    maxConns,
			maxIdleTime: envOr("DB_MAX_IDLE_TIME", "15m"),
		},
		gateway: gatewayCfg,
		mail: mailConfig{
			host:      os.Getenv("SMTP_HOST"),
			port:      mailPort,
			username:  os.Getenv("SMTP_USERNAME"),
			password:  os.Getenv("SMTP_PASSWORD"),
			fromEmail: os.Getenv("SMTP_FROM_EMAIL"),
		},
		auth: authConfig{
			basic: basicConfig{
				user: os.Getenv("AUTH_BASIC_USER"),
				pass: os.Getenv("AUTH_BASIC_PASS"),
			},
		},
	}

	logger, err := NewLogger()
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer logger.Sync()

	pool, err := db.New(cfg.db.addr, cfg.db.maxConns, cfg.db.maxIdleTime)
	if err != nil {
		logger.Fatal(err)
	}
	defer pool.Close()
	logger.Info("database connection pool established")

	storage := store.NewStorage(pool)
	{
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := storage.InitSchema(ctx); err != nil {
			cancel()
			logger.Fatal(err)
		}
		cancel()
	}

	audit, err := gateway.NewAuditLogger(cfg.gateway.LoggingPath, cfg.gateway.EnableLogging)
	if err != nil {
		logger.Fatal(err)
	}
	defer audit.Sync()

	gatewayClient := gateway.NewClient(cfg.gateway, audit)

	orderIDs, err := orders.NewOrderIDGenerator()
	if err != nil {
		logger.Fatal(err)
	}

	// Receipt mail is optional: without SMTP settings settled payments are
	// simply not followed by an email.
	var mailClient mailer.Client
	if cfg.mail.host != "" {
		mailClient, err = mailer.NewSMTPClient(cfg.mail.host, cfg.mail.port, cfg.mail.username, cfg.mail.password, cfg.mail.fromEmail)
		if err != nil {
			logger.Fatal(err)
		}
	} else {
		logger.Warn("SMTP_HOST not set, payment receipt mail disabled")
	}

	reconciler := reconcile.New(storage, gatewayClient, cfg.gateway.ResponseKey, logger)

	app := &application{
		config:     cfg,
		logger:     logger,
		store:      storage,
		gateway:    gatewayClient,
		reconciler: reconciler,
		orderIDs:   orderIDs,
		mailer:     mailClient,
	}

	// Metrics collected at /v1/debug/vars
	expvar.NewString("version").Set(version)
	expvar.Publish("database", expvar.Func(func() any {
		stat := pool.Stat()
		return map[string]any{
			"total_conns":    stat.TotalConns(),
			"idle_conns":     stat.IdleConns(),
			"acquired_conns": stat.AcquiredConns(),
		}
	}))
	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	mux := app.mount()

	logger.Fatal(app.run(mux))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
