package main

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vision/internal/domain/orders"
	"vision/internal/gateway"
	"vision/internal/mailer"
	"vision/internal/reconcile"
	"vision/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

type application struct {
	config     config
	store      store.Storage
	logger     *zap.SugaredLogger
	gateway    *gateway.Client
	reconciler *reconcile.Reconciler
	orderIDs   *orders.OrderIDGenerator
	mailer     mailer.Client
}

type config struct {
	addr        string
	env         string
	apiURL      string
	frontendURL string
	db          dbConfig
	gateway     gateway.Config
	mail        mailConfig
	auth        authConfig
}

type authConfig struct {
	basic basicConfig
}

type basicConfig struct {
	user string
	pass string
}

type mailConfig struct {
	host      string
	port      int
	username  string
	password  string
	fromEmail string
}

type dbConfig struct {
	addr        string
	maxConns    int32
	maxIdleTime string
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Callback processing includes a gateway round trip bounded by its own
	// hard timeout; the request timeout has to sit above it.
	r.Use(middleware.Timeout(app.requestTimeout()))

	r.Route("/v1", func(r chi.Router) {
		r.With(app.BasicAuthMiddleware()).Get("/health", app.healthCheckHandler)
		r.With(app.BasicAuthMiddleware()).Get("/debug/vars", expvar.Handler().ServeHTTP)

		r.Route("/payments", func(r chi.Router) {
			r.Post("/initiate", app.initiatePaymentHandler)
			r.Post("/callback", app.paymentCallbackHandler)
			r.Get("/status", app.paymentStatusHandler)
			r.With(app.BasicAuthMiddleware()).Post("/refund", app.refundPaymentHandler)
		})
	})
	return r
}

// requestTimeout bounds a whole inbound request. It tracks the configured
// gateway timeout rather than the default so a raised GATEWAY_REQUEST_TIMEOUT
// is not cut off by the router.
func (app *application) requestTimeout() time.Duration {
	t := app.config.gateway.RequestTimeout
	if t <= 0 {
		t = gateway.DefaultRequestTimeout
	}
	return t + 20*time.Second
}

func (app *application) run(mux http.Handler) error {
	srv := &http.Server{
		Addr:         app.config.addr,
		Handler:      mux,
		WriteTimeout: app.requestTimeout() + 10*time.Second,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute,
	}

	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Infow("signal caught", "signal", s.String())

		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Infow("server has started", "addr", app.config.addr, "env", app.config.env)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Infow("server has stopped", "addr", app.config.addr, "env", app.config.env)

	return nil
}
