// Package api serves the gateway over HTTP. Every trading route requires the
// configured key in the Authorization header and a `dex` query parameter
// naming an enabled exchange.
package api

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/shigeo-nakamura/dex-router/internal/exchange"
	"github.com/shigeo-nakamura/dex-router/internal/logger"
	"github.com/shigeo-nakamura/dex-router/internal/metrics"
	"github.com/shigeo-nakamura/dex-router/pkg/errors"
	"go.uber.org/zap"
)

// Router resolves the dex routing key. *gateway.Gateway implements it.
type Router interface {
	Adapter(dex string) (exchange.Adapter, error)
	Names() []exchange.Name
}

// Config configures the HTTP server.
type Config struct {
	Listen string
	APIKey string
	// ReadTimeout bounds reading a request. Zero uses DefaultReadTimeout.
	ReadTimeout time.Duration
}

const DefaultReadTimeout = 10 * time.Second

// Server is the HTTP front of the gateway.
type Server struct {
	cfg     Config
	router  Router
	log     *logger.Logger
	metrics *metrics.Recorder
	handler http.Handler
	http    *http.Server
}

// NewServer wires the routes. rec may be nil, in which case /metrics is not served.
func NewServer(cfg Config, router Router, log *logger.Logger, rec *metrics.Recorder) *Server {
	if log == nil {
		log = logger.NewNopLogger()
	}

	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	s := &Server{
		cfg:     cfg,
		router:  router,
		log:     log.Named("api"),
		metrics: rec,
	}
	s.handler = s.routes()

	return s
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	trading := r.NewRoute().Subrouter()
	trading.Use(s.authorize, s.resolveDex)

	trading.HandleFunc("/ticker", s.handleTicker).Methods(http.MethodGet)
	trading.HandleFunc("/balance", s.handleBalance).Methods(http.MethodGet)
	trading.HandleFunc("/yesterday-pnl", s.handleYesterdayPnL).Methods(http.MethodGet)
	trading.HandleFunc("/create-order", s.handleCreateOrder).Methods(http.MethodPost)
	trading.HandleFunc("/cancel-order", s.handleCancelOrder).Methods(http.MethodPost)
	trading.HandleFunc("/close_all_positions", s.handleCloseAllPositions).Methods(http.MethodPost)
	trading.HandleFunc("/filled-orders", s.handleFilledOrders).Methods(http.MethodGet)
	trading.HandleFunc("/filled-orders", s.handleClearFilledOrder).Methods(http.MethodDelete)

	return r
}

// Handler returns the routed handler. It is used by tests and by callers that
// run their own http.Server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe blocks until the server stops. A graceful Shutdown is not an error.
func (s *Server) ListenAndServe() error {
	s.http = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
	}

	s.log.Info("HTTP server listening", zap.String("addr", s.cfg.Listen))

	if err := s.http.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return errors.Wrapf(errors.ErrCodeConfiguration, err, "failed to listen on %s", s.cfg.Listen)
	}

	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}

	return s.http.Shutdown(ctx)
}
