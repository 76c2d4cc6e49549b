// Package stream keeps exchange websocket feeds connected and hands every
// frame to an exchange specific handler.
package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
	"github.com/shigeo-nakamura/dex-router/internal/logger"
	"github.com/shigeo-nakamura/dex-router/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultReadTimeout      = 60 * time.Second
	DefaultPingInterval     = 20 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
)

// Writer sends frames on the current connection.
type Writer interface {
	WriteJSON(v any) error
}

// Handler implements the exchange side of one feed.
// OnMessage runs on the read goroutine and must not block on I/O.
type Handler interface {
	ID() string
	URL() string
	// OnConnect authenticates and subscribes. An error drops the connection.
	OnConnect(ctx context.Context, w Writer) error
	OnMessage(msg []byte)
}

// Pinger is implemented by handlers whose exchange expects an application
// level ping frame instead of a websocket control ping.
type Pinger interface {
	PingMessage() any
}

// Config tunes a Worker. Zero values use the defaults.
type Config struct {
	ReadTimeout  time.Duration
	PingInterval time.Duration
	MinBackoff   time.Duration
	MaxBackoff   time.Duration
}

// Worker owns one websocket connection and reconnects it with backoff until stopped.
type Worker struct {
	handler Handler
	cfg     Config
	log     *logger.Logger
	dialer  websocket.Dialer

	mu      sync.RWMutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	cancel context.CancelFunc
	wg     sync.WaitGroup

	onConnect func()
}

// NewWorker creates a worker for handler.
func NewWorker(handler Handler, cfg Config, log *logger.Logger) *Worker {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}

	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}

	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}

	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = time.Minute
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Worker{
		handler: handler,
		cfg:     cfg,
		log:     log.Named("stream").With(zap.String("feed", handler.ID())),
		dialer:  websocket.Dialer{HandshakeTimeout: DefaultHandshakeTimeout},
	}
}

// OnConnected registers a hook called after every successful subscription.
func (w *Worker) OnConnected(fn func()) {
	w.onConnect = fn
}

// Start launches the connection loop.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)

	go w.runLoop(ctx)
}

// Stop closes the connection and waits for the loop to exit.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}

	w.closeConn()
	w.wg.Wait()
}

// WriteJSON sends v on the current connection.
func (w *Worker) WriteJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidParameter, "failed to encode frame", err)
	}

	return w.write(websocket.TextMessage, payload)
}

func (w *Worker) write(messageType int, data []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.RLock()
	c := w.conn
	w.mu.RUnlock()

	if c == nil {
		return errors.New(errors.ErrCodeUpstream, "websocket is not connected")
	}

	return c.WriteMessage(messageType, data)
}

func (w *Worker) runLoop(ctx context.Context) {
	defer w.wg.Done()

	b := &backoff.Backoff{
		Min:    w.cfg.MinBackoff,
		Max:    w.cfg.MaxBackoff,
		Factor: 2,
		Jitter: true,
	}

	for {
		if ctx.Err() != nil {
			return
		}

		if err := w.connect(ctx); err != nil {
			delay := b.Duration()
			w.log.Warn("Websocket connection failed",
				zap.Error(err),
				zap.Float64("attempt", b.Attempt()),
				zap.Duration("retry_in", delay),
			)

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		b.Reset()
		w.process(ctx)
	}
}

func (w *Worker) connect(ctx context.Context) error {
	conn, _, err := w.dialer.DialContext(ctx, w.handler.URL(), nil)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	if err := w.handler.OnConnect(ctx, w); err != nil {
		w.closeConn()

		return errors.Wrap(errors.ErrCodeUpstream, "websocket subscription failed", err)
	}

	w.log.Info("Websocket connected", zap.String("url", w.handler.URL()))

	if w.onConnect != nil {
		w.onConnect()
	}

	return nil
}

func (w *Worker) process(ctx context.Context) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go w.pingLoop(connCtx)

	for {
		w.mu.RLock()
		c := w.conn
		w.mu.RUnlock()

		if c == nil {
			return
		}

		_ = c.SetReadDeadline(time.Now().Add(w.cfg.ReadTimeout))

		_, msg, err := c.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				w.log.Warn("Websocket read failed", zap.Error(err))
			}

			w.closeConn()

			return
		}

		w.handler.OnMessage(msg)
	}
}

func (w *Worker) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var err error

			if pinger, ok := w.handler.(Pinger); ok {
				err = w.WriteJSON(pinger.PingMessage())
			} else {
				err = w.write(websocket.PingMessage, nil)
			}

			if err != nil {
				w.log.Warn("Websocket ping failed", zap.Error(err))
				w.closeConn()

				return
			}
		}
	}
}

func (w *Worker) closeConn() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
}
