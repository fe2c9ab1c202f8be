// Package connectivity watches the backend realtime channel to detect when
// the device comes back online. Each established connection fires the
// online callback, which the agent uses to trigger a reconciliation pass.
package connectivity

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// OnlineFunc is invoked once per established connection, including the
// first. Reconciliation work belongs here; the callback runs on the
// watcher's goroutine, so long work should spawn its own.
type OnlineFunc func(ctx context.Context)

// Watcher maintains a WebSocket connection to the backend realtime
// endpoint and reconnects with exponential backoff and jitter. A
// successful (re)connection is the connectivity-regained signal.
type Watcher struct {
	config   Config
	onOnline OnlineFunc
	logger   *slog.Logger

	mu     sync.Mutex
	rng    *rand.Rand // protected by mu
	conn   *websocket.Conn
	online bool

	// reconnectCount tracks consecutive reconnection attempts (atomic)
	reconnectCount int64
}

// NewWatcher creates a connectivity watcher with the given configuration.
func NewWatcher(config Config, onOnline OnlineFunc, logger *slog.Logger) (*Watcher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		config:   config,
		onOnline: onOnline,
		logger:   logger,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Run starts the watcher and blocks until the context is cancelled.
// It reconnects automatically with exponential backoff on failures.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("connectivity watcher stopping due to context cancellation")
			w.close()
			return ctx.Err()
		default:
		}

		if err := w.connect(ctx); err != nil {
			attempt := atomic.LoadInt64(&w.reconnectCount) + 1
			w.logger.Warn("realtime connection failed",
				slog.String("error", err.Error()),
				slog.Int64("attempt", attempt))

			delay := w.computeBackoff()
			atomic.AddInt64(&w.reconnectCount, 1)

			w.logger.Info("scheduling reconnect",
				slog.Duration("delay", delay),
				slog.Int64("attempt", atomic.LoadInt64(&w.reconnectCount)))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				continue
			}
		}

		atomic.StoreInt64(&w.reconnectCount, 0)

		// The device is reachable again; let the agent reconcile.
		if w.onOnline != nil {
			w.onOnline(ctx)
		}

		w.readLoop(ctx)
	}
}

// connect establishes the WebSocket connection to the realtime endpoint.
func (w *Watcher) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: w.config.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, w.config.URL, nil)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.conn = conn
	w.online = true
	w.mu.Unlock()

	w.logger.Info("realtime channel connected", slog.String("url", w.config.URL))
	return nil
}

// readLoop drains the connection until it closes. Payloads are ignored;
// only liveness matters here.
func (w *Watcher) readLoop(ctx context.Context) {
	// ReadMessage blocks; closing the connection on cancellation is the
	// only way to unblock it.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			w.close()
		case <-watchDone:
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		w.mu.Lock()
		conn := w.conn
		w.mu.Unlock()

		if conn == nil {
			return
		}

		if _, _, err := conn.ReadMessage(); err != nil {
			w.logger.Warn("realtime channel closed",
				slog.String("error", err.Error()))
			w.close()
			return
		}
	}
}

// close cleanly closes the WebSocket connection.
func (w *Watcher) close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.online = false
}

// computeBackoff calculates the next reconnection delay with exponential
// backoff and jitter.
func (w *Watcher) computeBackoff() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Exponential backoff: baseDelay * 2^attempts using bit shifting.
	// Cap the shift at 30 to prevent overflow.
	reconnectCount := atomic.LoadInt64(&w.reconnectCount)
	shift := uint(reconnectCount)
	if shift > 30 {
		shift = 30
	}
	backoff := float64(w.config.BaseDelay) * float64(uint64(1)<<shift)

	if backoff > float64(w.config.MaxDelay) {
		backoff = float64(w.config.MaxDelay)
	}

	// Jitter spreads reconnect storms: [delay*(1-j/2), delay*(1+j/2)].
	if w.config.JitterFactor > 0 {
		jitter := (w.rng.Float64() - 0.5) * w.config.JitterFactor
		backoff = backoff * (1 + jitter)
	}

	return time.Duration(backoff)
}

// IsOnline returns whether the watcher currently holds a live connection.
func (w *Watcher) IsOnline() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.online
}
