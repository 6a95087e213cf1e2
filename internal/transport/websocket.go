// Package transport maintains the websocket connection to the printer. It
// dials in the background, redials on a fixed cadence after failures and
// reports connection events and inbound text frames through Handlers.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrNotConnected is returned by SendText when no connection is open.
var ErrNotConnected = errors.New("websocket not connected")

const (
	handshakeTimeout = 5 * time.Second
	writeTimeout     = 5 * time.Second
)

// Handlers receive transport events. They are invoked from the connection
// goroutine, never while a Websocket method holds its lock, so they may call
// back into the transport. OnConnect and OnDisconnect never overlap, and a
// connection superseded by Connect or Disconnect reports nothing further.
type Handlers struct {
	OnConnect    func()
	OnDisconnect func()
	OnText       func(payload []byte)
}

// Options configure the endpoint derived from an address.
type Options struct {
	Port              int
	Path              string
	ReconnectInterval time.Duration
}

// Websocket is a self-reconnecting printer connection.
type Websocket struct {
	opts     Options
	handlers Handlers
	dialer   *websocket.Dialer
	logger   *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc

	writeMu sync.Mutex
	eventMu sync.Mutex
}

// New returns an unconnected transport.
func New(opts Options, handlers Handlers, logger *zap.Logger) *Websocket {
	return &Websocket{
		opts:     opts,
		handlers: handlers,
		dialer: &websocket.Dialer{
			Proxy:            nil,
			HandshakeTimeout: handshakeTimeout,
		},
		logger: logger.Named("transport"),
	}
}

// Endpoint builds the websocket URL for address.
func Endpoint(address string, port int, path string) string {
	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(address, strconv.Itoa(port)),
		Path:   path,
	}
	return u.String()
}

// Connect drops any current connection and starts connecting to address in
// the background. It returns immediately.
func (w *Websocket) Connect(address string) {
	w.Disconnect()

	endpoint := Endpoint(address, w.opts.Port, w.opts.Path)
	ctx, cancel := context.WithCancel(context.Background())

	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	w.logger.Info("Attempting connection to printer", zap.String("url", endpoint))
	go w.run(ctx, endpoint)
}

// Disconnect stops reconnecting and closes the open connection, if any.
func (w *Websocket) Disconnect() {
	w.mu.Lock()
	cancel, conn := w.cancel, w.conn
	w.cancel, w.conn = nil, nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
	}
}

// IsConnected reports whether a connection is open.
func (w *Websocket) IsConnected() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn != nil
}

// SendText writes one text frame.
func (w *Websocket) SendText(text string) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

func (w *Websocket) run(ctx context.Context, endpoint string) {
	for {
		conn, _, err := w.dialer.DialContext(ctx, endpoint, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Debug("Connection attempt failed", zap.Error(err))
		} else if w.attach(ctx, conn) {
			w.serve(ctx, conn)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.opts.ReconnectInterval):
		}
	}
}

// attach publishes conn unless Connect or Disconnect superseded this run.
// The previous connection's OnDisconnect, if still running, completes first.
func (w *Websocket) attach(ctx context.Context, conn *websocket.Conn) bool {
	w.eventMu.Lock()
	defer w.eventMu.Unlock()

	w.mu.Lock()
	if ctx.Err() != nil {
		w.mu.Unlock()
		conn.Close()
		return false
	}
	w.conn = conn
	w.mu.Unlock()

	w.logger.Info("Connected to printer", zap.String("remote", conn.RemoteAddr().String()))
	if w.handlers.OnConnect != nil {
		w.handlers.OnConnect()
	}
	return true
}

func (w *Websocket) serve(ctx context.Context, conn *websocket.Conn) {
	for {
		kind, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Info("Disconnected from printer", zap.Error(err))
			}
			break
		}
		switch kind {
		case websocket.TextMessage:
			if ctx.Err() == nil && w.handlers.OnText != nil {
				w.handlers.OnText(payload)
			}
		default:
			w.logger.Debug("Ignoring unsupported frame", zap.Int("type", kind))
		}
	}

	w.eventMu.Lock()
	defer w.eventMu.Unlock()

	w.mu.Lock()
	if w.conn == conn {
		w.conn = nil
	}
	w.mu.Unlock()
	conn.Close()

	if ctx.Err() != nil {
		w.logger.Debug("Connection superseded, not reporting disconnect")
		return
	}
	if w.handlers.OnDisconnect != nil {
		w.handlers.OnDisconnect()
	}
}
