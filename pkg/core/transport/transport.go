// Package transport provides the WebSocket primitive the speech sessions run on.
//
// A Conn serializes every write (gorilla/websocket allows a single concurrent
// writer) and delivers inbound frames to a Handler one at a time from the
// goroutine running Serve.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/watson-speech/pkg/core"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	defaultCloseTimeout     = 5 * time.Second
	defaultProxyPort        = 80
)

// ErrClosing is returned by writes issued after a close was requested.
var ErrClosing = errors.New("transport: connection is closing")

// MessageType tags a frame as text or binary.
type MessageType int

const (
	TextMessage   MessageType = websocket.TextMessage
	BinaryMessage MessageType = websocket.BinaryMessage
)

func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "text"
	case BinaryMessage:
		return "binary"
	default:
		return "unknown"
	}
}

// Frame is one WebSocket data message.
type Frame struct {
	Type MessageType
	Data []byte
}

// Handler receives inbound frames. Calls are serial.
type Handler interface {
	HandleFrame(Frame)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(Frame)

func (f HandlerFunc) HandleFrame(frame Frame) { f(frame) }

// Socket is the connection surface the sessions drive.
type Socket interface {
	WriteText(data []byte) error
	WriteBinary(data []byte) error
	// Serve runs the read loop until the connection ends. A nil return means
	// the connection closed normally or was closed locally.
	Serve(h Handler) error
	// RequestClose starts the close handshake without waiting for the peer.
	RequestClose() error
	// Close tears the connection down immediately.
	Close() error
}

// DialFunc opens a Socket.
type DialFunc func(ctx context.Context, opts Options) (Socket, error)

// Options configures a connection.
type Options struct {
	URL    string
	Header http.Header

	// ProxyHost routes the handshake through an HTTP proxy. ProxyPort defaults to 80.
	ProxyHost string
	ProxyPort int

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// CloseTimeout bounds how long a requested close waits for the peer.
	CloseTimeout time.Duration
	// ReadLimit caps inbound frame size; exceeding it ends Serve with an error.
	ReadLimit int64

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = defaultHandshakeTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = defaultCloseTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// Conn is a gorilla/websocket backed Socket.
type Conn struct {
	ws   *websocket.Conn
	opts Options

	writeMu sync.Mutex
	closing atomic.Bool
	closed  atomic.Bool
	served  atomic.Bool

	requestOnce sync.Once
	closeOnce   sync.Once

	timerMu    sync.Mutex
	closeTimer *time.Timer
}

// Dial opens a WebSocket connection.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	if opts.URL == "" {
		return nil, core.NewInvalidRequestError("websocket url must not be empty")
	}
	opts = opts.withDefaults()

	dialer := websocket.Dialer{
		HandshakeTimeout: opts.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	if opts.ProxyHost != "" {
		port := opts.ProxyPort
		if port <= 0 {
			port = defaultProxyPort
		}
		dialer.Proxy = http.ProxyURL(&url.URL{
			Scheme: "http",
			Host:   net.JoinHostPort(opts.ProxyHost, strconv.Itoa(port)),
		})
	}
	if opts.InsecureSkipVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // caller opt-in
	}

	var header http.Header
	if opts.Header != nil {
		header = opts.Header.Clone()
	}

	ws, resp, err := dialer.DialContext(ctx, opts.URL, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			var e *core.Error
			if len(body) > 0 {
				e = core.NewTransportError(fmt.Sprintf("websocket connect (status %d): %s", resp.StatusCode, string(body)), err)
			} else {
				e = core.NewTransportError(fmt.Sprintf("websocket connect: status %d: %v", resp.StatusCode, err), err)
			}
			e.StatusCode = resp.StatusCode
			return nil, e
		}
		return nil, core.NewTransportError(fmt.Sprintf("websocket connect: %v", err), err)
	}
	if opts.ReadLimit > 0 {
		ws.SetReadLimit(opts.ReadLimit)
	}

	opts.Logger.Debug("websocket connected", "url", redactURL(opts.URL))
	return &Conn{ws: ws, opts: opts}, nil
}

// DialSocket is the default DialFunc.
func DialSocket(ctx context.Context, opts Options) (Socket, error) {
	conn, err := Dial(ctx, opts)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// WriteText sends a text frame.
func (c *Conn) WriteText(data []byte) error {
	return c.write(websocket.TextMessage, data)
}

// WriteBinary sends a binary frame.
func (c *Conn) WriteBinary(data []byte) error {
	return c.write(websocket.BinaryMessage, data)
}

func (c *Conn) write(messageType int, data []byte) error {
	if c.closing.Load() {
		return ErrClosing
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	// A close may have been requested while waiting for the lock.
	if c.closing.Load() {
		return ErrClosing
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, data)
}

// Serve reads frames until the connection ends. It must be called once.
func (c *Conn) Serve(h Handler) error {
	if !c.served.CompareAndSwap(false, true) {
		return errors.New("transport: Serve called twice")
	}
	defer c.Close()

	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil
			}
			if c.closing.Load() {
				return nil
			}
			return core.NewTransportError("", err)
		}
		switch messageType {
		case websocket.TextMessage, websocket.BinaryMessage:
			h.HandleFrame(Frame{Type: MessageType(messageType), Data: data})
		default:
			continue
		}
	}
}

// RequestClose sends a normal-closure control frame and keeps reading until the
// peer answers or CloseTimeout elapses.
func (c *Conn) RequestClose() error {
	if c.closed.Load() {
		return nil
	}
	var err error
	c.requestOnce.Do(func() {
		c.closing.Store(true)

		c.writeMu.Lock()
		deadline := time.Now().Add(c.opts.WriteTimeout)
		err = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.writeMu.Unlock()

		c.timerMu.Lock()
		c.closeTimer = time.AfterFunc(c.opts.CloseTimeout, func() {
			c.opts.Logger.Debug("close handshake timed out", "timeout", c.opts.CloseTimeout)
			_ = c.Close()
		})
		c.timerMu.Unlock()
	})
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}

// Close tears down the connection.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		c.closed.Store(true)
		c.timerMu.Lock()
		if c.closeTimer != nil {
			c.closeTimer.Stop()
		}
		c.timerMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func redactURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil {
		return raw
	}
	parsed.User = nil
	q := parsed.Query()
	if q.Has("access_token") {
		q.Set("access_token", "REDACTED")
		parsed.RawQuery = q.Encode()
	}
	return parsed.String()
}
