package tts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vango-go/watson-speech/pkg/core"
	"github.com/vango-go/watson-speech/pkg/core/transport"
)

// DefaultSendSettleDelay is the pause between the request and the read loop.
const DefaultSendSettleDelay = 10 * time.Millisecond

// SessionConfig holds the connection parameters of a synthesize session.
type SessionConfig struct {
	// URL is the synthesize WebSocket URL, see BuildURL.
	URL    string
	Header http.Header

	ProxyHost          string
	ProxyPort          int
	InsecureSkipVerify bool

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	CloseTimeout     time.Duration
	ReadLimit        int64

	// SendSettleDelay defaults to 10ms; a negative value disables it.
	SendSettleDelay time.Duration

	Logger *slog.Logger
	Dial   transport.DialFunc
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.SendSettleDelay == 0 {
		c.SendSettleDelay = DefaultSendSettleDelay
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.Dial == nil {
		c.Dial = transport.DialSocket
	}
	return c
}

func (c SessionConfig) transportOptions() transport.Options {
	return transport.Options{
		URL:                c.URL,
		Header:             c.Header,
		ProxyHost:          c.ProxyHost,
		ProxyPort:          c.ProxyPort,
		InsecureSkipVerify: c.InsecureSkipVerify,
		HandshakeTimeout:   c.HandshakeTimeout,
		WriteTimeout:       c.WriteTimeout,
		CloseTimeout:       c.CloseTimeout,
		ReadLimit:          c.ReadLimit,
		Logger:             c.Logger,
	}
}

// SynthesizeSession sends one request and relays the audio it produces.
type SynthesizeSession struct {
	id       string
	conn     transport.Socket
	listener SynthesizeListener
	logger   *slog.Logger

	group errgroup.Group
	done  chan struct{}

	framesReceived atomic.Int64
	audioBytes     atomic.Int64
}

// Synthesize opens the connection and sends opts as the only outbound message.
// A dial failure is returned without any listener call.
func Synthesize(ctx context.Context, opts SynthesizeOptions, listener SynthesizeListener, cfg SessionConfig) (*SynthesizeSession, error) {
	request, err := opts.RequestMessage()
	if err != nil {
		if core.IsType(err, core.ErrInvalidRequest) {
			return nil, err
		}
		return nil, core.NewInvalidRequestError(err.Error())
	}
	if cfg.URL == "" {
		return nil, core.NewInvalidRequestError("synthesize url must not be empty")
	}
	if listener == nil {
		listener = NopSynthesizeListener{}
	}
	cfg = cfg.withDefaults()

	conn, err := cfg.Dial(ctx, cfg.transportOptions())
	if err != nil {
		var coreErr *core.Error
		if errors.As(err, &coreErr) {
			return nil, err
		}
		return nil, core.NewTransportError("", err)
	}

	id := uuid.NewString()
	s := &SynthesizeSession{
		id:       id,
		conn:     conn,
		listener: listener,
		logger:   cfg.Logger.With("session_id", id),
		done:     make(chan struct{}),
	}
	s.logger.Debug("synthesize session connected")
	listener.OnConnected()

	if err := conn.WriteText(request); err != nil {
		sendErr := core.NewTransportError("send synthesize request", err)
		_ = conn.Close()
		listener.OnError(sendErr)
		listener.OnClose()
		close(s.done)
		return nil, sendErr
	}

	if cfg.SendSettleDelay > 0 {
		timer := time.NewTimer(cfg.SendSettleDelay)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		timer.Stop()
	}

	s.group.Go(s.readLoop)
	return s, nil
}

// ID returns the session identifier used in logs.
func (s *SynthesizeSession) ID() string { return s.id }

// Done is closed after OnClose has been delivered.
func (s *SynthesizeSession) Done() <-chan struct{} { return s.done }

// Close starts the close handshake without waiting for it.
func (s *SynthesizeSession) Close() error {
	return s.conn.RequestClose()
}

// Wait blocks until the read loop has exited.
func (s *SynthesizeSession) Wait() error {
	return s.group.Wait()
}

func (s *SynthesizeSession) readLoop() error {
	err := s.conn.Serve(transport.HandlerFunc(s.handleFrame))
	if err != nil {
		s.logger.Warn("synthesize connection ended abnormally", "error", err)
		s.listener.OnError(err)
	}
	s.logger.Debug("synthesize session closed",
		"frames", s.framesReceived.Load(),
		"bytes", s.audioBytes.Load(),
	)
	s.listener.OnClose()
	close(s.done)
	return err
}

func (s *SynthesizeSession) handleFrame(f transport.Frame) {
	s.framesReceived.Add(1)
	frame := DecodeFrame(f)

	switch frame.Kind {
	case FrameContentType:
		s.listener.OnContentType(frame.ContentType)
	case FrameError:
		s.listener.OnError(core.NewServiceError(frame.Message))
		return
	case FrameTiming:
		s.listener.OnTimingInformation(frame.Timing)
	case FrameAudio:
		s.audioBytes.Add(int64(len(frame.Data)))
		s.listener.OnAudioStream(frame.Data)
	case FrameMalformed:
		s.logger.Debug("unparsable frame", "error", frame.Err)
		s.listener.OnError(core.NewMalformedPayloadError(frame.Err))
		return
	}
	s.listener.OnData(frame.Data)
}
