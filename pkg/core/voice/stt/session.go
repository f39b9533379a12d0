package stt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vango-go/watson-speech/pkg/core"
	"github.com/vango-go/watson-speech/pkg/core/transport"
	"github.com/vango-go/watson-speech/pkg/core/voice/audio"
)

const (
	DefaultChunkSize     = 1024
	DefaultDrainInterval = 10 * time.Millisecond
)

// SessionConfig holds the connection parameters of a recognize session.
type SessionConfig struct {
	// URL is the recognize WebSocket URL, see BuildURL.
	URL    string
	Header http.Header

	ProxyHost          string
	ProxyPort          int
	InsecureSkipVerify bool

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	CloseTimeout     time.Duration
	// ReadLimit caps the size of an inbound frame. Zero means no limit.
	ReadLimit int64

	// ChunkSize is the largest audio frame sent. Defaults to 1024 bytes.
	ChunkSize int
	// DrainInterval is the pause between audio frames. Defaults to 10ms; a
	// negative value disables the pause.
	DrainInterval time.Duration

	Logger *slog.Logger
	// Dial defaults to transport.DialSocket.
	Dial transport.DialFunc
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.DrainInterval == 0 {
		c.DrainInterval = DefaultDrainInterval
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

// RecognizeSession streams one audio source to the recognize endpoint.
type RecognizeSession struct {
	id       string
	conn     transport.Socket
	listener RecognizeListener
	source   *audio.Source
	cfg      SessionConfig
	logger   *slog.Logger

	listening  atomic.Bool
	finishOnce sync.Once

	cancel context.CancelFunc
	group  errgroup.Group
	done   chan struct{}

	framesSent     atomic.Int64
	bytesSent      atomic.Int64
	framesReceived atomic.Int64
}

// Recognize opens the connection, sends the start message and begins streaming
// src in the background. ctx bounds the dial and the audio stream. A dial
// failure is returned without any listener call.
func Recognize(ctx context.Context, src *audio.Source, opts RecognizeOptions, listener RecognizeListener, cfg SessionConfig) (*RecognizeSession, error) {
	if src == nil {
		return nil, core.NewInvalidRequestError("audio source must not be nil")
	}
	if cfg.URL == "" {
		return nil, core.NewInvalidRequestError("recognize url must not be empty")
	}
	if listener == nil {
		listener = NopRecognizeListener{}
	}
	cfg = cfg.withDefaults()

	start, err := opts.StartMessage()
	if err != nil {
		return nil, core.NewInvalidRequestError(err.Error())
	}

	conn, err := cfg.Dial(ctx, cfg.transportOptions())
	if err != nil {
		var coreErr *core.Error
		if errors.As(err, &coreErr) {
			return nil, err
		}
		return nil, core.NewTransportError("", err)
	}

	id := uuid.NewString()
	s := &RecognizeSession{
		id:       id,
		conn:     conn,
		listener: listener,
		source:   src,
		cfg:      cfg,
		logger:   cfg.Logger.With("session_id", id),
		done:     make(chan struct{}),
	}
	s.logger.Debug("recognize session connected")
	listener.OnConnected()

	if err := conn.WriteText(start); err != nil {
		sendErr := core.NewTransportError("send start message", err)
		_ = conn.Close()
		listener.OnError(sendErr)
		listener.OnClose()
		close(s.done)
		return nil, sendErr
	}

	audioCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.group.Go(s.readLoop)
	s.group.Go(func() error { return s.streamAudio(audioCtx) })
	return s, nil
}

// ID returns the session identifier used in logs.
func (s *RecognizeSession) ID() string { return s.id }

// Listening reports whether the service has acknowledged the start message.
func (s *RecognizeSession) Listening() bool { return s.listening.Load() }

// Done is closed after OnClose has been delivered.
func (s *RecognizeSession) Done() <-chan struct{} { return s.done }

// Close stops streaming and starts the close handshake. It does not wait; use
// Wait or Done for that.
func (s *RecognizeSession) Close() error {
	s.cancel()
	s.finish()
	return nil
}

// Wait blocks until the session goroutines have exited.
func (s *RecognizeSession) Wait() error {
	return s.group.Wait()
}

// finish sends the close message and requests the transport close. Only the
// first call has any effect.
func (s *RecognizeSession) finish() {
	s.finishOnce.Do(func() {
		if err := s.conn.WriteText(closeMessage); err != nil && !errors.Is(err, transport.ErrClosing) {
			s.logger.Debug("send close message failed", "error", err)
		}
		if err := s.conn.RequestClose(); err != nil {
			s.logger.Debug("request close failed", "error", err)
		}
	})
}

func (s *RecognizeSession) streamAudio(ctx context.Context) error {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		chunk, err := s.source.Next(ctx, s.cfg.ChunkSize)
		if errors.Is(err, io.EOF) {
			s.logger.Debug("audio source exhausted", "frames", s.framesSent.Load(), "bytes", s.bytesSent.Load())
			s.finish()
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				s.finish()
				return nil
			}
			s.logger.Warn("audio source read failed", "error", err)
			s.finish()
			return err
		}
		if len(chunk) == 0 {
			continue
		}

		if err := s.conn.WriteBinary(chunk); err != nil {
			if errors.Is(err, transport.ErrClosing) {
				return nil
			}
			s.finish()
			return core.NewTransportError("send audio", err)
		}
		s.framesSent.Add(1)
		s.bytesSent.Add(int64(len(chunk)))

		if s.cfg.DrainInterval <= 0 {
			continue
		}
		if timer == nil {
			timer = time.NewTimer(s.cfg.DrainInterval)
		} else {
			timer.Reset(s.cfg.DrainInterval)
		}
		select {
		case <-ctx.Done():
			s.finish()
			return nil
		case <-timer.C:
		}
	}
}

func (s *RecognizeSession) readLoop() error {
	err := s.conn.Serve(transport.HandlerFunc(s.handleFrame))
	s.cancel()
	if err != nil {
		s.logger.Warn("recognize connection ended abnormally", "error", err)
		s.listener.OnError(err)
	}
	s.logger.Debug("recognize session closed",
		"frames", s.framesSent.Load(),
		"bytes", s.bytesSent.Load(),
		"received", s.framesReceived.Load(),
	)
	s.listener.OnClose()
	close(s.done)
	return err
}

func (s *RecognizeSession) handleFrame(f transport.Frame) {
	s.framesReceived.Add(1)
	frame := DecodeFrame(f)

	switch frame.Kind {
	case FrameError:
		s.listener.OnError(core.NewServiceError(frame.Message))
	case FrameInactivityTimeout:
		s.listener.OnInactivityTimeout(core.NewInactivityTimeoutError(frame.Message))
	case FrameState:
		if s.listening.CompareAndSwap(false, true) {
			s.listener.OnListening()
			return
		}
		// A second state frame acknowledges the end of the audio.
		s.finish()
	case FrameResults:
		for _, result := range frame.Results {
			if result.Final {
				s.listener.OnTranscription(result.Alternatives)
			}
		}
		// Interim or final, with "" when the frame carries no alternative.
		s.listener.OnHypothesis(frame.Hypothesis)
		s.listener.OnData(frame.Data)
	case FrameOther:
		s.listener.OnData(frame.Data)
	case FrameBinary:
		s.logger.Debug("ignoring binary frame", "bytes", len(frame.Binary))
	case FrameMalformed:
		s.listener.OnError(core.NewMalformedPayloadError(frame.Err))
	}
}
