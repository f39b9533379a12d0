// Package fake provides a scripted in-memory transport.Socket.
package fake

import (
	"context"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/vango-go/watson-speech/pkg/core/transport"
)

// Socket records outbound frames and replays inbound frames pushed by a test.
//
// A requested close is acknowledged immediately: Serve drains the frames
// already queued and then returns.
type Socket struct {
	// OnWrite runs after an outbound frame is recorded, on the writer's goroutine.
	OnWrite func(s *Socket, f transport.Frame)

	mu            sync.Mutex
	written       []transport.Frame
	dialed        []transport.Options
	dialErr       error
	writeErr      error
	serveErr      error
	closing       bool
	closed        bool
	closeRequests int

	inbound  chan transport.Frame
	done     chan struct{}
	doneOnce sync.Once
}

// NewSocket returns a Socket with room for buffered inbound frames.
func NewSocket() *Socket {
	return &Socket{
		done:    make(chan struct{}),
		inbound: make(chan transport.Frame, 256),
	}
}

// Dial is a transport.DialFunc returning s.
func (s *Socket) Dial(_ context.Context, opts transport.Options) (transport.Socket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dialed = append(s.dialed, opts)
	if s.dialErr != nil {
		return nil, s.dialErr
	}
	return s, nil
}

// FailDial makes the next Dial calls fail with err.
func (s *Socket) FailDial(err error) {
	s.mu.Lock()
	s.dialErr = err
	s.mu.Unlock()
}

// FailWrites makes outbound writes fail with err.
func (s *Socket) FailWrites(err error) {
	s.mu.Lock()
	s.writeErr = err
	s.mu.Unlock()
}

// DialOptions returns the options passed to Dial.
func (s *Socket) DialOptions() []transport.Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transport.Options(nil), s.dialed...)
}

func (s *Socket) WriteText(data []byte) error {
	return s.write(transport.Frame{Type: transport.TextMessage, Data: append([]byte(nil), data...)})
}

func (s *Socket) WriteBinary(data []byte) error {
	return s.write(transport.Frame{Type: transport.BinaryMessage, Data: append([]byte(nil), data...)})
}

func (s *Socket) write(f transport.Frame) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return transport.ErrClosing
	}
	if s.writeErr != nil {
		err := s.writeErr
		s.mu.Unlock()
		return err
	}
	s.written = append(s.written, f)
	hook := s.OnWrite
	s.mu.Unlock()

	if hook != nil {
		hook(s, f)
	}
	return nil
}

// Push queues an inbound frame.
func (s *Socket) Push(f transport.Frame) {
	s.inbound <- f
}

// PushText queues an inbound text frame.
func (s *Socket) PushText(text string) {
	s.Push(transport.Frame{Type: transport.TextMessage, Data: []byte(text)})
}

// PushJSON encodes v and queues it as an inbound text frame.
func (s *Socket) PushJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.Push(transport.Frame{Type: transport.TextMessage, Data: data})
	return nil
}

// PushBinary queues an inbound binary frame.
func (s *Socket) PushBinary(data []byte) {
	s.Push(transport.Frame{Type: transport.BinaryMessage, Data: data})
}

// Hangup ends Serve with err after the queued frames are delivered. A nil
// err simulates a normal remote close. Writes still succeed afterwards.
func (s *Socket) Hangup(err error) {
	s.mu.Lock()
	s.serveErr = err
	s.mu.Unlock()
	s.finish()
}

func (s *Socket) Serve(h transport.Handler) error {
	for {
		select {
		case f := <-s.inbound:
			h.HandleFrame(f)
			continue
		default:
		}

		select {
		case f := <-s.inbound:
			h.HandleFrame(f)
		case <-s.done:
			for {
				select {
				case f := <-s.inbound:
					h.HandleFrame(f)
				default:
					s.mu.Lock()
					err := s.serveErr
					s.mu.Unlock()
					return err
				}
			}
		}
	}
}

func (s *Socket) RequestClose() error {
	s.mu.Lock()
	s.closing = true
	s.closeRequests++
	s.mu.Unlock()
	s.finish()
	return nil
}

func (s *Socket) Close() error {
	s.mu.Lock()
	s.closing = true
	s.closed = true
	s.mu.Unlock()
	s.finish()
	return nil
}

func (s *Socket) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Written returns a copy of the outbound frames.
func (s *Socket) Written() []transport.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]transport.Frame(nil), s.written...)
}

// CloseRequests reports how many times RequestClose was called.
func (s *Socket) CloseRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeRequests
}

// Closed reports whether Close was called.
func (s *Socket) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
