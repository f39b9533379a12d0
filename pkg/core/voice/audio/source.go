// Package audio holds the caller-owned audio sources read by recognize sessions.
package audio

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/eapache/queue"
)

// ErrSourceComplete is returned by Push after MarkComplete.
var ErrSourceComplete = errors.New("audio: source is complete")

// ErrNotStreaming is returned by Push on a reader-backed source.
var ErrNotStreaming = errors.New("audio: source is not a streaming source")

// Source is either a finite reader or a queue of chunks fed while recording is in
// progress. Sessions only read from it; the caller owns the underlying reader.
type Source struct {
	mu sync.Mutex

	reader    io.Reader
	readerErr error

	chunks    *queue.Queue
	pending   []byte
	recording bool
	notify    chan struct{}
}

// NewReaderSource wraps a finite reader. It is exhausted at the reader's EOF.
func NewReaderSource(r io.Reader) *Source {
	return &Source{reader: r}
}

// NewStreamSource returns a queue-backed source in the recording state.
// Callers Push chunks and call MarkComplete when no more audio will follow.
func NewStreamSource() *Source {
	return &Source{
		chunks:    queue.New(),
		recording: true,
		notify:    make(chan struct{}, 1),
	}
}

// Push appends a chunk to a streaming source.
func (s *Source) Push(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	s.mu.Lock()
	if s.chunks == nil {
		s.mu.Unlock()
		return ErrNotStreaming
	}
	if !s.recording {
		s.mu.Unlock()
		return ErrSourceComplete
	}
	s.chunks.Add(append([]byte(nil), chunk...))
	s.mu.Unlock()
	s.signal()
	return nil
}

// MarkComplete clears the recording flag. Chunks already queued are still read.
func (s *Source) MarkComplete() {
	s.mu.Lock()
	s.recording = false
	s.mu.Unlock()
	s.signal()
}

// Recording reports whether a streaming source may still receive chunks.
func (s *Source) Recording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording
}

// Streaming reports whether the source is queue-backed.
func (s *Source) Streaming() bool {
	return s.chunks != nil
}

// Next returns up to max bytes of audio. It blocks on a streaming source until
// a chunk arrives, the source is completed, or ctx is done, and returns io.EOF
// once the source is exhausted.
func (s *Source) Next(ctx context.Context, max int) ([]byte, error) {
	if max <= 0 {
		return nil, errors.New("audio: max chunk size must be positive")
	}
	if s.chunks == nil {
		return s.nextFromReader(ctx, max)
	}

	for {
		s.mu.Lock()
		if len(s.pending) == 0 && s.chunks.Length() > 0 {
			s.pending = s.chunks.Remove().([]byte)
		}
		if len(s.pending) > 0 {
			n := min(max, len(s.pending))
			out := s.pending[:n]
			s.pending = s.pending[n:]
			s.mu.Unlock()
			return out, nil
		}
		recording := s.recording
		s.mu.Unlock()

		if !recording {
			return nil, io.EOF
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.notify:
		}
	}
}

func (s *Source) nextFromReader(ctx context.Context, max int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readerErr != nil {
		return nil, s.readerErr
	}
	if s.reader == nil {
		return nil, io.EOF
	}

	buf := make([]byte, max)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := s.reader.Read(buf)
		if n > 0 {
			// Report the error on the next call so the bytes are not lost.
			s.readerErr = err
			return buf[:n], nil
		}
		if err != nil {
			s.readerErr = err
			return nil, err
		}
	}
}

func (s *Source) signal() {
	if s.notify == nil {
		return
	}
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
