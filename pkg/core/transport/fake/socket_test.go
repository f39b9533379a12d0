package fake

import (
	"context"
	"errors"
	"testing"

	"github.com/vango-go/watson-speech/pkg/core/transport"
)

func TestSocket_DrainsQueuedFramesBeforeClose(t *testing.T) {
	s := NewSocket()
	s.PushText(`{"state":"listening"}`)
	s.PushBinary([]byte{1, 2})
	if err := s.RequestClose(); err != nil {
		t.Fatalf("RequestClose error: %v", err)
	}

	var got []transport.Frame
	if err := s.Serve(transport.HandlerFunc(func(f transport.Frame) { got = append(got, f) })); err != nil {
		t.Fatalf("Serve error=%v, want nil", err)
	}
	if len(got) != 2 {
		t.Fatalf("frames=%d, want 2", len(got))
	}
	if got[1].Type != transport.BinaryMessage {
		t.Fatalf("frame[1] type=%v, want binary", got[1].Type)
	}
}

func TestSocket_WritesAfterCloseFail(t *testing.T) {
	s := NewSocket()
	if err := s.WriteText([]byte("a")); err != nil {
		t.Fatalf("WriteText error: %v", err)
	}
	_ = s.RequestClose()
	if err := s.WriteBinary([]byte{0}); !errors.Is(err, transport.ErrClosing) {
		t.Fatalf("err=%v, want ErrClosing", err)
	}
	if n := len(s.Written()); n != 1 {
		t.Fatalf("written=%d, want 1", n)
	}
}

func TestSocket_OnWriteHookScriptsReplies(t *testing.T) {
	s := NewSocket()
	s.OnWrite = func(s *Socket, f transport.Frame) {
		if f.Type == transport.TextMessage {
			s.PushText(`{"state":"listening"}`)
		}
	}
	conn, err := s.Dial(context.Background(), transport.Options{URL: "ws://fake"})
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	_ = conn.WriteText([]byte(`{"action":"start"}`))
	s.Hangup(nil)

	var count int
	_ = conn.Serve(transport.HandlerFunc(func(transport.Frame) { count++ }))
	if count != 1 {
		t.Fatalf("inbound=%d, want 1", count)
	}
	if opts := s.DialOptions(); len(opts) != 1 || opts[0].URL != "ws://fake" {
		t.Fatalf("dial options=%v", opts)
	}
}

func TestSocket_HangupWithError(t *testing.T) {
	s := NewSocket()
	want := errors.New("reset")
	s.Hangup(want)
	if err := s.Serve(transport.HandlerFunc(func(transport.Frame) {})); !errors.Is(err, want) {
		t.Fatalf("Serve err=%v, want %v", err, want)
	}
}
