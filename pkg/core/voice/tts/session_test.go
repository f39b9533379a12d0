package tts

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/vango-go/watson-speech/pkg/core"
	"github.com/vango-go/watson-speech/pkg/core/transport/fake"
)

type recordingListener struct {
	mu           sync.Mutex
	events       []string
	errs         []error
	contentTypes []string
	timings      []TimingInformation
	audio        [][]byte
	data         [][]byte

	// written reports the outbound frame count when the first inbound frame arrives.
	sock          *fake.Socket
	writtenAtRecv int
}

func (l *recordingListener) record(event string) {
	if l.sock != nil && l.writtenAtRecv == 0 && event != "connected" {
		l.writtenAtRecv = len(l.sock.Written())
	}
	l.events = append(l.events, event)
}

func (l *recordingListener) OnConnected() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record("connected")
}

func (l *recordingListener) OnError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record("error")
	l.errs = append(l.errs, err)
}

func (l *recordingListener) OnContentType(ct string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record("content_type")
	l.contentTypes = append(l.contentTypes, ct)
}

func (l *recordingListener) OnTimingInformation(ti TimingInformation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record("timing")
	l.timings = append(l.timings, ti)
}

func (l *recordingListener) OnAudioStream(chunk []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record("audio")
	l.audio = append(l.audio, chunk)
}

func (l *recordingListener) OnData(d []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record("data")
	l.data = append(l.data, d)
}

func (l *recordingListener) OnClose() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.record("close")
}

func (l *recordingListener) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func fakeConfig(sock *fake.Socket) SessionConfig {
	return SessionConfig{URL: "ws://fake/v1/synthesize", Dial: sock.Dial, SendSettleDelay: -1}
}

func runFake(t *testing.T, opts SynthesizeOptions, frames func(sock *fake.Socket)) (*fake.Socket, *recordingListener) {
	t.Helper()
	sock := fake.NewSocket()
	frames(sock)
	sock.Hangup(nil)

	l := &recordingListener{sock: sock}
	sess, err := Synthesize(context.Background(), opts, l, fakeConfig(sock))
	if err != nil {
		t.Fatalf("Synthesize error: %v", err)
	}
	if err := sess.Wait(); err != nil {
		t.Fatalf("Wait error: %v", err)
	}
	return sock, l
}

func TestSynthesize_SingleRequestBeforeInbound(t *testing.T) {
	sock, l := runFake(t, SynthesizeOptions{Text: "Hello world", Accept: "audio/wav", Timings: []string{"words"}}, func(sock *fake.Socket) {
		sock.PushText(`{"binary_streams":[{"content_type":"audio/wav"}]}`)
		sock.PushBinary([]byte("RIFF"))
	})

	written := sock.Written()
	if len(written) != 1 {
		t.Fatalf("outbound frames=%d, want 1", len(written))
	}
	var req map[string]any
	if err := json.Unmarshal(written[0].Data, &req); err != nil {
		t.Fatalf("request is not JSON: %v", err)
	}
	if req["text"] != "Hello world" || req["accept"] != "audio/wav" {
		t.Fatalf("request=%v", req)
	}
	if l.writtenAtRecv != 1 {
		t.Fatalf("outbound frames when first inbound was handled=%d, want 1", l.writtenAtRecv)
	}
	events := l.snapshot()
	want := "connected,content_type,data,audio,data,close"
	if strings.Join(events, ",") != want {
		t.Fatalf("events=%v, want %s", events, want)
	}
}

func TestSynthesize_BinaryStreamsTriggersContentTypeOnly(t *testing.T) {
	_, l := runFake(t, SynthesizeOptions{Text: "hi"}, func(sock *fake.Socket) {
		sock.PushText(`{"binary_streams":[{"content_type":"audio/ogg;codecs=opus"}]}`)
	})

	if len(l.contentTypes) != 1 || l.contentTypes[0] != "audio/ogg;codecs=opus" {
		t.Fatalf("content types=%v", l.contentTypes)
	}
	if len(l.errs) != 0 {
		t.Fatalf("errors=%v, want none", l.errs)
	}
	if len(l.timings) != 0 {
		t.Fatalf("timings=%v, want none", l.timings)
	}
}

func TestSynthesize_ErrorFrameSkipsOnData(t *testing.T) {
	_, l := runFake(t, SynthesizeOptions{Text: "hi"}, func(sock *fake.Socket) {
		sock.PushText(`{"error":"bad request"}`)
	})

	if len(l.errs) != 1 {
		t.Fatalf("errors=%d, want 1", len(l.errs))
	}
	var coreErr *core.Error
	if !errors.As(l.errs[0], &coreErr) || coreErr.Message != "bad request" || coreErr.Type != core.ErrService {
		t.Fatalf("error=%v, want service error \"bad request\"", l.errs[0])
	}
	if len(l.data) != 0 {
		t.Fatalf("data=%d, want 0", len(l.data))
	}
}

func TestSynthesize_UnparsableFrameReportsErrorAndContinues(t *testing.T) {
	_, l := runFake(t, SynthesizeOptions{Text: "hi"}, func(sock *fake.Socket) {
		sock.PushText(`{"foo":`)
		sock.PushText(`{"words":[["hi",0.1,0.3]]}`)
	})

	if len(l.errs) != 1 {
		t.Fatalf("errors=%d, want 1", len(l.errs))
	}
	var coreErr *core.Error
	if !errors.As(l.errs[0], &coreErr) || coreErr.Message != "Unable to parse received message." {
		t.Fatalf("error=%v", l.errs[0])
	}
	if len(l.timings) != 1 || len(l.data) != 1 {
		t.Fatalf("timings=%d data=%d, want 1 and 1", len(l.timings), len(l.data))
	}
	if words := l.timings[0].Words; len(words) != 1 || words[0].Word != "hi" {
		t.Fatalf("words=%+v", words)
	}
}

func TestSynthesize_Validation(t *testing.T) {
	sock := fake.NewSocket()
	_, err := Synthesize(context.Background(), SynthesizeOptions{Text: "  "}, nil, fakeConfig(sock))
	if !core.IsType(err, core.ErrInvalidRequest) {
		t.Fatalf("err=%v, want invalid request", err)
	}
	if len(sock.DialOptions()) != 0 {
		t.Fatalf("dialed with invalid options")
	}

	_, err = Synthesize(context.Background(), SynthesizeOptions{Text: "hi"}, nil, SessionConfig{})
	if !core.IsType(err, core.ErrInvalidRequest) {
		t.Fatalf("empty url err=%v, want invalid request", err)
	}
}

func TestSynthesize_DialFailureCallsNoListener(t *testing.T) {
	sock := fake.NewSocket()
	sock.FailDial(errors.New("no route to host"))
	l := &recordingListener{}
	_, err := Synthesize(context.Background(), SynthesizeOptions{Text: "hi"}, l, fakeConfig(sock))
	if !core.IsType(err, core.ErrTransport) {
		t.Fatalf("err=%v, want transport error", err)
	}
	if len(l.snapshot()) != 0 {
		t.Fatalf("events=%v, want none", l.snapshot())
	}
}

func TestSynthesize_PassesTransportOptions(t *testing.T) {
	sock := fake.NewSocket()
	sock.Hangup(nil)

	cfg := fakeConfig(sock)
	cfg.ReadLimit = 1 << 20
	sess, err := Synthesize(context.Background(), SynthesizeOptions{Text: "hi"}, nil, cfg)
	if err != nil {
		t.Fatalf("Synthesize error: %v", err)
	}
	_ = sess.Wait()

	dialed := sock.DialOptions()
	if len(dialed) != 1 || dialed[0].ReadLimit != 1<<20 {
		t.Fatalf("dial options=%+v, want ReadLimit 1048576", dialed)
	}
}

func TestSynthesize_CloseRequestsHandshake(t *testing.T) {
	sock := fake.NewSocket()
	sess, err := Synthesize(context.Background(), SynthesizeOptions{Text: "hi"}, nil, fakeConfig(sock))
	if err != nil {
		t.Fatalf("Synthesize error: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	select {
	case <-sess.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not close")
	}
	if sock.CloseRequests() != 1 {
		t.Fatalf("close requests=%d, want 1", sock.CloseRequests())
	}
}

func TestRequestMessage_Extra(t *testing.T) {
	data, err := SynthesizeOptions{Text: "hi", Extra: map[string]any{"text": "overridden", "rate_percentage": 10}}.RequestMessage()
	if err != nil {
		t.Fatalf("RequestMessage error: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["text"] != "hi" || got["rate_percentage"] != float64(10) {
		t.Fatalf("request=%v", got)
	}
	if _, ok := got["accept"]; ok {
		t.Fatalf("unset accept encoded: %s", data)
	}
}

func TestBuildURL(t *testing.T) {
	got, err := BuildURL("https://api.eu-de.text-to-speech.watson.cloud.ibm.com", URLParams{Voice: "en-US_AllisonV3Voice"})
	if err != nil {
		t.Fatalf("BuildURL error: %v", err)
	}
	if got != "wss://api.eu-de.text-to-speech.watson.cloud.ibm.com/v1/synthesize?voice=en-US_AllisonV3Voice" {
		t.Fatalf("url=%q", got)
	}
}

func TestSynthesize_OverWebsocket(t *testing.T) {
	t.Parallel()

	var gotRequest map[string]any
	requestSeen := make(chan struct{})
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/synthesize" || r.URL.Query().Get("voice") != "en-US_MichaelV3Voice" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = json.Unmarshal(data, &gotRequest)
		close(requestSeen)

		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"binary_streams":[{"content_type":"audio/wav"}]}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"words":[["hello",0.0,0.4]]}`))
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte("RIFF0000"))
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte("WAVEdata"))
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_, _, _ = conn.ReadMessage()
	}))
	defer server.Close()

	wsURL, err := BuildURL(server.URL, URLParams{Voice: "en-US_MichaelV3Voice"})
	if err != nil {
		t.Fatalf("BuildURL error: %v", err)
	}

	var (
		mu          sync.Mutex
		contentType string
		audio       []byte
		closes      int
		errs        []error
	)
	listener := ListenerFuncs{
		ContentType: func(ct string) { mu.Lock(); contentType = ct; mu.Unlock() },
		AudioStream: func(chunk []byte) { mu.Lock(); audio = append(audio, chunk...); mu.Unlock() },
		Error:       func(err error) { mu.Lock(); errs = append(errs, err); mu.Unlock() },
		Close:       func() { mu.Lock(); closes++; mu.Unlock() },
	}

	sess, err := Synthesize(context.Background(), SynthesizeOptions{Text: "hello", Accept: "audio/wav"}, listener, SessionConfig{URL: wsURL})
	if err != nil {
		t.Fatalf("Synthesize error: %v", err)
	}
	if err := sess.Wait(); err != nil {
		t.Fatalf("Wait error: %v", err)
	}
	<-requestSeen

	if gotRequest["text"] != "hello" || gotRequest["accept"] != "audio/wav" {
		t.Fatalf("request=%v", gotRequest)
	}
	mu.Lock()
	defer mu.Unlock()
	if contentType != "audio/wav" {
		t.Fatalf("content type=%q", contentType)
	}
	if string(audio) != "RIFF0000WAVEdata" {
		t.Fatalf("audio=%q", audio)
	}
	if closes != 1 || len(errs) != 0 {
		t.Fatalf("closes=%d errs=%v", closes, errs)
	}
}
