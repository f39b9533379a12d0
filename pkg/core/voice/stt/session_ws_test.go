package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/vango-go/watson-speech/pkg/core/voice/audio"
)

func newRecognizeTestServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) (string, func()) {
	t.Helper()

	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/recognize" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		handler(conn, r)
	}))
	return server.URL, server.Close
}

func TestRecognize_OverWebsocket(t *testing.T) {
	t.Parallel()

	var (
		mu         sync.Mutex
		gotModel   string
		gotAuth    string
		gotStart   map[string]any
		audioBytes int
		sawClose   bool
	)
	serviceURL, closeServer := newRecognizeTestServer(t, func(conn *websocket.Conn, r *http.Request) {
		defer conn.Close()
		mu.Lock()
		gotModel = r.URL.Query().Get("model")
		gotAuth = r.Header.Get("Authorization")
		mu.Unlock()

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var start map[string]any
		_ = json.Unmarshal(data, &start)
		mu.Lock()
		gotStart = start
		mu.Unlock()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"state":"listening"}`))

		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				mu.Lock()
				audioBytes += len(data)
				mu.Unlock()
				continue
			}
			if strings.Contains(string(data), `"close"`) {
				mu.Lock()
				sawClose = true
				mu.Unlock()
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"result_index":0,"results":[{"final":true,"alternatives":[{"transcript":"thunderstorms could produce large hail ","confidence":0.91}]}]}`))
				_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"state":"listening"}`))
			}
		}
	})
	defer closeServer()

	wsURL, err := BuildURL(serviceURL, URLParams{Model: "en-US_BroadbandModel"})
	if err != nil {
		t.Fatalf("BuildURL error: %v", err)
	}

	var (
		lmu         sync.Mutex
		transcripts []Transcript
		closes      int
		listening   int
	)
	listener := ListenerFuncs{
		Listening: func() {
			lmu.Lock()
			listening++
			lmu.Unlock()
		},
		Transcription: func(ts []Transcript) {
			lmu.Lock()
			transcripts = append(transcripts, ts...)
			lmu.Unlock()
		},
		Close: func() {
			lmu.Lock()
			closes++
			lmu.Unlock()
		},
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer test-token")
	src := audio.NewStreamSource()
	sess, err := Recognize(context.Background(), src, RecognizeOptions{ContentType: "audio/wav", InterimResults: Ptr(true)}, listener, SessionConfig{
		URL:           wsURL,
		Header:        header,
		DrainInterval: time.Millisecond,
		CloseTimeout:  2 * time.Second,
	})
	if err != nil {
		t.Fatalf("Recognize error: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := src.Push(make([]byte, 700)); err != nil {
			t.Fatalf("Push error: %v", err)
		}
	}
	src.MarkComplete()

	select {
	case <-sess.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("session did not finish")
	}
	if err := sess.Wait(); err != nil {
		t.Fatalf("Wait error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotModel != "en-US_BroadbandModel" {
		t.Fatalf("model=%q", gotModel)
	}
	if gotAuth != "Bearer test-token" {
		t.Fatalf("authorization=%q", gotAuth)
	}
	if gotStart["action"] != "start" || gotStart["content-type"] != "audio/wav" || gotStart["interim_results"] != true {
		t.Fatalf("start=%v", gotStart)
	}
	if audioBytes != 2100 {
		t.Fatalf("audio bytes=%d, want 2100", audioBytes)
	}
	if !sawClose {
		t.Fatalf("server never saw the close message")
	}

	lmu.Lock()
	defer lmu.Unlock()
	if listening != 1 || closes != 1 {
		t.Fatalf("listening=%d closes=%d, want 1 and 1", listening, closes)
	}
	if len(transcripts) != 1 || transcripts[0].Transcript != "thunderstorms could produce large hail " {
		t.Fatalf("transcripts=%+v", transcripts)
	}
}
