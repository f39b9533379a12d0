// Package stt provides streaming speech-to-text sessions.
package stt

// Transcript is one alternative of a final recognition result.
type Transcript struct {
	Transcript string
	// Confidence is nil when the service did not report one.
	Confidence *float64
}

// RecognizeListener receives session events. Methods are called serially from
// the session's read goroutine, except OnConnected which runs in Recognize.
type RecognizeListener interface {
	// OnConnected is called once the WebSocket is open, before the start message.
	OnConnected()

	// OnError reports service errors, malformed frames and abnormal closes.
	// A failed connect is returned by Recognize and never reaches OnError.
	OnError(err error)

	// OnInactivityTimeout reports the service's "No speech detected" condition.
	OnInactivityTimeout(err error)

	// OnListening is called when the service first reports its listening state.
	OnListening()

	// OnHypothesis is called for every results or speaker_labels frame, final
	// or not, with the first alternative of the first result. It is "" when
	// the frame has no alternative.
	OnHypothesis(hypothesis string)

	// OnTranscription receives every alternative of a final result.
	OnTranscription(transcripts []Transcript)

	// OnData receives every decoded results frame and every unrecognized JSON object.
	OnData(data map[string]any)

	// OnClose is called exactly once when the connection ends.
	OnClose()
}

// NopRecognizeListener implements RecognizeListener with no-op methods.
// Embed it to override only the events you need.
type NopRecognizeListener struct{}

var _ RecognizeListener = NopRecognizeListener{}

func (NopRecognizeListener) OnConnected()                 {}
func (NopRecognizeListener) OnError(error)                {}
func (NopRecognizeListener) OnInactivityTimeout(error)    {}
func (NopRecognizeListener) OnListening()                 {}
func (NopRecognizeListener) OnHypothesis(string)          {}
func (NopRecognizeListener) OnTranscription([]Transcript) {}
func (NopRecognizeListener) OnData(map[string]any)        {}
func (NopRecognizeListener) OnClose()                     {}

// ListenerFuncs adapts optional callbacks to RecognizeListener. Nil fields are no-ops.
type ListenerFuncs struct {
	Connected         func()
	Error             func(err error)
	InactivityTimeout func(err error)
	Listening         func()
	Hypothesis        func(hypothesis string)
	Transcription     func(transcripts []Transcript)
	Data              func(data map[string]any)
	Close             func()
}

var _ RecognizeListener = ListenerFuncs{}

func (f ListenerFuncs) OnConnected() {
	if f.Connected != nil {
		f.Connected()
	}
}

func (f ListenerFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

func (f ListenerFuncs) OnInactivityTimeout(err error) {
	if f.InactivityTimeout != nil {
		f.InactivityTimeout(err)
	}
}

func (f ListenerFuncs) OnListening() {
	if f.Listening != nil {
		f.Listening()
	}
}

func (f ListenerFuncs) OnHypothesis(hypothesis string) {
	if f.Hypothesis != nil {
		f.Hypothesis(hypothesis)
	}
}

func (f ListenerFuncs) OnTranscription(transcripts []Transcript) {
	if f.Transcription != nil {
		f.Transcription(transcripts)
	}
}

func (f ListenerFuncs) OnData(data map[string]any) {
	if f.Data != nil {
		f.Data(data)
	}
}

func (f ListenerFuncs) OnClose() {
	if f.Close != nil {
		f.Close()
	}
}
