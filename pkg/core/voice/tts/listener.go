// Package tts provides streaming text-to-speech sessions.
package tts

// SynthesizeListener receives session events. Methods are called serially from
// the session's read goroutine, except OnConnected which runs in Synthesize.
type SynthesizeListener interface {
	// OnConnected is called once the WebSocket is open, before the request is sent.
	OnConnected()

	// OnError reports service errors, unparsable frames and abnormal closes.
	// A failed connect is returned by Synthesize and never reaches OnError.
	OnError(err error)

	// OnContentType receives the content type of the audio stream.
	OnContentType(contentType string)

	// OnTimingInformation receives word and mark timings.
	OnTimingInformation(timing TimingInformation)

	// OnAudioStream receives each chunk of synthesized audio.
	OnAudioStream(chunk []byte)

	// OnData receives the raw payload of every frame that was handled
	// without error.
	OnData(data []byte)

	// OnClose is called exactly once when the connection ends.
	OnClose()
}

// NopSynthesizeListener implements SynthesizeListener with no-op methods.
type NopSynthesizeListener struct{}

var _ SynthesizeListener = NopSynthesizeListener{}

func (NopSynthesizeListener) OnConnected()                          {}
func (NopSynthesizeListener) OnError(error)                         {}
func (NopSynthesizeListener) OnContentType(string)                  {}
func (NopSynthesizeListener) OnTimingInformation(TimingInformation) {}
func (NopSynthesizeListener) OnAudioStream([]byte)                  {}
func (NopSynthesizeListener) OnData([]byte)                         {}
func (NopSynthesizeListener) OnClose()                              {}

// ListenerFuncs adapts optional callbacks to SynthesizeListener.
type ListenerFuncs struct {
	Connected         func()
	Error             func(err error)
	ContentType       func(contentType string)
	TimingInformation func(timing TimingInformation)
	AudioStream       func(chunk []byte)
	Data              func(data []byte)
	Close             func()
}

var _ SynthesizeListener = ListenerFuncs{}

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

func (f ListenerFuncs) OnContentType(contentType string) {
	if f.ContentType != nil {
		f.ContentType(contentType)
	}
}

func (f ListenerFuncs) OnTimingInformation(timing TimingInformation) {
	if f.TimingInformation != nil {
		f.TimingInformation(timing)
	}
}

func (f ListenerFuncs) OnAudioStream(chunk []byte) {
	if f.AudioStream != nil {
		f.AudioStream(chunk)
	}
}

func (f ListenerFuncs) OnData(data []byte) {
	if f.Data != nil {
		f.Data(data)
	}
}

func (f ListenerFuncs) OnClose() {
	if f.Close != nil {
		f.Close()
	}
}
