package tts

import (
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/vango-go/watson-speech/pkg/core/transport"
)

// FrameKind is the decoded variant of an inbound frame.
type FrameKind int

const (
	FrameTiming FrameKind = iota
	FrameContentType
	FrameError
	FrameAudio
	FrameMalformed
)

func (k FrameKind) String() string {
	switch k {
	case FrameTiming:
		return "timing"
	case FrameContentType:
		return "content_type"
	case FrameError:
		return "error"
	case FrameAudio:
		return "audio"
	case FrameMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("FrameKind(%d)", int(k))
	}
}

// WordTiming is one ["word", start, end] entry.
type WordTiming struct {
	Word  string
	Start float64
	End   float64
}

// MarkTiming is one ["mark", time] entry.
type MarkTiming struct {
	Mark string
	Time float64
}

// TimingInformation is a metadata frame. Words and Marks are decoded best
// effort; Raw always holds the whole object.
type TimingInformation struct {
	Raw   map[string]any
	Words []WordTiming
	Marks []MarkTiming
}

// Frame is one decoded inbound frame.
type Frame struct {
	Kind FrameKind

	ContentType string
	Message     string
	Timing      TimingInformation
	// Data is the raw payload.
	Data []byte
	Err  error
}

// DecodeFrame classifies an inbound frame. It has no side effects.
func DecodeFrame(f transport.Frame) Frame {
	if f.Type == transport.BinaryMessage {
		return Frame{Kind: FrameAudio, Data: f.Data}
	}

	var obj map[string]any
	if err := json.Unmarshal(f.Data, &obj); err != nil {
		return Frame{Kind: FrameMalformed, Data: f.Data, Err: err}
	}
	if obj == nil {
		return Frame{Kind: FrameMalformed, Data: f.Data, Err: fmt.Errorf("frame is not a JSON object")}
	}

	// binary_streams wins over error.
	if raw, ok := obj["binary_streams"]; ok {
		return Frame{Kind: FrameContentType, ContentType: firstContentType(raw), Data: f.Data}
	}

	if raw, ok := obj["error"]; ok {
		return Frame{Kind: FrameError, Message: stringValue(raw), Data: f.Data}
	}

	return Frame{
		Kind: FrameTiming,
		Timing: TimingInformation{
			Raw:   obj,
			Words: wordTimings(obj["words"]),
			Marks: markTimings(obj["marks"]),
		},
		Data: f.Data,
	}
}

func firstContentType(raw any) string {
	streams, ok := raw.([]any)
	if !ok || len(streams) == 0 {
		return ""
	}
	first, ok := streams[0].(map[string]any)
	if !ok {
		return ""
	}
	ct, _ := first["content_type"].(string)
	return ct
}

func wordTimings(raw any) []WordTiming {
	entries, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]WordTiming, 0, len(entries))
	for _, e := range entries {
		tuple, ok := e.([]any)
		if !ok || len(tuple) < 3 {
			continue
		}
		word, ok1 := tuple[0].(string)
		start, ok2 := tuple[1].(float64)
		end, ok3 := tuple[2].(float64)
		if !ok1 || !ok2 || !ok3 {
			continue
		}
		out = append(out, WordTiming{Word: word, Start: start, End: end})
	}
	return out
}

func markTimings(raw any) []MarkTiming {
	entries, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]MarkTiming, 0, len(entries))
	for _, e := range entries {
		tuple, ok := e.([]any)
		if !ok || len(tuple) < 2 {
			continue
		}
		mark, ok1 := tuple[0].(string)
		at, ok2 := tuple[1].(float64)
		if !ok1 || !ok2 {
			continue
		}
		out = append(out, MarkTiming{Mark: mark, Time: at})
	}
	return out
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(data)
	}
}
