package stt

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/vango-go/watson-speech/pkg/core/transport"
)

// inactivityPrefix marks the service's inactivity timeout among error frames.
const inactivityPrefix = "No speech detected for"

// FrameKind is the decoded variant of an inbound frame.
type FrameKind int

const (
	FrameOther FrameKind = iota
	FrameError
	FrameInactivityTimeout
	FrameState
	FrameResults
	FrameBinary
	FrameMalformed
)

func (k FrameKind) String() string {
	switch k {
	case FrameOther:
		return "other"
	case FrameError:
		return "error"
	case FrameInactivityTimeout:
		return "inactivity_timeout"
	case FrameState:
		return "state"
	case FrameResults:
		return "results"
	case FrameBinary:
		return "binary"
	case FrameMalformed:
		return "malformed"
	default:
		return fmt.Sprintf("FrameKind(%d)", int(k))
	}
}

// Result is one entry of a results frame.
type Result struct {
	Final        bool
	Alternatives []Transcript
}

// Frame is one decoded inbound frame. Which fields are set depends on Kind.
type Frame struct {
	Kind FrameKind

	// Message is the error text of FrameError and FrameInactivityTimeout.
	Message string
	// State is the state value of FrameState.
	State string

	Results []Result
	// Hypothesis is results[0].alternatives[0].transcript when HasHypothesis.
	Hypothesis    string
	HasHypothesis bool

	// Data is the decoded object of FrameResults and FrameOther.
	Data map[string]any
	// Binary holds the payload of FrameBinary.
	Binary []byte
	// Err is the decode failure of FrameMalformed.
	Err error
}

type wireResults struct {
	Results []struct {
		Final        bool `json:"final"`
		Alternatives []struct {
			Transcript string   `json:"transcript"`
			Confidence *float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"results"`
}

// DecodeFrame classifies an inbound frame. It has no side effects.
func DecodeFrame(f transport.Frame) Frame {
	if f.Type == transport.BinaryMessage {
		return Frame{Kind: FrameBinary, Binary: f.Data}
	}

	var obj map[string]any
	if err := json.Unmarshal(f.Data, &obj); err != nil {
		return Frame{Kind: FrameMalformed, Err: err}
	}
	if obj == nil {
		return Frame{Kind: FrameMalformed, Err: fmt.Errorf("frame is not a JSON object")}
	}

	if raw, ok := obj["error"]; ok {
		msg := stringValue(raw)
		if strings.HasPrefix(msg, inactivityPrefix) {
			return Frame{Kind: FrameInactivityTimeout, Message: msg}
		}
		return Frame{Kind: FrameError, Message: msg}
	}

	if raw, ok := obj["state"]; ok {
		return Frame{Kind: FrameState, State: stringValue(raw)}
	}

	_, hasResults := obj["results"]
	_, hasSpeakers := obj["speaker_labels"]
	if hasResults || hasSpeakers {
		frame := Frame{Kind: FrameResults, Data: obj}
		var wire wireResults
		// Shapes the typed view cannot hold still reach OnData.
		if hasResults && json.Unmarshal(f.Data, &wire) == nil {
			for _, r := range wire.Results {
				result := Result{Final: r.Final}
				for _, alt := range r.Alternatives {
					result.Alternatives = append(result.Alternatives, Transcript{
						Transcript: alt.Transcript,
						Confidence: alt.Confidence,
					})
				}
				frame.Results = append(frame.Results, result)
			}
			if len(frame.Results) > 0 && len(frame.Results[0].Alternatives) > 0 {
				frame.Hypothesis = frame.Results[0].Alternatives[0].Transcript
				frame.HasHypothesis = true
			}
		}
		return frame
	}

	return Frame{Kind: FrameOther, Data: obj}
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
