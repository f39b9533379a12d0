package tts

import (
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/vango-go/watson-speech/pkg/core"
	"github.com/vango-go/watson-speech/pkg/core/transport"
)

const synthesizePath = "/v1/synthesize"

// SynthesizeOptions is the single request message of a synthesize session.
type SynthesizeOptions struct {
	Text    string   `json:"text"`              // Plain text or SSML; required
	Accept  string   `json:"accept,omitempty"`  // Audio format, e.g. "audio/ogg;codecs=opus"
	Timings []string `json:"timings,omitempty"` // "words" requests word timings

	// Extra carries request fields without a typed field. Typed fields take precedence.
	Extra map[string]any `json:"-"`
}

// Validate reports an invalid_request_error for an empty text.
func (o SynthesizeOptions) Validate() error {
	if strings.TrimSpace(o.Text) == "" {
		return core.NewInvalidRequestError("text must not be empty")
	}
	return nil
}

// RequestMessage encodes the request frame.
func (o SynthesizeOptions) RequestMessage() ([]byte, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if len(o.Extra) == 0 {
		data, err := json.Marshal(o)
		if err != nil {
			return nil, fmt.Errorf("encode synthesize request: %w", err)
		}
		return data, nil
	}

	msg := make(map[string]any, len(o.Extra)+3)
	for k, v := range o.Extra {
		msg[k] = v
	}
	msg["text"] = o.Text
	if o.Accept != "" {
		msg["accept"] = o.Accept
	}
	if len(o.Timings) > 0 {
		msg["timings"] = o.Timings
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode synthesize request: %w", err)
	}
	return data, nil
}

// URLParams are the query parameters of the synthesize endpoint.
type URLParams struct {
	Voice           string
	CustomizationID string
	AccessToken     string
}

// BuildURL turns a service URL into the synthesize WebSocket URL.
func BuildURL(serviceURL string, p URLParams) (string, error) {
	u, err := transport.EndpointURL(serviceURL, synthesizePath)
	if err != nil {
		return "", err
	}
	q := u.Query()
	transport.SetQuery(q, "voice", p.Voice)
	transport.SetQuery(q, "customization_id", p.CustomizationID)
	transport.SetQuery(q, "access_token", p.AccessToken)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
