package stt

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// closeMessage tells the service no more audio follows.
var closeMessage = []byte(`{"action":"close"}`)

// RecognizeOptions are the parameters of the start message. Unset fields are
// omitted so the service applies its defaults.
type RecognizeOptions struct {
	ContentType                string   `json:"content-type,omitempty"`
	InactivityTimeout          *int     `json:"inactivity_timeout,omitempty"`
	InterimResults             *bool    `json:"interim_results,omitempty"`
	Keywords                   []string `json:"keywords,omitempty"`
	KeywordsThreshold          *float64 `json:"keywords_threshold,omitempty"`
	MaxAlternatives            *int     `json:"max_alternatives,omitempty"`
	WordAlternativesThreshold  *float64 `json:"word_alternatives_threshold,omitempty"`
	WordConfidence             *bool    `json:"word_confidence,omitempty"`
	Timestamps                 *bool    `json:"timestamps,omitempty"`
	ProfanityFilter            *bool    `json:"profanity_filter,omitempty"`
	SmartFormatting            *bool    `json:"smart_formatting,omitempty"`
	SmartFormattingVersion     *int     `json:"smart_formatting_version,omitempty"`
	SpeakerLabels              *bool    `json:"speaker_labels,omitempty"`
	CustomizationWeight        *float64 `json:"customization_weight,omitempty"`
	GrammarName                string   `json:"grammar_name,omitempty"`
	Redaction                  *bool    `json:"redaction,omitempty"`
	ProcessingMetrics          *bool    `json:"processing_metrics,omitempty"`
	ProcessingMetricsInterval  *float64 `json:"processing_metrics_interval,omitempty"`
	AudioMetrics               *bool    `json:"audio_metrics,omitempty"`
	EndOfPhraseSilenceTime     *float64 `json:"end_of_phrase_silence_time,omitempty"`
	SplitTranscriptAtPhraseEnd *bool    `json:"split_transcript_at_phrase_end,omitempty"`
	SpeechDetectorSensitivity  *float64 `json:"speech_detector_sensitivity,omitempty"`
	BackgroundAudioSuppression *float64 `json:"background_audio_suppression,omitempty"`
	LowLatency                 *bool    `json:"low_latency,omitempty"`
	CharacterInsertionBias     *float64 `json:"character_insertion_bias,omitempty"`

	// Extra carries parameters without a typed field. Typed fields take precedence.
	Extra map[string]any `json:"-"`
}

// Ptr returns a pointer to v, for the optional fields of RecognizeOptions.
func Ptr[T any](v T) *T {
	return &v
}

// StartMessage encodes the options with "action":"start".
func (o RecognizeOptions) StartMessage() ([]byte, error) {
	typed, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("encode recognize options: %w", err)
	}
	msg := make(map[string]any, len(o.Extra)+4)
	for k, v := range o.Extra {
		msg[k] = v
	}
	var fields map[string]any
	if err := json.Unmarshal(typed, &fields); err != nil {
		return nil, fmt.Errorf("encode recognize options: %w", err)
	}
	for k, v := range fields {
		msg[k] = v
	}
	msg["action"] = "start"

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode start message: %w", err)
	}
	return data, nil
}
