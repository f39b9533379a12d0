package stt

import (
	"github.com/vango-go/watson-speech/pkg/core/transport"
)

const recognizePath = "/v1/recognize"

// URLParams are the query parameters of the recognize endpoint.
type URLParams struct {
	Model                   string
	LanguageCustomizationID string
	AcousticCustomizationID string
	BaseModelVersion        string
	AccessToken             string
}

// BuildURL turns a service URL into the recognize WebSocket URL.
func BuildURL(serviceURL string, p URLParams) (string, error) {
	u, err := transport.EndpointURL(serviceURL, recognizePath)
	if err != nil {
		return "", err
	}

	q := u.Query()
	transport.SetQuery(q, "model", p.Model)
	transport.SetQuery(q, "language_customization_id", p.LanguageCustomizationID)
	transport.SetQuery(q, "acoustic_customization_id", p.AcousticCustomizationID)
	transport.SetQuery(q, "base_model_version", p.BaseModelVersion)
	transport.SetQuery(q, "access_token", p.AccessToken)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
