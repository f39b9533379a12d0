package transport

import (
	"net/url"
	"strings"

	"github.com/vango-go/watson-speech/pkg/core"
)

// EndpointURL converts a service URL to its WebSocket form and appends path.
// https maps to wss and http to ws.
func EndpointURL(serviceURL, path string) (*url.URL, error) {
	raw := strings.TrimSpace(serviceURL)
	if raw == "" {
		return nil, core.NewInvalidRequestError("service url must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, core.NewInvalidRequestError("invalid service url: " + err.Error())
	}
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return nil, core.NewInvalidRequestError("service url must use an http(s) or ws(s) scheme")
	}
	if u.Host == "" {
		return nil, core.NewInvalidRequestError("service url must include a host")
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u, nil
}

// SetQuery sets key on q when value is not empty.
func SetQuery(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}
