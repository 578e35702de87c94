package ai

import (
	"net"
	"net/http"
	"time"
)

// NewHTTPClient returns a client for model backends. There is no overall
// timeout because streamed replies run long; callers bound calls with their
// context, and a stalled upstream is cut off by the header timeout.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 2 * time.Minute,
		},
	}
}

// headerTransport sets fixed headers on every outgoing request.
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	for k, v := range t.headers {
		if v == "" {
			continue
		}
		r.Header.Set(k, v)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(r)
}

// withHeaders wraps client so that every request carries headers.
func withHeaders(client *http.Client, headers map[string]string) *http.Client {
	if client == nil {
		client = NewHTTPClient()
	}
	if len(headers) == 0 {
		return client
	}
	return &http.Client{
		Transport:     &headerTransport{base: client.Transport, headers: headers},
		CheckRedirect: client.CheckRedirect,
		Jar:           client.Jar,
		Timeout:       client.Timeout,
	}
}
