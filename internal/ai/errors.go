package ai

import (
	"fmt"
	"strings"
)

// ConfigError reports a route that cannot be used because required
// credentials or endpoints are missing from the process configuration.
type ConfigError struct {
	Backend Backend
	Missing []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: missing configuration: %s", e.Backend, strings.Join(e.Missing, ", "))
}

// UpstreamError is a non-success response from a model backend.
type UpstreamError struct {
	Backend Backend
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: request failed: %s", e.Backend, e.Message)
}
