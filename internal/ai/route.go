package ai

import (
	"strings"
)

// Backend tags which network path a model call takes.
type Backend string

const (
	BackendSelfHosted Backend = "self-hosted"
	BackendProxy      Backend = "observability-proxy"
	BackendDirect     Backend = "direct"
)

// SelfHostedAPIKeySentinel fills the provider key slot on the self-hosted
// route; that backend authenticates with its own bearer token instead.
const SelfHostedAPIKeySentinel = "not-needed"

// Route is the resolved backend, endpoint and credentials for one model call.
type Route struct {
	Backend Backend
	Model   string
	// BaseURL is empty on the direct route: the provider default applies.
	BaseURL string
	Headers map[string]string
	APIKey  string

	missing []string
}

// Validate fails when the route lacks configuration it needs.
func (r Route) Validate() error {
	if len(r.missing) == 0 {
		return nil
	}
	return &ConfigError{Backend: r.Backend, Missing: append([]string(nil), r.missing...)}
}

type RouterConfig struct {
	SelfHostedModel    string
	SelfHostedEndpoint string
	SelfHostedAPIKey   string

	PrimaryAPIKey string

	ProxyAPIKey  string
	ProxyBaseURL string
	AppName      string
}

// Router resolves a requested model id to a Route. It holds no connection
// state; every call builds a fresh value.
type Router struct {
	cfg RouterConfig
}

func NewRouter(cfg RouterConfig) *Router {
	return &Router{cfg: cfg}
}

// SelfHostedModel returns the configured self-hosted model id, or "".
func (r *Router) SelfHostedModel() string {
	return strings.TrimSpace(r.cfg.SelfHostedModel)
}

// IsSelfHosted reports whether model routes to the self-hosted backend.
func (r *Router) IsSelfHosted(model string) bool {
	self := r.SelfHostedModel()
	return self != "" && strings.TrimSpace(model) == self
}

// Resolve picks the route for model. chatID correlates proxy traces for a
// whole conversation and may be empty.
//
// Precedence: self-hosted model match, then observability proxy when its key
// is set, then the primary provider directly.
func (r *Router) Resolve(model, chatID string) Route {
	model = strings.TrimSpace(model)

	if r.IsSelfHosted(model) {
		rt := Route{
			Backend: BackendSelfHosted,
			Model:   model,
			BaseURL: strings.TrimSpace(r.cfg.SelfHostedEndpoint),
			Headers: map[string]string{
				"Authorization": "Bearer " + r.cfg.SelfHostedAPIKey,
				"Content-Type":  "application/json",
			},
			APIKey: SelfHostedAPIKeySentinel,
		}
		if rt.BaseURL == "" {
			rt.missing = append(rt.missing, "BACKEND_AI_ENDPOINT")
		}
		if strings.TrimSpace(r.cfg.SelfHostedAPIKey) == "" {
			rt.missing = append(rt.missing, "BACKEND_AI_API_KEY")
		}
		return rt
	}

	if strings.TrimSpace(r.cfg.ProxyAPIKey) != "" {
		appName := r.cfg.AppName
		rt := Route{
			Backend: BackendProxy,
			Model:   model,
			BaseURL: r.cfg.ProxyBaseURL,
			Headers: map[string]string{
				"Helicone-Auth":             "Bearer " + r.cfg.ProxyAPIKey,
				"Helicone-Property-appname": appName,
				"Helicone-Session-Id":       chatID,
				"Helicone-Session-Name":     appName + " Chat",
			},
			APIKey: r.cfg.PrimaryAPIKey,
		}
		if rt.BaseURL == "" {
			rt.missing = append(rt.missing, "HELICONE_BASE_URL")
		}
		if strings.TrimSpace(rt.APIKey) == "" {
			rt.missing = append(rt.missing, "TOGETHER_API_KEY")
		}
		return rt
	}

	rt := Route{
		Backend: BackendDirect,
		Model:   model,
		Headers: map[string]string{},
		APIKey:  r.cfg.PrimaryAPIKey,
	}
	if strings.TrimSpace(rt.APIKey) == "" {
		rt.missing = append(rt.missing, "TOGETHER_API_KEY")
	}
	return rt
}
