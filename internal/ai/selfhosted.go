package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// SelfHostedProvider talks to an OpenAI-compatible inference endpoint run
// alongside this service. Streamed responses are handed back unmodified.
type SelfHostedProvider struct {
	BaseURL string
	Model   string
	Headers map[string]string
	Client  *http.Client
}

type selfHostedChatReq struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"`
	Temperature *float32  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type selfHostedChatResp struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewSelfHostedProvider(route Route, client *http.Client) *SelfHostedProvider {
	if client == nil {
		client = NewHTTPClient()
	}
	return &SelfHostedProvider{
		BaseURL: route.BaseURL,
		Model:   route.Model,
		Headers: route.Headers,
		Client:  client,
	}
}

func (p *SelfHostedProvider) endpoint() string {
	return strings.TrimRight(p.BaseURL, "/") + "/v1/chat/completions"
}

func (p *SelfHostedProvider) do(ctx context.Context, messages []Message, stream bool, opts []CallOption) (*http.Response, error) {
	if p.Client == nil {
		return nil, errors.New("self-hosted: http client is nil")
	}
	if strings.TrimSpace(p.BaseURL) == "" {
		return nil, &ConfigError{Backend: BackendSelfHosted, Missing: []string{"BACKEND_AI_ENDPOINT"}}
	}
	o := applyOptions(opts)
	if o.ImageURL != "" {
		return nil, errors.New("self-hosted: image input is not supported")
	}

	b, err := json.Marshal(selfHostedChatReq{
		Model:       p.Model,
		Messages:    messages,
		Stream:      stream,
		Temperature: o.Temperature,
		MaxTokens:   o.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(), bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = resp.Status
		}
		return nil, &UpstreamError{Backend: BackendSelfHosted, Status: resp.StatusCode, Message: msg}
	}
	return resp, nil
}

func (p *SelfHostedProvider) Chat(ctx context.Context, messages []Message, opts ...CallOption) (string, error) {
	resp, err := p.do(ctx, messages, false, opts)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var decoded selfHostedChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("self-hosted: decode response: %w", err)
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", &UpstreamError{Backend: BackendSelfHosted, Status: resp.StatusCode, Message: decoded.Error.Message}
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("self-hosted: empty response")
	}
	return decoded.Choices[0].Message.Content, nil
}

// OpenStream returns the upstream response body as-is.
func (p *SelfHostedProvider) OpenStream(ctx context.Context, messages []Message, opts ...CallOption) (io.ReadCloser, error) {
	resp, err := p.do(ctx, messages, true, opts)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}
