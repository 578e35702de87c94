package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// TogetherProvider calls the primary hosted provider through its
// OpenAI-compatible API, directly or via the observability proxy.
type TogetherProvider struct {
	backend Backend
	model   model.BaseChatModel
}

// NewTogetherProvider builds a provider for route. defaultBaseURL applies
// when the route does not override the base URL.
func NewTogetherProvider(ctx context.Context, route Route, defaultBaseURL string, client *http.Client) (*TogetherProvider, error) {
	if strings.TrimSpace(route.APIKey) == "" {
		return nil, &ConfigError{Backend: route.Backend, Missing: []string{"TOGETHER_API_KEY"}}
	}
	if strings.TrimSpace(route.Model) == "" {
		return nil, fmt.Errorf("%s: model is required", route.Backend)
	}
	baseURL := route.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:     route.APIKey,
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Model:      route.Model,
		HTTPClient: withHeaders(client, route.Headers),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: create chat model: %w", route.Backend, err)
	}
	return &TogetherProvider{backend: route.Backend, model: cm}, nil
}

// NewTogetherProviderWithModel wraps an existing chat model.
func NewTogetherProviderWithModel(backend Backend, cm model.BaseChatModel) *TogetherProvider {
	return &TogetherProvider{backend: backend, model: cm}
}

func (p *TogetherProvider) Chat(ctx context.Context, messages []Message, opts ...CallOption) (string, error) {
	o := applyOptions(opts)
	resp, err := p.model.Generate(ctx, toSchemaMessages(messages, o.ImageURL), modelOptions(o)...)
	if err != nil {
		return "", fmt.Errorf("%s: generate: %w", p.backend, err)
	}
	if resp == nil {
		return "", fmt.Errorf("%s: empty response", p.backend)
	}
	return resp.Content, nil
}

// OpenStream starts a streamed completion and adapts it to SSE framed bytes:
// one `data: {"choices":[{"delta":{"content":...}}]}` line per chunk,
// terminated by `data: [DONE]`.
func (p *TogetherProvider) OpenStream(ctx context.Context, messages []Message, opts ...CallOption) (io.ReadCloser, error) {
	o := applyOptions(opts)
	sr, err := p.model.Stream(ctx, toSchemaMessages(messages, o.ImageURL), modelOptions(o)...)
	if err != nil {
		return nil, fmt.Errorf("%s: stream: %w", p.backend, err)
	}
	return StreamToSSE(sr), nil
}

func modelOptions(o CallOptions) []model.Option {
	var out []model.Option
	if o.Temperature != nil {
		out = append(out, model.WithTemperature(*o.Temperature))
	}
	if o.MaxTokens > 0 {
		out = append(out, model.WithMaxTokens(o.MaxTokens))
	}
	return out
}

func toSchemaMessages(messages []Message, imageURL string) []*schema.Message {
	lastUser := -1
	if imageURL != "" {
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].Role == RoleUser {
				lastUser = i
				break
			}
		}
	}

	out := make([]*schema.Message, 0, len(messages))
	for i, m := range messages {
		sm := &schema.Message{Role: schema.RoleType(m.Role), Content: m.Content}
		if i == lastUser {
			sm.Content = ""
			sm.MultiContent = []schema.ChatMessagePart{
				{Type: schema.ChatMessagePartTypeText, Text: m.Content},
				{Type: schema.ChatMessagePartTypeImageURL, ImageURL: &schema.ChatMessageImageURL{URL: imageURL}},
			}
		}
		out = append(out, sm)
	}
	return out
}

type sseDelta struct {
	Content string `json:"content"`
}

type sseChoice struct {
	Delta sseDelta `json:"delta"`
}

type sseChunk struct {
	Choices []sseChoice `json:"choices"`
}

// StreamToSSE drains sr in a goroutine and exposes it as a byte stream.
// Closing the returned reader stops the goroutine at its next write.
func StreamToSSE(sr *schema.StreamReader[*schema.Message]) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		defer sr.Close()
		for {
			msg, err := sr.Recv()
			if errors.Is(err, io.EOF) {
				_, werr := io.WriteString(pw, "data: [DONE]\n\n")
				_ = pw.CloseWithError(werr)
				return
			}
			if err != nil {
				_ = pw.CloseWithError(err)
				return
			}
			if msg == nil || msg.Content == "" {
				continue
			}
			b, err := json.Marshal(sseChunk{Choices: []sseChoice{{Delta: sseDelta{Content: msg.Content}}}})
			if err != nil {
				_ = pw.CloseWithError(err)
				return
			}
			if _, err := fmt.Fprintf(pw, "data: %s\n\n", b); err != nil {
				return
			}
		}
	}()
	return pr
}
