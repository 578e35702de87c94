package ai

import (
	"context"
	"io"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role/content pair sent to a model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Provider interface {
	Chat(ctx context.Context, messages []Message, opts ...CallOption) (string, error)
}

// StreamProvider is an optional interface. Providers that implement it hand
// back the model's streamed reply as raw SSE-framed bytes; the caller owns
// closing the reader.
type StreamProvider interface {
	OpenStream(ctx context.Context, messages []Message, opts ...CallOption) (io.ReadCloser, error)
}

// CallOptions tune a single model call.
type CallOptions struct {
	Temperature *float32
	MaxTokens   int
	// ImageURL attaches an image reference to the last user message.
	ImageURL string
}

type CallOption func(*CallOptions)

func WithTemperature(t float32) CallOption {
	return func(o *CallOptions) { o.Temperature = &t }
}

func WithMaxTokens(n int) CallOption {
	return func(o *CallOptions) { o.MaxTokens = n }
}

func WithImageURL(url string) CallOption {
	return func(o *CallOptions) { o.ImageURL = url }
}

func applyOptions(opts []CallOption) CallOptions {
	var o CallOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
