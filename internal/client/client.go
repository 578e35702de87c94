// Package client talks to the appgen HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		// no overall timeout: completions stream for minutes
		HTTP: &http.Client{Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: 5 * time.Minute,
		}},
	}
}

// APIError is a non-zero envelope code from the server.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("appgen api: %d %s (code %d)", e.Status, e.Message, e.Code)
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.HTTP.Do(req)
}

func decode(resp *http.Response, out any) error {
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return fmt.Errorf("appgen api: %s: %w", resp.Status, err)
	}
	if resp.StatusCode/100 != 2 || env.Code != 0 {
		return &APIError{Status: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

type CreateChatRequest struct {
	Prompt        string `json:"prompt"`
	Model         string `json:"model"`
	Quality       string `json:"quality,omitempty"`
	ScreenshotURL string `json:"screenshot_url,omitempty"`
}

type CreateChatResponse struct {
	ChatID        string `json:"chat_id"`
	LastMessageID string `json:"last_message_id"`
}

func (c *Client) CreateChat(ctx context.Context, req CreateChatRequest) (*CreateChatResponse, error) {
	resp, err := c.post(ctx, "/chats", req)
	if err != nil {
		return nil, err
	}
	var out CreateChatResponse
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StreamCompletion opens the raw completion stream for messageID. The caller
// closes the returned body; once it has been read to the end, AssistantID
// reports the id of the stored reply.
func (c *Client) StreamCompletion(ctx context.Context, messageID, model string) (*Stream, error) {
	resp, err := c.post(ctx, "/messages/"+messageID+"/completions/stream", map[string]string{"model": model})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decode(resp, nil)
	}
	return &Stream{resp: resp}, nil
}

type Stream struct {
	resp *http.Response
}

func (s *Stream) Read(p []byte) (int, error) { return s.resp.Body.Read(p) }

// Close drains what is left of the body, bounded, so the trailer arrives even
// when the reader stopped at [DONE].
func (s *Stream) Close() error {
	_, _ = io.Copy(io.Discard, io.LimitReader(s.resp.Body, 64<<10))
	return s.resp.Body.Close()
}

// AssistantID is only set after the body has hit EOF.
func (s *Stream) AssistantID() string {
	if id := s.resp.Trailer.Get("X-Assistant-Message-Id"); id != "" {
		return id
	}
	return s.resp.Header.Get("X-Assistant-Message-Id")
}
