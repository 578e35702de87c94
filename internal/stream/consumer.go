package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

// View is the UI focus a stream asks the client to switch to.
type View string

const (
	ViewCode    View = "code"
	ViewPreview View = "preview"
)

const (
	codeFenceMarker = "```"
	runAppMarker    = "Run the app"
)

// Consumer drains one completion stream, accumulating its text and firing
// view signals the first time their markers show up.
type Consumer struct {
	OnFragment func(frag string)
	OnView     func(v View)

	mu        sync.Mutex
	text      strings.Builder
	streaming bool
	fired     map[View]bool
}

// Streaming reports whether Consume is currently running.
func (c *Consumer) Streaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

// Text returns everything accumulated so far.
func (c *Consumer) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text.String()
}

// Consume reads src to the end and returns the full reply text. src is
// always closed on return. When ctx is cancelled the body is closed to
// unblock the read and no callback fires afterwards; the returned error is
// ctx.Err().
func (c *Consumer) Consume(ctx context.Context, src io.ReadCloser) (string, error) {
	c.mu.Lock()
	if c.streaming {
		c.mu.Unlock()
		return "", errors.New("stream: consumer already running")
	}
	c.streaming = true
	c.text.Reset()
	c.fired = make(map[View]bool, 2)
	c.mu.Unlock()

	r := NewReader(src)
	stop := context.AfterFunc(ctx, func() { _ = r.Close() })
	defer func() {
		stop()
		_ = r.Close()
		c.mu.Lock()
		c.streaming = false
		c.mu.Unlock()
	}()

	for {
		if err := ctx.Err(); err != nil {
			return c.Text(), err
		}
		frag, err := r.Next()
		if ctx.Err() != nil {
			return c.Text(), ctx.Err()
		}
		if errors.Is(err, io.EOF) {
			return c.Text(), nil
		}
		if err != nil {
			return c.Text(), err
		}
		c.append(frag)
	}
}

func (c *Consumer) append(frag string) {
	c.mu.Lock()
	prev := c.text.Len()
	c.text.WriteString(frag)
	full := c.text.String()
	var views []View
	if !c.fired[ViewCode] && markerSince(full, prev, codeFenceMarker) {
		c.fired[ViewCode] = true
		views = append(views, ViewCode)
	}
	if !c.fired[ViewPreview] && markerSince(full, prev, runAppMarker) {
		c.fired[ViewPreview] = true
		views = append(views, ViewPreview)
	}
	c.mu.Unlock()

	if c.OnFragment != nil {
		c.OnFragment(frag)
	}
	if c.OnView != nil {
		for _, v := range views {
			c.OnView(v)
		}
	}
}

// markerSince looks for marker in the part of s that could include bytes
// appended after offset prev.
func markerSince(s string, prev int, marker string) bool {
	start := prev - len(marker) + 1
	if start < 0 {
		start = 0
	}
	return strings.Contains(s[start:], marker)
}
