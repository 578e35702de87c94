// Package stream decodes newline-delimited, optionally SSE-framed chat
// completion streams into text fragments.
package stream

import (
	"bytes"
	"regexp"
	"strconv"

	"github.com/tidwall/gjson"
)

const doneToken = "[DONE]"

// MaxLineBytes bounds a single buffered line. Longer lines are dropped up to
// their terminating newline and decoding carries on.
const MaxLineBytes = 1 << 20

// content paths tried in order: OpenAI-style delta, full message, bare field.
var contentPaths = []string{
	"choices.0.delta.content",
	"choices.0.message.content",
	"content",
}

var contentFallback = regexp.MustCompile(`"content":\s*"((?:[^"\\]|\\.)*)"`)

// Decoder is an incremental line decoder. It buffers partial lines between
// Feed calls, so splitting the input at any byte offset yields the same
// fragments as feeding it whole.
type Decoder struct {
	buf  []byte
	done bool
	// discarding is set while skipping the rest of an oversized line.
	discarding bool
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Done reports whether a [DONE] payload has been seen.
func (d *Decoder) Done() bool { return d.done }

// Feed consumes p and returns the fragments of every line it completes.
// Nothing is emitted after [DONE].
func (d *Decoder) Feed(p []byte) []string {
	if d.done {
		return nil
	}
	d.buf = append(d.buf, p...)

	var out []string
	for !d.done {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		if d.discarding {
			d.discarding = false
		} else if frag, ok := d.line(d.buf[:i]); ok {
			out = append(out, frag)
		}
		d.buf = d.buf[i+1:]
	}
	switch {
	case d.done:
		d.buf = nil
	case len(d.buf) > MaxLineBytes:
		d.buf = nil
		d.discarding = true
	}
	return out
}

// Flush decodes a trailing line that was never newline terminated.
func (d *Decoder) Flush() []string {
	if d.discarding {
		d.discarding = false
		d.buf = nil
		return nil
	}
	if d.done || len(d.buf) == 0 {
		return nil
	}
	rest := d.buf
	d.buf = nil
	if frag, ok := d.line(rest); ok {
		return []string{frag}
	}
	return nil
}

func (d *Decoder) line(raw []byte) (string, bool) {
	line := bytes.TrimSpace(raw)
	if len(line) == 0 || line[0] == ':' {
		return "", false
	}

	payload := line
	if rest, ok := bytes.CutPrefix(line, []byte("data:")); ok {
		payload = bytes.TrimSpace(rest)
	} else if isSSEField(line) {
		return "", false
	}

	if string(payload) == doneToken {
		d.done = true
		return "", false
	}

	frag, ok := extractContent(payload)
	if !ok || frag == "" {
		return "", false
	}
	return frag, true
}

func isSSEField(line []byte) bool {
	for _, f := range []string{"event:", "id:", "retry:"} {
		if bytes.HasPrefix(line, []byte(f)) {
			return true
		}
	}
	return false
}

func extractContent(payload []byte) (string, bool) {
	if gjson.ValidBytes(payload) {
		for _, p := range contentPaths {
			if r := gjson.GetBytes(payload, p); r.Type == gjson.String {
				return r.String(), true
			}
		}
		return "", false
	}

	// malformed line: best effort
	m := contentFallback.FindSubmatch(payload)
	if m == nil {
		return "", false
	}
	s, err := strconv.Unquote(`"` + string(m[1]) + `"`)
	if err != nil {
		return string(m[1]), true
	}
	return s, true
}
