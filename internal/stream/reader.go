package stream

import (
	"errors"
	"io"
	"sync"
)

const readChunk = 4096

// Reader yields fragments from an upstream body one at a time. It is lazy,
// finite and single use: once Next returns io.EOF or an error it keeps
// returning it.
type Reader struct {
	src     io.ReadCloser
	dec     *Decoder
	buf     []byte
	pending []string
	err     error

	closeOnce sync.Once
	closeErr  error
}

func NewReader(src io.ReadCloser) *Reader {
	return &Reader{
		src: src,
		dec: NewDecoder(),
		buf: make([]byte, readChunk),
	}
}

// Next returns the next fragment. A [DONE] payload or the end of the body
// both end the sequence with io.EOF.
func (r *Reader) Next() (string, error) {
	for {
		if len(r.pending) > 0 {
			frag := r.pending[0]
			r.pending = r.pending[1:]
			return frag, nil
		}
		if r.err != nil {
			return "", r.err
		}
		if r.dec.Done() {
			r.err = io.EOF
			_ = r.Close()
			continue
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			r.pending = append(r.pending, r.dec.Feed(r.buf[:n])...)
		}
		switch {
		case errors.Is(err, io.EOF):
			r.pending = append(r.pending, r.dec.Flush()...)
			r.err = io.EOF
			_ = r.Close()
		case err != nil:
			r.err = err
			_ = r.Close()
		}
	}
}

// Close releases the upstream body. Safe to call more than once.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.src.Close()
	})
	return r.closeErr
}
