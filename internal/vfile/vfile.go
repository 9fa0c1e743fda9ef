// Package vfile binds in-memory read/write callbacks to opaque handles that
// a muxing engine opens in place of real files.
package vfile

import (
	"errors"
	"io"
)

var (
	// ErrNoReadFunc is returned when a handle without a read callback is read.
	ErrNoReadFunc = errors.New("vfile: handle has no read callback")

	// ErrNoWriteFunc is returned when a handle without a write callback is written.
	ErrNoWriteFunc = errors.New("vfile: handle has no write callback")
)

// ReadFunc copies up to len(p) bytes into p and returns the number copied.
// Returning 0 with a nil error signals end of stream.
type ReadFunc func(name string, p []byte) (int, error)

// WriteFunc consumes p and returns the number of bytes accepted.
type WriteFunc func(name string, p []byte) (int, error)

// CallbackParams groups the callbacks a handle dispatches to.
type CallbackParams struct {
	Read  ReadFunc
	Write WriteFunc
}

// Handle is an opaque token standing in for a file. It carries its own
// callbacks, so two handles never collide even when their names match.
type Handle struct {
	params *CallbackParams
	name   string
}

// MakeHandle binds params under name.
func MakeHandle(params *CallbackParams, name string) Handle {
	return Handle{params: params, name: name}
}

// Name returns the label the handle was created with.
func (h Handle) Name() string { return h.name }

// IsZero reports whether h is unbound.
func (h Handle) IsZero() bool { return h.params == nil }

// WithName returns a handle sharing h's callbacks under a different name.
func (h Handle) WithName(name string) Handle {
	return Handle{params: h.params, name: name}
}

// Reader returns an io.Reader over the handle's read callback.
func (h Handle) Reader() io.Reader {
	return &reader{h: h}
}

// Writer returns an io.Writer over the handle's write callback.
func (h Handle) Writer() io.Writer {
	return &writer{h: h}
}

type reader struct {
	h Handle
}

func (r *reader) Read(p []byte) (int, error) {
	if r.h.params == nil || r.h.params.Read == nil {
		return 0, ErrNoReadFunc
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := r.h.params.Read(r.h.name, p)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

type writer struct {
	h Handle
}

func (w *writer) Write(p []byte) (int, error) {
	if w.h.params == nil || w.h.params.Write == nil {
		return 0, ErrNoWriteFunc
	}
	n, err := w.h.params.Write(w.h.name, p)
	if err != nil {
		return n, err
	}
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}
