package vfile

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestHandle_zero(t *testing.T) {
	var h Handle
	if !h.IsZero() {
		t.Error("zero Handle should report IsZero")
	}
	if _, err := h.Reader().Read(make([]byte, 4)); !errors.Is(err, ErrNoReadFunc) {
		t.Errorf("expected ErrNoReadFunc, got %v", err)
	}
	if _, err := h.Writer().Write([]byte("x")); !errors.Is(err, ErrNoWriteFunc) {
		t.Errorf("expected ErrNoWriteFunc, got %v", err)
	}
}

func TestHandle_Reader_eof_on_zero_read(t *testing.T) {
	src := []byte("hello world")
	pos := 0
	params := &CallbackParams{
		Read: func(name string, p []byte) (int, error) {
			n := copy(p, src[pos:])
			pos += n
			return n, nil
		},
	}
	h := MakeHandle(params, "input")

	got, err := io.ReadAll(h.Reader())
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, src) {
		t.Errorf("got %q want %q", got, src)
	}
}

func TestHandle_Writer_passes_name(t *testing.T) {
	var names []string
	var buf bytes.Buffer
	params := &CallbackParams{
		Write: func(name string, p []byte) (int, error) {
			names = append(names, name)
			return buf.Write(p)
		},
	}
	h := MakeHandle(params, "$Number$.m4s")

	if _, err := h.WithName("1.m4s").Writer().Write([]byte("ab")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := h.WithName("2.m4s").Writer().Write([]byte("cd")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.String() != "abcd" {
		t.Errorf("got %q", buf.String())
	}
	if len(names) != 2 || names[0] != "1.m4s" || names[1] != "2.m4s" {
		t.Errorf("unexpected names %v", names)
	}
	if h.Name() != "$Number$.m4s" {
		t.Errorf("WithName must not change the original handle, got %q", h.Name())
	}
}

func TestHandle_Writer_short_write(t *testing.T) {
	params := &CallbackParams{
		Write: func(name string, p []byte) (int, error) { return len(p) - 1, nil },
	}
	_, err := MakeHandle(params, "out").Writer().Write([]byte("abc"))
	if !errors.Is(err, io.ErrShortWrite) {
		t.Errorf("expected io.ErrShortWrite, got %v", err)
	}
}
