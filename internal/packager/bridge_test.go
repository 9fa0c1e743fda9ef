package packager

import (
	"bytes"
	"testing"
)

func TestInputSource_read_exhaustion(t *testing.T) {
	in := NewFullSegment([]byte("0123456789"), []byte("abcdefghijklmnopqrstuvwxyz"))
	src := newInputSource(in)

	var got []byte
	p := make([]byte, 7)
	for {
		n, err := src.read("input", p)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if n == 0 {
			break
		}
		if n > len(p) {
			t.Fatalf("read returned %d > requested %d", n, len(p))
		}
		got = append(got, p[:n]...)
	}

	if !bytes.Equal(got, in.Buffer()) {
		t.Errorf("read %q, want %q", got, in.Buffer())
	}

	for i := 0; i < 3; i++ {
		if n, _ := src.read("input", p); n != 0 {
			t.Errorf("read after exhaustion returned %d", n)
		}
	}
	if src.pos != in.Size() {
		t.Errorf("cursor moved past end: %d", src.pos)
	}
}

func TestInputSource_fresh_per_bridge(t *testing.T) {
	in := NewFullSegment([]byte("init"), []byte("data"))
	p := make([]byte, 64)

	first, _ := newBridge(in).in.read("input", p)
	second, _ := newBridge(in).in.read("input", p)
	if first != 8 || second != 8 {
		t.Errorf("each bridge should read from offset 0: got %d and %d", first, second)
	}
}

func TestOutputSink_init_first_write_wins(t *testing.T) {
	var sink outputSink

	if n, _ := sink.writeInit("init.mp4", nil); n != 0 {
		t.Errorf("empty write should report 0, got %d", n)
	}
	if sink.initCaptured {
		t.Fatal("empty write must not capture")
	}

	first := []byte("ftyp-moov")
	if n, _ := sink.writeInit("init.mp4", first); n != len(first) {
		t.Errorf("write should report full length, got %d", n)
	}
	first[0] = 'X'

	if n, _ := sink.writeInit("init.mp4", []byte("a-much-longer-duplicate-init")); n != 28 {
		t.Errorf("ignored write should still report full length, got %d", n)
	}
	_, _ = sink.writeInit("init.mp4", []byte("x"))

	if string(sink.init) != "ftyp-moov" {
		t.Errorf("captured init: got %q want %q", sink.init, "ftyp-moov")
	}
	if len(sink.data) != 0 {
		t.Error("init writes must not reach the data region")
	}
}

func TestOutputSink_data_ordered_accumulation(t *testing.T) {
	var sink outputSink
	chunks := [][]byte{[]byte("C1"), []byte("-C2-"), {}, []byte("C3")}
	for _, c := range chunks {
		if n, err := sink.writeData("1.m4s", c); err != nil || n != len(c) {
			t.Fatalf("writeData: n=%d err=%v", n, err)
		}
	}

	if string(sink.data) != "C1-C2-C3" {
		t.Errorf("data: got %q", sink.data)
	}
	if sink.writes != len(chunks) {
		t.Errorf("writes: got %d want %d", sink.writes, len(chunks))
	}

	out := sink.fullSegment()
	assertBoundary(t, out)
	if out.InitSize() != 0 || string(out.Segment()) != "C1-C2-C3" {
		t.Errorf("fullSegment: init=%d data=%q", out.InitSize(), out.Segment())
	}
}
