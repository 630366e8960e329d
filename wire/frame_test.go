package wire_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/clustersched/messaging/wire"
)

func TestWriteReadFrameNative(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello, scheduler")
	if err := wire.WriteFrame(&buf, wire.Native, payload); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != wire.NativeWordSize+len(payload) {
		t.Fatalf("unexpected wire length: got %d want %d", buf.Len(), wire.NativeWordSize+len(payload))
	}
	got, err := wire.ReadFrame(&buf, wire.Native)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch: got %q want %q", got, payload)
	}
}

func TestWriteReadFrameWire64LE(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("interop frame")
	if err := wire.WriteFrame(&buf, wire.Wire64LE, payload); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 8+len(payload) {
		t.Fatalf("unexpected wire length: got %d want %d", buf.Len(), 8+len(payload))
	}
	got, err := wire.ReadFrame(&buf, wire.Wire64LE)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch: got %q want %q", got, payload)
	}
}

func TestReadFrameZeroLengthIsFraming(t *testing.T) {
	var buf bytes.Buffer
	if err := wire.WriteFrame(&buf, wire.Wire64LE, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := wire.ReadFrame(&buf, wire.Wire64LE); err != wire.ErrFraming {
		t.Errorf("expected ErrFraming for zero-length frame, got %v", err)
	}
}

func TestReadFrameEOFMidFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := wire.WriteFrame(&buf, wire.Wire64LE, []byte("truncated")); err != nil {
		t.Fatal(err)
	}
	short := bytes.NewReader(buf.Bytes()[:10])
	if _, err := wire.ReadFrame(short, wire.Wire64LE); err != io.ErrUnexpectedEOF {
		t.Errorf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestReadFrameCleanEOFBeforePrefix(t *testing.T) {
	var buf bytes.Buffer
	if _, err := wire.ReadFrame(&buf, wire.Native); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}
