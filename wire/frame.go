// File: wire/frame.go
// Author: clustersched
//
// Package wire implements the on-the-wire framing used by a Channel:
// a fixed-width length prefix followed by that many payload bytes,
// contiguous and in that order. The default codec uses the sending
// host's native word size and endianness, bit-exact with the original
// size_t-prefixed C++ implementation this transport was distilled from.
// Wire64LE is offered for callers that need byte-identical framing across
// heterogeneous hosts (see the endianness open question).
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
)

// NativeWordSize is the byte width of the length prefix on this host,
// matching C's sizeof(size_t) for the platform Go was built for.
const NativeWordSize = strconv.IntSize / 8

// Codec reads and writes the length-prefix half of a frame. Implementations
// must be safe for concurrent use by distinct Channels but need not be
// reentrant for a single Channel (the Channel serializes its own I/O).
type Codec interface {
	// PrefixLen returns the fixed width of the length prefix in bytes.
	PrefixLen() int

	// PutLength encodes n into buf, which has length PrefixLen().
	PutLength(buf []byte, n int)

	// Length decodes buf, which has length PrefixLen(), into a byte count.
	Length(buf []byte) int
}

// Native is the default Codec: native word size, native endianness.
var Native Codec = nativeCodec{}

// Wire64LE is a fixed 8-byte little-endian Codec for cross-host interop.
var Wire64LE Codec = fixed64LECodec{}

type nativeCodec struct{}

func (nativeCodec) PrefixLen() int { return NativeWordSize }

func (nativeCodec) PutLength(buf []byte, n int) {
	putNativeUint(buf, uint64(n))
}

func (nativeCodec) Length(buf []byte) int {
	return int(nativeUint(buf))
}

type fixed64LECodec struct{}

func (fixed64LECodec) PrefixLen() int { return 8 }

func (fixed64LECodec) PutLength(buf []byte, n int) {
	binary.LittleEndian.PutUint64(buf, uint64(n))
}

func (fixed64LECodec) Length(buf []byte) int {
	return int(binary.LittleEndian.Uint64(buf))
}

// putNativeUint and nativeUint encode/decode a word-sized unsigned integer
// using the host's native byte order. Go's runtime is only ever built for
// little-endian targets on the platforms this module ships to in practice,
// but the switch keeps the codec correct if that ever changes.
func putNativeUint(buf []byte, v uint64) {
	switch NativeWordSize {
	case 8:
		binary.NativeEndian.PutUint64(buf, v)
	case 4:
		binary.NativeEndian.PutUint32(buf, uint32(v))
	default:
		panic(fmt.Sprintf("wire: unsupported native word size %d", NativeWordSize))
	}
}

func nativeUint(buf []byte) uint64 {
	switch NativeWordSize {
	case 8:
		return binary.NativeEndian.Uint64(buf)
	case 4:
		return uint64(binary.NativeEndian.Uint32(buf))
	default:
		panic(fmt.Sprintf("wire: unsupported native word size %d", NativeWordSize))
	}
}

// ErrFraming indicates a length prefix decoded to zero or an absurd value.
var ErrFraming = fmt.Errorf("wire: malformed length prefix")

// MaxPayload bounds the length prefix against resource exhaustion. A real
// frame larger than this is almost certainly a desynchronized stream.
const MaxPayload = 256 << 20 // 256 MiB

// ReadFrame reads exactly one frame from r using codec c: one length
// prefix, fully, then exactly that many payload bytes. A short read during
// either phase, or an EOF mid-frame, is returned as an error. A decoded
// length of zero or greater than MaxPayload is ErrFraming.
func ReadFrame(r io.Reader, c Codec) ([]byte, error) {
	n, err := ReadPrefix(r, c)
	if err != nil {
		return nil, err
	}
	return ReadPayload(r, n)
}

// ReadPrefix reads and decodes exactly one length prefix, the first stage
// of the receive state machine. It is exported separately from ReadFrame
// so a Channel's asynchronous receive can run the prefix and payload reads
// as separate stages, finishing the receive with its own error handling
// after each.
func ReadPrefix(r io.Reader, c Codec) (int, error) {
	prefix := make([]byte, c.PrefixLen())
	if _, err := io.ReadFull(r, prefix); err != nil {
		return 0, err
	}
	n := c.Length(prefix)
	if n <= 0 || n > MaxPayload {
		return 0, ErrFraming
	}
	return n, nil
}

// ReadPayload reads exactly n payload bytes, the second stage of the
// receive state machine.
func ReadPayload(r io.Reader, n int) ([]byte, error) {
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// ErrShortWrite indicates a write returned fewer bytes than demanded
// without an underlying error.
var ErrShortWrite = fmt.Errorf("wire: short write")

// WriteFrame writes one frame to w using codec c: the length prefix for
// len(payload), then payload itself, as two writes issued back to back.
// Either write returning fewer bytes than requested is an error; there is
// no retry.
func WriteFrame(w io.Writer, c Codec, payload []byte) error {
	prefix := make([]byte, c.PrefixLen())
	c.PutLength(prefix, len(payload))
	if n, err := w.Write(prefix); err != nil {
		return err
	} else if n != len(prefix) {
		return ErrShortWrite
	}
	if n, err := w.Write(payload); err != nil {
		return err
	} else if n != len(payload) {
		return ErrShortWrite
	}
	return nil
}
