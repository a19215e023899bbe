package packet

import (
	"errors"
	"fmt"
)

// ErrCorruptFrame is returned by Framer.Feed when a declared frame length is
// not positive or exceeds the configured maximum.
var ErrCorruptFrame = errors.New("corrupt frame length")

// DefaultMaxFrameSize bounds a single frame when no limit is configured.
const DefaultMaxFrameSize = 64 * 1024

// Framer accumulates stream bytes and splits them into length-prefixed frames.
// A chunk may carry no frame, part of a frame, or several frames; incomplete
// data stays buffered until the next Feed. Framer is not safe for concurrent
// use; each session read loop owns one.
type Framer struct {
	buf          *Packet
	maxFrameSize int
}

// NewFramer creates a Framer.
//
// Parameters:
//   - maxFrameSize: Largest accepted frame body; values <= 0 select DefaultMaxFrameSize
//
// Returns:
//   - An empty Framer
func NewFramer(maxFrameSize int) *Framer {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}

	return &Framer{buf: New(), maxFrameSize: maxFrameSize}
}

// Feed appends chunk to the accumulation buffer and returns every frame body
// that is now complete, in arrival order. Each body starts with the packet
// type id.
//
// Parameters:
//   - chunk: Bytes just read from the stream
//
// Returns:
//   - The complete frame bodies, possibly none
//   - ErrCorruptFrame if a declared length is invalid; the buffer is cleared
//     and no frame from it is returned
func (f *Framer) Feed(chunk []byte) ([][]byte, error) {
	f.buf.WriteBytes(chunk)

	var frames [][]byte
	for f.buf.UnreadLen() >= 4 {
		length, err := f.buf.ReadInt32()
		if err != nil {
			return nil, err
		}

		if length <= 0 || int(length) > f.maxFrameSize {
			f.buf.Reset()
			return nil, fmt.Errorf("%w: %d", ErrCorruptFrame, length)
		}

		if int(length) > f.buf.UnreadLen() {
			f.buf.UnreadLastInt()
			break
		}

		body, err := f.buf.ReadBytes(int(length))
		if err != nil {
			return nil, err
		}

		frames = append(frames, body)
	}

	if f.buf.UnreadLen() == 0 {
		f.buf.Reset()
	} else {
		f.buf.compact()
	}

	return frames, nil
}

// Buffered returns the number of bytes waiting for the rest of their frame.
func (f *Framer) Buffered() int {
	return f.buf.UnreadLen()
}

// Reset drops any buffered bytes.
func (f *Framer) Reset() {
	f.buf.Reset()
}

// Frame wraps a single complete frame body read from data, as used by the
// datagram transport where one datagram carries one frame after the session
// id.
//
// Parameters:
//   - p: A packet positioned at the length prefix
//
// Returns:
//   - The frame body (type id + payload)
//   - A DecodeError or ErrCorruptFrame if the length is missing or invalid
func Frame(p *Packet) ([]byte, error) {
	length, err := p.ReadInt32()
	if err != nil {
		return nil, err
	}

	if length <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrCorruptFrame, length)
	}

	return p.ReadBytes(int(length))
}
