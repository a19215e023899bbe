// Package packet implements the game wire codec: an append-only byte buffer with
// a read cursor, typed little-endian field encoding, and 4-byte length-prefix
// framing for both the stream and the datagram transport.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrOutOfRange is wrapped by every DecodeError returned when a read would run
// past the end of the buffer.
var ErrOutOfRange = errors.New("read past end of packet")

// DecodeError reports a failed read of a typed value.
type DecodeError struct {
	Type string
	Err  error
}

// Error implements error.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("could not read value of type '%s': %v", e.Type, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Vector3 is a three component float32 vector.
type Vector3 struct {
	X, Y, Z float32
}

// Quaternion is a rotation stored as x, y, z, w.
type Quaternion struct {
	X, Y, Z, W float32
}

// IdentityQuaternion is the zero rotation.
var IdentityQuaternion = Quaternion{W: 1}

// Packet is a growable byte buffer with an independent read cursor. Writes
// always append; reads advance the cursor, which only moves backwards through
// UnreadLastInt. A Packet is not safe for concurrent use.
type Packet struct {
	buf     []byte
	readPos int
}

// New creates an empty packet.
//
// Returns:
//   - A packet with no bytes and the cursor at 0
func New() *Packet {
	return &Packet{}
}

// NewWithType creates a packet whose first field is the given packet type id.
//
// Parameters:
//   - typeID: The packet type identifier written as an int32
//
// Returns:
//   - A packet ready for payload fields
func NewWithType(typeID int32) *Packet {
	p := &Packet{buf: make([]byte, 0, 64)}
	p.WriteInt32(typeID)
	return p
}

// FromBytes creates a packet for reading from a copy of data. The caller may
// reuse data after the call.
//
// Parameters:
//   - data: The raw bytes to read from
//
// Returns:
//   - A packet containing a snapshot of data with the cursor at 0
func FromBytes(data []byte) *Packet {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Packet{buf: buf}
}

// Len returns the total number of bytes held by the packet.
func (p *Packet) Len() int {
	return len(p.buf)
}

// UnreadLen returns the number of bytes between the cursor and the end.
func (p *Packet) UnreadLen() int {
	return len(p.buf) - p.readPos
}

// Bytes returns a snapshot of the whole buffer suitable for transmission.
//
// Returns:
//   - A copy of the packet bytes; later writes do not affect it
func (p *Packet) Bytes() []byte {
	out := make([]byte, len(p.buf))
	copy(out, p.buf)
	return out
}

// Remaining returns a copy of the unread bytes without moving the cursor.
func (p *Packet) Remaining() []byte {
	out := make([]byte, p.UnreadLen())
	copy(out, p.buf[p.readPos:])
	return out
}

// Reset discards all bytes and rewinds the cursor.
func (p *Packet) Reset() {
	p.buf = p.buf[:0]
	p.readPos = 0
}

// UnreadLastInt moves the cursor back by 4 bytes. It is used when a length
// prefix was read but its body has not fully arrived yet.
func (p *Packet) UnreadLastInt() {
	p.readPos -= 4
	if p.readPos < 0 {
		p.readPos = 0
	}
}

// compact drops the bytes before the cursor.
func (p *Packet) compact() {
	if p.readPos == 0 {
		return
	}

	n := copy(p.buf, p.buf[p.readPos:])
	p.buf = p.buf[:n]
	p.readPos = 0
}

// InsertLength prepends the current buffer length as an int32. It must be
// called exactly once per outgoing packet, after the payload is complete.
func (p *Packet) InsertLength() {
	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(p.buf)))
	p.buf = append(prefix[:], p.buf...)
}

// WriteBytes appends raw bytes.
func (p *Packet) WriteBytes(v []byte) {
	p.buf = append(p.buf, v...)
}

// WriteUint8 appends a single byte.
func (p *Packet) WriteUint8(v byte) {
	p.buf = append(p.buf, v)
}

// WriteInt16 appends v as 2 little-endian bytes.
func (p *Packet) WriteInt16(v int16) {
	p.buf = binary.LittleEndian.AppendUint16(p.buf, uint16(v))
}

// WriteInt32 appends v as 4 little-endian bytes.
func (p *Packet) WriteInt32(v int32) {
	p.buf = binary.LittleEndian.AppendUint32(p.buf, uint32(v))
}

// WriteInt64 appends v as 8 little-endian bytes.
func (p *Packet) WriteInt64(v int64) {
	p.buf = binary.LittleEndian.AppendUint64(p.buf, uint64(v))
}

// WriteFloat32 appends the IEEE 754 bits of v as 4 little-endian bytes.
func (p *Packet) WriteFloat32(v float32) {
	p.buf = binary.LittleEndian.AppendUint32(p.buf, math.Float32bits(v))
}

// WriteBool appends v as a single byte (1 or 0).
func (p *Packet) WriteBool(v bool) {
	if v {
		p.buf = append(p.buf, 1)
		return
	}

	p.buf = append(p.buf, 0)
}

// WriteString appends an int32 byte count followed by the ASCII bytes of v.
// Characters outside the ASCII range are written as '?'.
//
// Parameters:
//   - v: The string to encode
func (p *Packet) WriteString(v string) {
	encoded := make([]byte, 0, len(v))
	for _, r := range v {
		if r > 0x7F {
			r = '?'
		}
		encoded = append(encoded, byte(r))
	}

	p.WriteInt32(int32(len(encoded)))
	p.buf = append(p.buf, encoded...)
}

// WriteVector3 appends x, y and z as float32 values.
func (p *Packet) WriteVector3(v Vector3) {
	p.WriteFloat32(v.X)
	p.WriteFloat32(v.Y)
	p.WriteFloat32(v.Z)
}

// WriteQuaternion appends x, y, z and w as float32 values.
func (p *Packet) WriteQuaternion(v Quaternion) {
	p.WriteFloat32(v.X)
	p.WriteFloat32(v.Y)
	p.WriteFloat32(v.Z)
	p.WriteFloat32(v.W)
}
