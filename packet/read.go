package packet

import (
	"encoding/binary"
	"fmt"
	"math"
)

// span returns the next n bytes starting at the cursor and advances the
// cursor when consume is true.
func (p *Packet) span(n int, typ string, consume bool) ([]byte, error) {
	if n < 0 || p.readPos+n > len(p.buf) {
		return nil, &DecodeError{Type: typ, Err: ErrOutOfRange}
	}

	b := p.buf[p.readPos : p.readPos+n]
	if consume {
		p.readPos += n
	}

	return b, nil
}

// ReadBytes reads n raw bytes and advances the cursor.
//
// Parameters:
//   - n: The number of bytes to read
//
// Returns:
//   - A copy of the bytes read
//   - A DecodeError if fewer than n bytes remain
func (p *Packet) ReadBytes(n int) ([]byte, error) {
	b, err := p.span(n, "byte[]", true)
	if err != nil {
		return nil, err
	}

	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadUint8 reads one byte and advances the cursor.
func (p *Packet) ReadUint8() (byte, error) { return p.decodeUint8(true) }

// PeekUint8 reads one byte without advancing the cursor.
func (p *Packet) PeekUint8() (byte, error) { return p.decodeUint8(false) }

func (p *Packet) decodeUint8(consume bool) (byte, error) {
	b, err := p.span(1, "byte", consume)
	if err != nil {
		return 0, err
	}

	return b[0], nil
}

// ReadInt16 reads a little-endian int16 and advances the cursor.
func (p *Packet) ReadInt16() (int16, error) { return p.decodeInt16(true) }

// PeekInt16 reads a little-endian int16 without advancing the cursor.
func (p *Packet) PeekInt16() (int16, error) { return p.decodeInt16(false) }

func (p *Packet) decodeInt16(consume bool) (int16, error) {
	b, err := p.span(2, "short", consume)
	if err != nil {
		return 0, err
	}

	return int16(binary.LittleEndian.Uint16(b)), nil
}

// ReadInt32 reads a little-endian int32 and advances the cursor.
func (p *Packet) ReadInt32() (int32, error) { return p.decodeInt32(true) }

// PeekInt32 reads a little-endian int32 without advancing the cursor.
func (p *Packet) PeekInt32() (int32, error) { return p.decodeInt32(false) }

func (p *Packet) decodeInt32(consume bool) (int32, error) {
	b, err := p.span(4, "int", consume)
	if err != nil {
		return 0, err
	}

	return int32(binary.LittleEndian.Uint32(b)), nil
}

// ReadInt64 reads a little-endian int64 and advances the cursor.
func (p *Packet) ReadInt64() (int64, error) { return p.decodeInt64(true) }

// PeekInt64 reads a little-endian int64 without advancing the cursor.
func (p *Packet) PeekInt64() (int64, error) { return p.decodeInt64(false) }

func (p *Packet) decodeInt64(consume bool) (int64, error) {
	b, err := p.span(8, "long", consume)
	if err != nil {
		return 0, err
	}

	return int64(binary.LittleEndian.Uint64(b)), nil
}

// ReadFloat32 reads a little-endian float32 and advances the cursor.
func (p *Packet) ReadFloat32() (float32, error) { return p.decodeFloat32(true) }

// PeekFloat32 reads a little-endian float32 without advancing the cursor.
func (p *Packet) PeekFloat32() (float32, error) { return p.decodeFloat32(false) }

func (p *Packet) decodeFloat32(consume bool) (float32, error) {
	b, err := p.span(4, "float", consume)
	if err != nil {
		return 0, err
	}

	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

// ReadBool reads a one byte boolean and advances the cursor. Any non-zero
// byte is true.
func (p *Packet) ReadBool() (bool, error) { return p.decodeBool(true) }

// PeekBool reads a one byte boolean without advancing the cursor.
func (p *Packet) PeekBool() (bool, error) { return p.decodeBool(false) }

func (p *Packet) decodeBool(consume bool) (bool, error) {
	b, err := p.span(1, "bool", consume)
	if err != nil {
		return false, err
	}

	return b[0] != 0, nil
}

// ReadString reads an int32 byte count followed by that many ASCII bytes and
// advances the cursor past both. An empty string consumes exactly the 4
// count bytes.
//
// Returns:
//   - The decoded string
//   - A DecodeError if the count is negative or the bytes are not all present
func (p *Packet) ReadString() (string, error) { return p.decodeString(true) }

// PeekString decodes the string at the cursor without advancing it.
func (p *Packet) PeekString() (string, error) { return p.decodeString(false) }

func (p *Packet) decodeString(consume bool) (string, error) {
	head, err := p.span(4, "string", false)
	if err != nil {
		return "", err
	}

	n := int(int32(binary.LittleEndian.Uint32(head)))
	if n < 0 {
		return "", &DecodeError{Type: "string", Err: fmt.Errorf("negative length %d", n)}
	}

	if p.readPos+4+n > len(p.buf) {
		return "", &DecodeError{Type: "string", Err: ErrOutOfRange}
	}

	value := string(p.buf[p.readPos+4 : p.readPos+4+n])
	if consume {
		p.readPos += 4 + n
	}

	return value, nil
}

// ReadVector3 reads three float32 values and advances the cursor.
func (p *Packet) ReadVector3() (Vector3, error) { return p.decodeVector3(true) }

// PeekVector3 reads three float32 values without advancing the cursor.
func (p *Packet) PeekVector3() (Vector3, error) { return p.decodeVector3(false) }

func (p *Packet) decodeVector3(consume bool) (Vector3, error) {
	b, err := p.span(12, "Vector3", consume)
	if err != nil {
		return Vector3{}, err
	}

	return Vector3{
		X: math.Float32frombits(binary.LittleEndian.Uint32(b[0:4])),
		Y: math.Float32frombits(binary.LittleEndian.Uint32(b[4:8])),
		Z: math.Float32frombits(binary.LittleEndian.Uint32(b[8:12])),
	}, nil
}

// ReadQuaternion reads four float32 values (x, y, z, w) and advances the cursor.
func (p *Packet) ReadQuaternion() (Quaternion, error) { return p.decodeQuaternion(true) }

// PeekQuaternion reads four float32 values without advancing the cursor.
func (p *Packet) PeekQuaternion() (Quaternion, error) { return p.decodeQuaternion(false) }

func (p *Packet) decodeQuaternion(consume bool) (Quaternion, error) {
	b, err := p.span(16, "Quaternion", consume)
	if err != nil {
		return Quaternion{}, err
	}

	return Quaternion{
		X: math.Float32frombits(binary.LittleEndian.Uint32(b[0:4])),
		Y: math.Float32frombits(binary.LittleEndian.Uint32(b[4:8])),
		Z: math.Float32frombits(binary.LittleEndian.Uint32(b[8:12])),
		W: math.Float32frombits(binary.LittleEndian.Uint32(b[12:16])),
	}, nil
}
