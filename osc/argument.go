package osc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Argument is a single typed OSC value.
type Argument interface {
	// TypeTag returns the single type tag character for the argument.
	TypeTag() byte
	// Append appends the wire encoding of the argument to b.
	Append(b []byte) []byte
	// Consume fills in the argument from the front of b and returns
	// the remainder.
	Consume(b []byte) ([]byte, error)
}

// newArgument returns a fresh argument for a type tag character, or nil
// for tags this codec does not carry.
func newArgument(tag byte) Argument {
	switch tag {
	case 'i':
		return new(Int32)
	case 'f':
		return new(Float32)
	case 's':
		return new(String)
	case 'b':
		return new(Blob)
	case 'T':
		b := Bool(true)
		return &b
	case 'F':
		b := Bool(false)
		return &b
	}
	return nil
}

// Int32 is a 32-bit big-endian two's complement integer.
type Int32 int32

func (Int32) TypeTag() byte { return 'i' }

func (i Int32) Append(b []byte) []byte {
	return binary.BigEndian.AppendUint32(b, uint32(i))
}

func (i *Int32) Consume(b []byte) ([]byte, error) {
	if len(b) < 4 {
		return nil, errShort
	}
	*i = Int32(binary.BigEndian.Uint32(b))
	return b[4:], nil
}

func (i Int32) String() string { return fmt.Sprintf("Int32(%d)", int32(i)) }

// Float32 is a 32-bit big-endian IEEE 754 float, encoded by bit
// reinterpretation.
type Float32 float32

func (Float32) TypeTag() byte { return 'f' }

func (f Float32) Append(b []byte) []byte {
	return binary.BigEndian.AppendUint32(b, math.Float32bits(float32(f)))
}

func (f *Float32) Consume(b []byte) ([]byte, error) {
	if len(b) < 4 {
		return nil, errShort
	}
	*f = Float32(math.Float32frombits(binary.BigEndian.Uint32(b)))
	return b[4:], nil
}

func (f Float32) String() string { return fmt.Sprintf("Float32(%g)", float32(f)) }

// String is null-terminated on the wire and zero-padded so the total
// length is a multiple of 4.
type String string

func (String) TypeTag() byte { return 's' }

func (s String) Append(b []byte) []byte {
	b = append(b, s...)
	b = append(b, 0)
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}

func (s *String) Consume(b []byte) ([]byte, error) {
	end := bytes.IndexByte(b, 0)
	if end < 0 {
		return nil, fmt.Errorf("osc: unterminated string %q", b)
	}
	*s = String(b[:end])
	// The terminator plus padding always rounds up to the next 4-byte
	// boundary; the padding bytes themselves are not validated.
	end = min(end+4-end%4, len(b))
	return b[end:], nil
}

func (s String) String() string { return fmt.Sprintf("String(%q)", string(s)) }

// Blob is an int32 byte count followed by that many bytes, zero-padded
// to a 4-byte boundary.
type Blob []byte

func (Blob) TypeTag() byte { return 'b' }

func (bl Blob) Append(b []byte) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(len(bl)))
	b = append(b, bl...)
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}

func (bl *Blob) Consume(b []byte) ([]byte, error) {
	if len(b) < 4 {
		return nil, errShort
	}
	n := int(int32(binary.BigEndian.Uint32(b)))
	b = b[4:]
	if n < 0 || n > len(b) {
		return nil, fmt.Errorf("osc: blob length %d exceeds remaining %d bytes", n, len(b))
	}
	*bl = Blob(append(make([]byte, 0, n), b[:n]...))
	pad := (4 - n%4) % 4
	return b[min(n+pad, len(b)):], nil
}

func (bl Blob) String() string { return fmt.Sprintf("Blob(% x)", []byte(bl)) }

// Bool carries no payload bytes; the value lives entirely in the type
// tag ('T' or 'F').
type Bool bool

func (v Bool) TypeTag() byte {
	if v {
		return 'T'
	}
	return 'F'
}

func (Bool) Append(b []byte) []byte           { return b }
func (Bool) Consume(b []byte) ([]byte, error) { return b, nil }

func (v Bool) String() string { return fmt.Sprintf("Bool(%t)", bool(v)) }
