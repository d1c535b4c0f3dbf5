package osc

import (
	"encoding/binary"
	"fmt"
)

// timetagImmediate is the OSC "execute now" timetag. The controller
// never schedules bundles, so it is the only timetag ever written and
// incoming timetags are ignored.
const timetagImmediate uint64 = 1

// maxElementSize caps a bundle element's declared length. Anything
// larger than the biggest frame we accept is treated as corruption.
const maxElementSize = 1 << 20

// Bundle is an ordered list of messages and nested bundles.
type Bundle struct {
	Elements []Packet
}

// Append encodes the bundle: the literal "#bundle\0" header, an
// immediate timetag, then each element prefixed with its big-endian
// int32 size.
func (bn *Bundle) Append(b []byte) []byte {
	b = append(b, bundlePrefix...)
	b = append(b, 0)
	b = binary.BigEndian.AppendUint64(b, timetagImmediate)
	for _, el := range bn.Elements {
		sizeAt := len(b)
		b = append(b, 0, 0, 0, 0)
		b = el.Append(b)
		binary.BigEndian.PutUint32(b[sizeAt:], uint32(len(b)-sizeAt-4))
	}
	return b
}

// ParseBundle decodes a bundle from buf. Decoding is deliberately
// lenient: a zero, negative, oversized or otherwise corrupt element
// length stops parsing early and returns the elements decoded so far,
// rather than failing the whole packet. Element decode errors stop
// parsing the same way.
func ParseBundle(buf []byte) (*Bundle, error) {
	if !IsBundle(buf) {
		return nil, fmt.Errorf("osc: missing bundle header")
	}
	// Header string is "#bundle" plus the terminating NUL; the 8-byte
	// timetag follows and is ignored.
	if len(buf) < 16 {
		return nil, errShort
	}
	buf = buf[16:]

	bn := &Bundle{}
	for len(buf) >= 4 {
		size := int(int32(binary.BigEndian.Uint32(buf)))
		buf = buf[4:]
		if size <= 0 || size > len(buf) || size > maxElementSize {
			break
		}
		el, err := ParsePacket(buf[:size])
		if err != nil {
			break
		}
		bn.Elements = append(bn.Elements, el)
		buf = buf[size:]
	}
	return bn, nil
}

// Messages flattens the bundle, returning every message it contains in
// order, descending into nested bundles.
func (bn *Bundle) Messages() []*Message {
	var out []*Message
	for _, el := range bn.Elements {
		switch v := el.(type) {
		case *Message:
			out = append(out, v)
		case *Bundle:
			out = append(out, v.Messages()...)
		}
	}
	return out
}
