// Package osc encodes and decodes Open Sound Control 1.0 packets
// (https://ccrma.stanford.edu/groups/osc/spec-1_0.html).
//
// Only the argument types the controller actually exchanges are
// implemented: int32, float32, string, blob and the boolean tags.
package osc

import (
	"bytes"
	"sync"

	"github.com/pkg/errors"
)

// Packet is either a *Message or a *Bundle.
type Packet interface {
	// Append encodes the packet and appends it to the provided slice.
	Append(b []byte) []byte
}

// bundlePrefix is the literal that starts every encoded bundle. The
// trailing NUL is part of the header string on the wire.
var bundlePrefix = []byte("#bundle")

// IsBundle reports whether buf starts with the bundle header. Receivers
// use it to pick a decoder before touching the rest of the packet.
func IsBundle(buf []byte) bool {
	return len(buf) >= len(bundlePrefix) && bytes.HasPrefix(buf, bundlePrefix)
}

// ParsePacket decodes a raw datagram into a Message or a Bundle,
// dispatching on the first bytes.
func ParsePacket(buf []byte) (Packet, error) {
	if IsBundle(buf) {
		return ParseBundle(buf)
	}
	return ParseMessage(buf)
}

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, 0, 1024)
		return &b
	},
}

// GetBuf returns a pooled scratch buffer for encoding. Return it with
// PutBuf once the bytes have been written to the socket.
func GetBuf() []byte {
	b := bufPool.Get().(*[]byte)
	return (*b)[:0]
}

// PutBuf returns a buffer obtained from GetBuf to the pool.
func PutBuf(b []byte) {
	bufPool.Put(&b)
}

// errShort is returned when a decoder runs out of bytes mid-argument.
var errShort = errors.New("osc: truncated packet")
