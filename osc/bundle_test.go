package osc

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestBundleRoundTrip(t *testing.T) {
	inner := &Bundle{Elements: []Packet{
		NewMessage("/wfs/input/x", int32(2), float32(0.25)),
	}}
	bn := &Bundle{Elements: []Packet{
		NewMessage("/wfs/input/attenuation", int32(1), float32(-6)),
		inner,
		NewMessage("/wfs/input/name", int32(1), "violin"),
	}}

	enc := bn.Append(nil)
	if !IsBundle(enc) {
		t.Fatal("encoded bundle does not start with #bundle")
	}
	got, err := ParseBundle(enc)
	if err != nil {
		t.Fatalf("ParseBundle: %v", err)
	}
	if len(got.Elements) != 3 {
		t.Fatalf("got %d elements, want 3", len(got.Elements))
	}
	msgs := got.Messages()
	if len(msgs) != 3 {
		t.Fatalf("Messages() = %d, want 3", len(msgs))
	}
	wantAddrs := []string{"/wfs/input/attenuation", "/wfs/input/x", "/wfs/input/name"}
	for i, m := range msgs {
		if m.Address != wantAddrs[i] {
			t.Errorf("message %d address %q, want %q", i, m.Address, wantAddrs[i])
		}
	}
	if again := got.Append(nil); !bytes.Equal(enc, again) {
		t.Errorf("unstable bundle encoding")
	}
}

func TestParsePacketDispatch(t *testing.T) {
	m := NewMessage("/a", int32(1))
	p, err := ParsePacket(m.Append(nil))
	if err != nil {
		t.Fatalf("ParsePacket(message): %v", err)
	}
	if _, ok := p.(*Message); !ok {
		t.Errorf("ParsePacket(message) = %T", p)
	}

	bn := &Bundle{Elements: []Packet{m}}
	p, err = ParsePacket(bn.Append(nil))
	if err != nil {
		t.Fatalf("ParsePacket(bundle): %v", err)
	}
	if _, ok := p.(*Bundle); !ok {
		t.Errorf("ParsePacket(bundle) = %T", p)
	}
}

// A corrupt element length stops parsing early with whatever decoded
// cleanly, instead of failing the packet.
func TestParseBundleTruncatesOnCorruptLength(t *testing.T) {
	bn := &Bundle{Elements: []Packet{
		NewMessage("/a", int32(1)),
		NewMessage("/b", int32(2)),
	}}
	enc := bn.Append(nil)

	// Overwrite the second element's size with garbage. The first
	// element starts at offset 16; its size word is 4 bytes.
	firstSize := int(binary.BigEndian.Uint32(enc[16:]))
	corrupt := 16 + 4 + firstSize
	binary.BigEndian.PutUint32(enc[corrupt:], 0x7fffffff)

	got, err := ParseBundle(enc)
	if err != nil {
		t.Fatalf("ParseBundle: %v", err)
	}
	if len(got.Elements) != 1 {
		t.Fatalf("got %d elements, want 1", len(got.Elements))
	}
	if m := got.Messages()[0]; m.Address != "/a" {
		t.Errorf("surviving element %q, want /a", m.Address)
	}

	// Zero length stops the same way.
	binary.BigEndian.PutUint32(enc[corrupt:], 0)
	got, err = ParseBundle(enc)
	if err != nil || len(got.Elements) != 1 {
		t.Errorf("zero length: elements = %d, err = %v", len(got.Elements), err)
	}
}

func TestParseBundleRejectsShortHeader(t *testing.T) {
	if _, err := ParseBundle([]byte("#bundle\x00\x00\x00")); err == nil {
		t.Error("ParseBundle accepted a header with no timetag")
	}
	if _, err := ParseBundle([]byte("/not/a/bundle")); err == nil {
		t.Error("ParseBundle accepted a message")
	}
}

func TestEmptyBundle(t *testing.T) {
	enc := (&Bundle{}).Append(nil)
	got, err := ParseBundle(enc)
	if err != nil {
		t.Fatalf("ParseBundle: %v", err)
	}
	if len(got.Elements) != 0 {
		t.Errorf("got %d elements, want 0", len(got.Elements))
	}
}
