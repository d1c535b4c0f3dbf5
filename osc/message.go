package osc

import (
	"fmt"
	"strings"
)

// Message is a single OSC message: an address pattern plus an ordered
// argument list.
type Message struct {
	// Address is the address pattern, a string beginning with "/".
	Address   string
	Arguments []Argument
}

// NewMessage builds a message from Go values. Supported kinds: int,
// int32, float32, float64, string, []byte, bool. Unsupported kinds are
// silently dropped, which keeps call sites terse; callers building
// messages from untrusted input should construct Arguments directly.
func NewMessage(address string, args ...any) *Message {
	m := &Message{Address: address}
	for _, a := range args {
		switch v := a.(type) {
		case int:
			i := Int32(v)
			m.Arguments = append(m.Arguments, &i)
		case int32:
			i := Int32(v)
			m.Arguments = append(m.Arguments, &i)
		case float32:
			f := Float32(v)
			m.Arguments = append(m.Arguments, &f)
		case float64:
			f := Float32(v)
			m.Arguments = append(m.Arguments, &f)
		case string:
			s := String(v)
			m.Arguments = append(m.Arguments, &s)
		case []byte:
			b := Blob(v)
			m.Arguments = append(m.Arguments, &b)
		case bool:
			b := Bool(v)
			m.Arguments = append(m.Arguments, &b)
		}
	}
	return m
}

// Append encodes the message and appends it to b: padded address,
// type-tag string, then each argument in order.
func (m *Message) Append(b []byte) []byte {
	b = String(m.Address).Append(b)

	tags := make([]byte, 0, len(m.Arguments)+1)
	tags = append(tags, ',')
	for _, a := range m.Arguments {
		tags = append(tags, a.TypeTag())
	}
	b = String(tags).Append(b)

	for _, a := range m.Arguments {
		b = a.Append(b)
	}
	return b
}

// ParseMessage decodes a message from buf. The address must begin with
// "/". Type tag characters this codec does not know are skipped without
// consuming any payload bytes, so a message carrying exotic arguments
// degrades to the arguments we do understand rather than failing.
func ParseMessage(buf []byte) (*Message, error) {
	var addr String
	buf, err := addr.Consume(buf)
	if err != nil {
		return nil, fmt.Errorf("osc: reading address: %w", err)
	}
	if !strings.HasPrefix(string(addr), "/") {
		return nil, fmt.Errorf("osc: address %q does not start with /", addr)
	}

	var tags String
	buf, err = tags.Consume(buf)
	if err != nil {
		return nil, fmt.Errorf("osc: reading type tags: %w", err)
	}
	if len(tags) == 0 || tags[0] != ',' {
		return nil, fmt.Errorf("osc: invalid type tag string %q", tags)
	}

	m := &Message{Address: string(addr)}
	for i := 1; i < len(tags); i++ {
		a := newArgument(tags[i])
		if a == nil {
			continue
		}
		buf, err = a.Consume(buf)
		if err != nil {
			return nil, fmt.Errorf("osc: reading argument %d (%c): %w", i-1, tags[i], err)
		}
		m.Arguments = append(m.Arguments, a)
	}
	return m, nil
}

// Int returns argument i as an int32 if it is one.
func (m *Message) Int(i int) (int32, bool) {
	if i >= len(m.Arguments) {
		return 0, false
	}
	v, ok := m.Arguments[i].(*Int32)
	if !ok {
		return 0, false
	}
	return int32(*v), true
}

// Float returns argument i as a float32, accepting an int32 as well
// since senders are sloppy about numeric tags.
func (m *Message) Float(i int) (float32, bool) {
	if i >= len(m.Arguments) {
		return 0, false
	}
	switch v := m.Arguments[i].(type) {
	case *Float32:
		return float32(*v), true
	case *Int32:
		return float32(*v), true
	}
	return 0, false
}

// Str returns argument i as a string if it is one.
func (m *Message) Str(i int) (string, bool) {
	if i >= len(m.Arguments) {
		return "", false
	}
	v, ok := m.Arguments[i].(*String)
	if !ok {
		return "", false
	}
	return string(*v), true
}

func (m *Message) String() string {
	var sb strings.Builder
	sb.WriteString(m.Address)
	for _, a := range m.Arguments {
		sb.WriteByte(' ')
		fmt.Fprintf(&sb, "%v", a)
	}
	return sb.String()
}
