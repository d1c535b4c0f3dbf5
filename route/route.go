// Package route translates between OSC wire addresses and typed
// parameter identifiers. All mappings are static tables; parsing fails
// closed on anything the tables do not list.
package route

import (
	"github.com/tbeswick/wfsbridge/osc"
)

// ParamID identifies one application parameter kind.
type ParamID int

const (
	ParamInvalid ParamID = iota
	InputX
	InputY
	InputZ
	InputAttenuation
	InputDelay
	InputMute
	InputName
	InputTracking
	OutputAttenuation
	OutputDelay
	OutputMute
)

func (p ParamID) String() string {
	if s, ok := paramNames[p]; ok {
		return s
	}
	return "invalid"
}

var paramNames = map[ParamID]string{
	InputX:            "inputX",
	InputY:            "inputY",
	InputZ:            "inputZ",
	InputAttenuation:  "inputAttenuation",
	InputDelay:        "inputDelay",
	InputMute:         "inputMute",
	InputName:         "inputName",
	InputTracking:     "inputTracking",
	OutputAttenuation: "outputAttenuation",
	OutputDelay:       "outputDelay",
	OutputMute:        "outputMute",
}

var inputByAddress = map[string]ParamID{
	"/wfs/input/x":           InputX,
	"/wfs/input/y":           InputY,
	"/wfs/input/z":           InputZ,
	"/wfs/input/attenuation": InputAttenuation,
	"/wfs/input/delay":       InputDelay,
	"/wfs/input/mute":        InputMute,
	"/wfs/input/name":        InputName,
	"/wfs/input/tracking":    InputTracking,
}

var outputByAddress = map[string]ParamID{
	"/wfs/output/attenuation": OutputAttenuation,
	"/wfs/output/delay":       OutputDelay,
	"/wfs/output/mute":        OutputMute,
}

// Inverse tables, built once from the forward ones so the two can
// never drift apart.
var (
	inputAddress  = invert(inputByAddress)
	outputAddress = invert(outputByAddress)
)

func invert(m map[string]ParamID) map[ParamID]string {
	out := make(map[ParamID]string, len(m))
	for addr, id := range m {
		out[id] = addr
	}
	return out
}

// Param is the result of parsing a message: which parameter, for which
// channel, and its value. Name parameters carry the value in Str.
type Param struct {
	ID      ParamID
	Channel int32
	Value   float32
	Str     string
	Valid   bool
}

// ParseInput matches m against the input parameter table. Channel id
// comes from the first argument, the value from the second.
func ParseInput(m *osc.Message) Param {
	return parse(m, inputByAddress)
}

// ParseOutput matches m against the output parameter table.
func ParseOutput(m *osc.Message) Param {
	return parse(m, outputByAddress)
}

func parse(m *osc.Message, table map[string]ParamID) Param {
	id, ok := table[m.Address]
	if !ok {
		return Param{}
	}
	ch, ok := m.Int(0)
	if !ok {
		return Param{}
	}
	p := Param{ID: id, Channel: ch}
	if id == InputName {
		s, ok := m.Str(1)
		if !ok {
			return Param{}
		}
		p.Str = s
	} else {
		v, ok := m.Float(1)
		if !ok {
			return Param{}
		}
		p.Value = v
	}
	p.Valid = true
	return p
}

// BuildInput is the inverse of ParseInput. It returns nil for ids not
// in the input table.
func BuildInput(id ParamID, channel int32, value float32) *osc.Message {
	return build(inputAddress, id, channel, value)
}

// BuildInputName builds the string-valued name message.
func BuildInputName(channel int32, name string) *osc.Message {
	return osc.NewMessage(inputAddress[InputName], channel, name)
}

// BuildOutput is the inverse of ParseOutput. It returns nil for ids
// not in the output table.
func BuildOutput(id ParamID, channel int32, value float32) *osc.Message {
	return build(outputAddress, id, channel, value)
}

func build(table map[ParamID]string, id ParamID, channel int32, value float32) *osc.Message {
	addr, ok := table[id]
	if !ok || id == InputName {
		return nil
	}
	return osc.NewMessage(addr, channel, value)
}
