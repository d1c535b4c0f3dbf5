package route

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tbeswick/wfsbridge/osc"
)

// ADM-OSC dialect (https://immersive-audio-live.github.io/ADM-OSC/).
// Unlike the /wfs tree, the object number is embedded in the address
// and the value is the only argument: /adm/obj/3/x 0.5. Gain maps onto
// the input attenuation parameter.
const admPrefix = "/adm/obj/"

var admLeafByParam = map[ParamID]string{
	InputX:           "x",
	InputY:           "y",
	InputZ:           "z",
	InputAttenuation: "gain",
}

var admParamByLeaf = map[string]ParamID{
	"x":    InputX,
	"y":    InputY,
	"z":    InputZ,
	"gain": InputAttenuation,
}

// ParseADM matches m against the ADM-OSC object tree.
func ParseADM(m *osc.Message) Param {
	rest, ok := strings.CutPrefix(m.Address, admPrefix)
	if !ok {
		return Param{}
	}
	obj, leaf, ok := strings.Cut(rest, "/")
	if !ok {
		return Param{}
	}
	id, ok := admParamByLeaf[leaf]
	if !ok {
		return Param{}
	}
	n, err := strconv.Atoi(obj)
	if err != nil || n < 1 {
		return Param{}
	}
	v, ok := m.Float(0)
	if !ok {
		return Param{}
	}
	// ADM object numbers are 1-based; channels are 0-based.
	return Param{ID: id, Channel: int32(n - 1), Value: v, Valid: true}
}

// BuildADM is the inverse of ParseADM. It returns nil for parameters
// ADM-OSC does not carry.
func BuildADM(id ParamID, channel int32, value float32) *osc.Message {
	leaf, ok := admLeafByParam[id]
	if !ok {
		return nil
	}
	return osc.NewMessage(fmt.Sprintf("%s%d/%s", admPrefix, channel+1, leaf), value)
}
