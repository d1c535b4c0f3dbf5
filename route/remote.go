package route

import (
	"strings"

	"github.com/tbeswick/wfsbridge/config"
	"github.com/tbeswick/wfsbridge/osc"
)

// Companion-app dialect. Inbound traffic arrives under /remoteInput,
// everything we send to a companion goes out under /remoteOutput.
const (
	remoteInputPrefix  = "/remoteInput/"
	remoteOutputPrefix = "/remoteOutput/"

	addrRemoteSelect = "/remoteInput/select"
	addrRemoteNudgeX = "/remoteInput/nudge/x"
	addrRemoteNudgeY = "/remoteInput/nudge/y"
	addrRemoteNudgeZ = "/remoteInput/nudge/z"
	addrRemotePong   = "/remoteInput/pong"

	AddrRemotePing     = "/remoteOutput/ping"
	AddrRemoteSelect   = "/remoteOutput/select"
	AddrRemotePosition = "/remoteOutput/position"
	AddrRemoteName     = "/remoteOutput/name"
	AddrRemoteTracking = "/remoteOutput/tracking"
)

// IsRemoteAddress reports whether addr belongs to the companion-app
// dialect rather than the standard /wfs tree.
func IsRemoteAddress(addr string) bool {
	return strings.HasPrefix(addr, remoteInputPrefix) ||
		strings.HasPrefix(addr, remoteOutputPrefix)
}

// RemoteKind distinguishes the companion commands.
type RemoteKind int

const (
	RemoteInvalid RemoteKind = iota
	RemoteSelect
	RemoteNudge
	RemotePong
)

// RemoteInput is a parsed companion-app command. Select carries only a
// channel; Nudge carries the channel, an axis and a signed direction;
// Pong carries the heartbeat sequence number.
type RemoteInput struct {
	Kind      RemoteKind
	Channel   int32
	Axis      config.Axis
	Direction int32
	Sequence  int32
	Valid     bool
}

// ParseRemoteInput matches m against the companion dialect. Fails
// closed on unknown addresses and missing arguments.
func ParseRemoteInput(m *osc.Message) RemoteInput {
	switch m.Address {
	case addrRemoteSelect:
		ch, ok := m.Int(0)
		if !ok {
			return RemoteInput{}
		}
		return RemoteInput{Kind: RemoteSelect, Channel: ch, Valid: true}
	case addrRemoteNudgeX, addrRemoteNudgeY, addrRemoteNudgeZ:
		ch, ok := m.Int(0)
		if !ok {
			return RemoteInput{}
		}
		dir, ok := m.Int(1)
		if !ok || dir == 0 {
			return RemoteInput{}
		}
		axis := config.AxisX
		switch m.Address {
		case addrRemoteNudgeY:
			axis = config.AxisY
		case addrRemoteNudgeZ:
			axis = config.AxisZ
		}
		return RemoteInput{Kind: RemoteNudge, Channel: ch, Axis: axis, Direction: dir, Valid: true}
	case addrRemotePong:
		seq, ok := m.Int(0)
		if !ok {
			return RemoteInput{}
		}
		return RemoteInput{Kind: RemotePong, Sequence: seq, Valid: true}
	}
	return RemoteInput{}
}

// BuildRemotePing builds the heartbeat ping carrying a sequence number
// the companion must echo back on /remoteInput/pong.
func BuildRemotePing(seq int32) *osc.Message {
	return osc.NewMessage(AddrRemotePing, seq)
}

// BuildRemoteNudge is the inverse of the nudge parse, used by tests to
// keep the dialect symmetric.
func BuildRemoteNudge(channel int32, axis config.Axis, direction int32) *osc.Message {
	addr := addrRemoteNudgeX
	switch axis {
	case config.AxisY:
		addr = addrRemoteNudgeY
	case config.AxisZ:
		addr = addrRemoteNudgeZ
	}
	return osc.NewMessage(addr, channel, direction)
}

// BuildRemoteSelect mirrors a channel selection back to companions.
func BuildRemoteSelect(channel int32) *osc.Message {
	return osc.NewMessage(AddrRemoteSelect, channel)
}

// BuildRemotePosition carries a channel's full position.
func BuildRemotePosition(channel int32, x, y, z float32) *osc.Message {
	return osc.NewMessage(AddrRemotePosition, channel, x, y, z)
}

// BuildRemoteName carries a channel's display name.
func BuildRemoteName(channel int32, name string) *osc.Message {
	return osc.NewMessage(AddrRemoteName, channel, name)
}

// BuildRemoteTracking carries a channel's tracking flag.
func BuildRemoteTracking(channel int32, on bool) *osc.Message {
	return osc.NewMessage(AddrRemoteTracking, channel, on)
}
