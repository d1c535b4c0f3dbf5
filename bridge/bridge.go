// Package bridge is the network coordination core: per-target
// connections over UDP or TCP, the inbound receivers, the outbound
// rate limiter, and the manager that ties them to parameter state and
// runs the companion-app handshake.
package bridge

import (
	"time"

	"github.com/tbeswick/wfsbridge/config"
	"github.com/tbeswick/wfsbridge/osc"
	"github.com/tbeswick/wfsbridge/route"
)

const (
	// MaxTargets mirrors the number of configurable slots.
	MaxTargets = config.MaxTargets

	maxTCPClients     = 16
	flushInterval     = 20 * time.Millisecond
	heartbeatInterval = 2 * time.Second
	connectionTimeout = 6 * time.Second
	tcpConnectTimeout = 5 * time.Second
	clientSweepPeriod = time.Second

	// maxPacketSize is the largest UDP payload we read.
	maxPacketSize = 65507
	// maxFrameSize caps a TCP frame's declared length.
	maxFrameSize = 1 << 20
)

// Transport discriminates which receiver a packet arrived on, so
// downstream logic can apply transport-specific policy.
type Transport int

const (
	TransportUDP Transport = iota
	TransportTCP
)

func (t Transport) String() string {
	if t == TransportTCP {
		return "tcp"
	}
	return "udp"
}

// PacketHandler is the shared listener interface of both receivers.
// Dispatch happens synchronously on the receive goroutine, so
// implementations must be safe for arbitrarily many concurrent callers.
type PacketHandler interface {
	HandleMessage(m *osc.Message, senderIP string, via Transport)
	HandleBundle(b *osc.Bundle, senderIP string, via Transport)
}

// ConnectionStatus is the lifecycle state of one target connection.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusError
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// TrafficDirection tags entries fed to the traffic log callback.
type TrafficDirection int

const (
	TrafficSent TrafficDirection = iota
	TrafficReceived
	TrafficRejected
)

func (d TrafficDirection) String() string {
	switch d {
	case TrafficSent:
		return "sent"
	case TrafficReceived:
		return "received"
	case TrafficRejected:
		return "rejected"
	}
	return "unknown"
}

// Callbacks are the observer hooks consumed by the UI and log viewer.
// They are registered at construction; nil members are simply not
// called. All callbacks may fire from network or timer goroutines.
type Callbacks struct {
	OnStatusChanged       func(target int, status ConnectionStatus)
	OnRemoteChannelSelect func(target int, channel int32)
	OnRemotePosition      func(target int, channel int32, axis config.Axis, value float32)
	OnRemoteReady         func(target int)
	OnRemoteDisconnected  func(target int)
	OnTraffic             func(dir TrafficDirection, target int, m *osc.Message)
}

// ParamStore is the external parameter-state collaborator.
type ParamStore interface {
	FloatParam(id route.ParamID, channel int32) float32
	SetFloatParam(id route.ParamID, channel int32, v float32)
	IntParam(id route.ParamID, channel int32) int32
	SetIntParam(id route.ParamID, channel int32, v int32)
	ChannelName(channel int32) string
	SetChannelName(channel int32, name string)
	ChannelCount() int32
}

// Stats is a consistent snapshot of the aggregate counters.
type Stats struct {
	MessagesSent     int64
	MessagesReceived int64
	Coalesced        int64
	ParseErrors      int64
}
