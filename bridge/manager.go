package bridge

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tbeswick/wfsbridge/config"
	"github.com/tbeswick/wfsbridge/osc"
	"github.com/tbeswick/wfsbridge/route"
)

// Manager is the integration point: it owns the six per-target
// connections, the rate limiter, both receivers and the REMOTE
// handshake state, routes inbound traffic into parameter state, and
// fans parameter changes out to the targets.
type Manager struct {
	store ParamStore
	cb    Callbacks

	// mu guards configuration and remote handshake state. It is held
	// only to read/copy/update, never across an I/O call.
	mu      sync.Mutex
	global  config.GlobalConfig
	targets [MaxTargets]config.TargetConfig
	stage   config.StageBounds
	remotes [MaxTargets]*remoteState

	conns   [MaxTargets]*Connection
	limiter *Limiter
	udp     *UDPReceiver
	tcp     *TCPReceiver

	received    atomic.Int64
	routeErrors atomic.Int64
	directSent  atomic.Int64
}

// NewManager wires the core together. Observers are registered here
// and only here; there is no global listener registry.
func NewManager(store ParamStore, cb Callbacks) *Manager {
	m := &Manager{
		store: store,
		cb:    cb,
		stage: config.DefaultStageBounds,
	}
	for i := range m.conns {
		m.conns[i] = NewConnection(i, cb.OnStatusChanged)
	}
	m.limiter = NewLimiter(flushInterval, m.deliverTo, m.broadcastTargets)
	m.udp = NewUDPReceiver(m)
	m.tcp = NewTCPReceiver(m)
	return m
}

// Apply installs a new configuration wholesale: global settings, stage
// bounds and all six target slots. Receivers pick the global settings
// up at their next (re)start.
func (m *Manager) Apply(f *config.File) {
	m.mu.Lock()
	m.global = f.Global
	m.stage = f.Stage
	m.targets = f.Targets
	for i := range f.Targets {
		t := f.Targets[i]
		if t.Protocol == config.ProtocolRemote && t.Active() {
			if m.remotes[i] == nil {
				m.remotes[i] = &remoteState{}
			}
		} else {
			m.remotes[i] = nil
		}
	}
	m.mu.Unlock()

	// Connection reconfiguration does socket work; keep it off the
	// configuration lock.
	for i := range f.Targets {
		m.conns[i].Configure(f.Targets[i])
	}
	log.Infof("configuration applied: udp=%d tcp=%d", f.Global.UDPPort, f.Global.TCPPort)
}

// Run starts the receivers, the flush tick and the heartbeat, blocking
// until ctx is cancelled or a receiver fails.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	global := m.global
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	if global.UDPPort > 0 {
		g.Go(func() error { return m.udp.Listen(gctx, global.Interface, global.UDPPort) })
	}
	if global.TCPPort > 0 {
		g.Go(func() error { return m.tcp.Listen(gctx, global.Interface, global.TCPPort) })
	}
	g.Go(func() error { return m.limiter.Run(gctx) })
	g.Go(func() error {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case now := <-ticker.C:
				m.heartbeatTick(now)
			}
		}
	})
	err := g.Wait()
	for i := range m.conns {
		m.conns[i].Disconnect()
	}
	return err
}

// HandleMessage implements PacketHandler. It runs synchronously on
// receiver goroutines, so everything it touches is lock-protected.
// Routing policy is protocol-based, not transport-based; the via
// discriminator is carried for PacketHandler implementations that do
// distinguish transports, such as a traffic viewer.
func (m *Manager) HandleMessage(msg *osc.Message, senderIP string, via Transport) {
	if !m.allowIP(senderIP) {
		log.Debugf("dropping message from filtered ip %s", senderIP)
		m.traffic(TrafficRejected, -1, msg)
		return
	}
	m.received.Add(1)

	src, srcProto := m.sourceOf(senderIP, msg.Address)
	m.traffic(TrafficReceived, src, msg)

	if route.IsRemoteAddress(msg.Address) {
		m.handleRemote(src, route.ParseRemoteInput(msg))
		return
	}
	m.handleStandard(srcProto, msg)
}

// HandleBundle implements PacketHandler, dispatching each contained
// message with the bundle's sender.
func (m *Manager) HandleBundle(b *osc.Bundle, senderIP string, via Transport) {
	for _, msg := range b.Messages() {
		m.HandleMessage(msg, senderIP, via)
	}
}

// handleStandard routes a /wfs or /adm message into parameter state
// and fans the update out, never back toward the protocol it came
// from.
func (m *Manager) handleStandard(srcProto config.Protocol, msg *osc.Message) {
	p := route.ParseInput(msg)
	if !p.Valid {
		p = route.ParseOutput(msg)
	}
	if !p.Valid {
		p = route.ParseADM(msg)
	}
	if !p.Valid {
		m.routeErrors.Add(1)
		return
	}

	switch p.ID {
	case route.InputName:
		m.store.SetChannelName(p.Channel, p.Str)
	case route.InputMute, route.InputTracking, route.OutputMute:
		m.store.SetIntParam(p.ID, p.Channel, int32(p.Value))
	case route.InputX, route.InputY, route.InputZ:
		m.applyPosition(srcProto, p)
		return
	default:
		m.store.SetFloatParam(p.ID, p.Channel, p.Value)
	}

	m.forward(srcProto, p)
}

// applyPosition runs the authoritative stage clamps for one position
// update: the per-axis bound, then the combined distance constraint,
// which in cylindrical and spherical modes can move the other axes
// too. Every axis that moved is stored and fanned out. All position
// sources go through here, whatever transport or protocol they arrived
// on.
func (m *Manager) applyPosition(srcProto config.Protocol, p route.Param) {
	m.mu.Lock()
	stage := m.stage
	m.mu.Unlock()

	pos := [3]float32{
		m.store.FloatParam(route.InputX, p.Channel),
		m.store.FloatParam(route.InputY, p.Channel),
		m.store.FloatParam(route.InputZ, p.Channel),
	}
	prev := pos

	axis := positionAxis(p.ID)
	pos[axis] = stage.Clamp(axis, p.Value)
	pos[0], pos[1], pos[2] = stage.ClampDistance(pos[0], pos[1], pos[2])

	for i, id := range [3]route.ParamID{route.InputX, route.InputY, route.InputZ} {
		if id != p.ID && pos[i] == prev[i] {
			continue
		}
		m.store.SetFloatParam(id, p.Channel, pos[i])
		m.forward(srcProto, route.Param{ID: id, Channel: p.Channel, Value: pos[i], Valid: true})
	}
}

func positionAxis(id route.ParamID) config.Axis {
	switch id {
	case route.InputY:
		return config.AxisY
	case route.InputZ:
		return config.AxisZ
	}
	return config.AxisX
}

// forward queues a parameter update for every tx-enabled target except
// those speaking srcProto. Each protocol gets its own encoding; rx-only
// protocols get nothing.
func (m *Manager) forward(srcProto config.Protocol, p route.Param) {
	m.mu.Lock()
	targets := m.targets
	var phases [MaxTargets]RemotePhase
	for i := range m.remotes {
		if m.remotes[i] != nil {
			phases[i] = m.remotes[i].phase
		}
	}
	m.mu.Unlock()

	for i := range targets {
		t := targets[i]
		if !t.Active() || !t.TxEnabled || t.Protocol == srcProto {
			continue
		}
		var msg *osc.Message
		switch t.Protocol {
		case config.ProtocolOSC:
			msg = m.buildOSC(p)
		case config.ProtocolADMOSC:
			msg = route.BuildADM(p.ID, p.Channel, p.Value)
		case config.ProtocolRemote:
			if phases[i] != RemoteConnected {
				continue
			}
			msg = m.buildRemote(p)
		}
		if msg == nil {
			continue
		}
		m.limiter.Queue(i, msg)
	}
}

func (m *Manager) buildOSC(p route.Param) *osc.Message {
	if p.ID == route.InputName {
		return route.BuildInputName(p.Channel, p.Str)
	}
	if msg := route.BuildInput(p.ID, p.Channel, p.Value); msg != nil {
		return msg
	}
	return route.BuildOutput(p.ID, p.Channel, p.Value)
}

// buildRemote maps a parameter update onto the companion dialect.
// Position axes resend the full position; parameters the companion
// does not display are skipped.
func (m *Manager) buildRemote(p route.Param) *osc.Message {
	switch p.ID {
	case route.InputX, route.InputY, route.InputZ:
		x := m.store.FloatParam(route.InputX, p.Channel)
		y := m.store.FloatParam(route.InputY, p.Channel)
		z := m.store.FloatParam(route.InputZ, p.Channel)
		return route.BuildRemotePosition(p.Channel, x, y, z)
	case route.InputName:
		return route.BuildRemoteName(p.Channel, p.Str)
	case route.InputTracking:
		return route.BuildRemoteTracking(p.Channel, p.Value != 0)
	}
	return nil
}

// SendParam fans out a local parameter change to every target. No
// protocol is excluded; the change did not arrive from the network.
func (m *Manager) SendParam(id route.ParamID, channel int32, value float32) {
	m.forward(config.ProtocolDisabled, route.Param{ID: id, Channel: channel, Value: value, Valid: true})
}

// SendName fans out a channel rename.
func (m *Manager) SendName(channel int32, name string) {
	m.forward(config.ProtocolDisabled, route.Param{ID: route.InputName, Channel: channel, Str: name, Valid: true})
}

// SendRaw transmits a prebuilt packet to one target immediately,
// bypassing the limiter. The external cue builder uses this for QLab
// targets.
func (m *Manager) SendRaw(target int, p osc.Packet) bool {
	if target < 0 || target >= MaxTargets {
		return false
	}
	if !m.conns[target].Send(p) {
		return false
	}
	m.directSent.Add(1)
	if msg, ok := p.(*osc.Message); ok {
		m.traffic(TrafficSent, target, msg)
	}
	return true
}

// sendDirect is SendRaw for internal callers (heartbeat pings).
func (m *Manager) sendDirect(target int, msg *osc.Message) bool {
	if !m.conns[target].Send(msg) {
		return false
	}
	m.directSent.Add(1)
	m.traffic(TrafficSent, target, msg)
	return true
}

// deliverTo is the limiter's send hook.
func (m *Manager) deliverTo(target int, msg *osc.Message) bool {
	if !m.conns[target].Send(msg) {
		return false
	}
	m.traffic(TrafficSent, target, msg)
	return true
}

// broadcastTargets lists the slots eligible for broadcast fan-out.
func (m *Manager) broadcastTargets() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int
	for i := range m.targets {
		if m.targets[i].Active() && m.targets[i].TxEnabled {
			out = append(out, i)
		}
	}
	return out
}

// allowIP applies the inbound filter: when enabled, the sender must be
// in the allow list or be a configured target.
func (m *Manager) allowIP(ip string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.global.IPFilter {
		return true
	}
	for _, allowed := range m.global.AllowedIPs {
		if strings.EqualFold(allowed, ip) {
			return true
		}
	}
	for i := range m.targets {
		if m.targets[i].Active() && m.targets[i].IP == ip {
			return true
		}
	}
	return false
}

// sourceOf matches a sender IP to a configured target. Unmatched
// senders keep index -1 and a protocol inferred from the address tree,
// so loop prevention still has a category to suppress.
func (m *Manager) sourceOf(senderIP, address string) (int, config.Protocol) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.targets {
		if m.targets[i].Active() && m.targets[i].IP == senderIP {
			return i, m.targets[i].Protocol
		}
	}
	switch {
	case route.IsRemoteAddress(address):
		return -1, config.ProtocolRemote
	case strings.HasPrefix(address, "/adm/"):
		return -1, config.ProtocolADMOSC
	}
	return -1, config.ProtocolOSC
}

// Connection exposes one slot's connection for status display.
func (m *Manager) Connection(target int) *Connection {
	if target < 0 || target >= MaxTargets {
		return nil
	}
	return m.conns[target]
}

func (m *Manager) traffic(dir TrafficDirection, target int, msg *osc.Message) {
	if m.cb.OnTraffic != nil {
		m.cb.OnTraffic(dir, target, msg)
	}
}

// Stats snapshots the aggregate counters.
func (m *Manager) Stats() Stats {
	return Stats{
		MessagesSent:     m.limiter.Sent() + m.directSent.Load(),
		MessagesReceived: m.received.Load(),
		Coalesced:        m.limiter.Coalesced(),
		ParseErrors:      m.udp.ParseErrors() + m.tcp.ParseErrors() + m.routeErrors.Load(),
	}
}
