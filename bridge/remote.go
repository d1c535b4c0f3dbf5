package bridge

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tbeswick/wfsbridge/config"
	"github.com/tbeswick/wfsbridge/route"
)

// RemotePhase is the handshake state of one companion-app target.
type RemotePhase int

const (
	RemoteDisconnected RemotePhase = iota
	RemoteConnecting
	RemoteConnected
)

func (p RemotePhase) String() string {
	switch p {
	case RemoteConnecting:
		return "connecting"
	case RemoteConnected:
		return "connected"
	}
	return "disconnected"
}

// remoteNudgeStep is the position delta, in metres, applied per nudge
// increment from a companion client.
const remoteNudgeStep float32 = 0.1

// remoteState tracks the ping/pong handshake for one REMOTE target.
// Guarded by the manager's configuration lock.
type remoteState struct {
	phase        RemotePhase
	lastPingSent time.Time
	lastPong     time.Time
	pendingSeq   int32
	pingPending  bool
	nextSeq      int32
	wasConnected bool
}

// heartbeatTick advances every REMOTE handshake: demotes targets whose
// pong is overdue, then sends the next ping. Pings bypass the rate
// limiter; the heartbeat is its own clock.
func (m *Manager) heartbeatTick(now time.Time) {
	type ping struct {
		target int
		seq    int32
	}
	var pings []ping
	var drops []int

	m.mu.Lock()
	for i := range m.remotes {
		rs := m.remotes[i]
		if rs == nil || !m.targets[i].TxEnabled {
			continue
		}
		if rs.phase != RemoteDisconnected && now.Sub(rs.lastPong) > connectionTimeout {
			wasConnected := rs.phase == RemoteConnected
			rs.phase = RemoteDisconnected
			if wasConnected {
				log.Warnf("remote %d: heartbeat timed out", i)
				drops = append(drops, i)
			}
		}
		rs.pendingSeq = rs.nextSeq
		rs.pingPending = true
		rs.nextSeq++
		rs.lastPingSent = now
		if rs.phase == RemoteDisconnected {
			// The timeout counts from here until the first pong.
			rs.phase = RemoteConnecting
			rs.lastPong = now
		}
		pings = append(pings, ping{i, rs.pendingSeq})
	}
	m.mu.Unlock()

	for _, t := range drops {
		if m.cb.OnRemoteDisconnected != nil {
			m.cb.OnRemoteDisconnected(t)
		}
	}
	for _, p := range pings {
		m.sendDirect(p.target, route.BuildRemotePing(p.seq))
	}
}

// handleRemote dispatches one parsed companion command. target is the
// slot whose configured IP matched the sender, or -1.
func (m *Manager) handleRemote(target int, in route.RemoteInput) {
	if !in.Valid {
		m.routeErrors.Add(1)
		return
	}
	if target < 0 || m.remote(target) == nil {
		log.Debugf("remote command from unconfigured sender, ignoring")
		return
	}

	switch in.Kind {
	case route.RemotePong:
		m.handlePong(target, in.Sequence)
	case route.RemoteSelect:
		if m.cb.OnRemoteChannelSelect != nil {
			m.cb.OnRemoteChannelSelect(target, in.Channel)
		}
	case route.RemoteNudge:
		m.handleNudge(target, in)
	}
}

func (m *Manager) remote(target int) *remoteState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remotes[target]
}

// handlePong completes the handshake when a ping is outstanding and
// the sequence number matches it. A pong with no ping in flight is
// ignored, as are unknown or stale sequence numbers. Every transition
// into Connected replays full state: companion clients hold nothing
// durable, so resync on reconnect is mandatory.
func (m *Manager) handlePong(target int, seq int32) {
	m.mu.Lock()
	rs := m.remotes[target]
	if rs == nil || !rs.pingPending || seq != rs.pendingSeq {
		m.mu.Unlock()
		return
	}
	rs.pingPending = false
	rs.lastPong = time.Now()
	becameConnected := rs.phase != RemoteConnected
	rs.phase = RemoteConnected
	reconnect := becameConnected && rs.wasConnected
	rs.wasConnected = true
	m.mu.Unlock()

	if !becameConnected {
		return
	}
	if reconnect {
		log.Infof("remote %d: reconnected", target)
	} else {
		log.Infof("remote %d: connected", target)
	}
	if m.cb.OnRemoteReady != nil {
		m.cb.OnRemoteReady(target)
	}
	m.resync(target)
}

// resync replays every channel's position, name and tracking state to
// one companion target.
func (m *Manager) resync(target int) {
	count := m.store.ChannelCount()
	for ch := int32(0); ch < count; ch++ {
		x := m.store.FloatParam(route.InputX, ch)
		y := m.store.FloatParam(route.InputY, ch)
		z := m.store.FloatParam(route.InputZ, ch)
		m.limiter.Queue(target, route.BuildRemotePosition(ch, x, y, z))
		m.limiter.Queue(target, route.BuildRemoteName(ch, m.store.ChannelName(ch)))
		m.limiter.Queue(target, route.BuildRemoteTracking(ch, m.store.IntParam(route.InputTracking, ch) != 0))
	}
}

// handleNudge applies a companion position delta through the shared
// position path: per-axis stage clamp, then the combined distance
// constraint, then parameter state and fan-out to non-REMOTE targets.
func (m *Manager) handleNudge(target int, in route.RemoteInput) {
	id := axisParam(in.Axis)
	v := m.store.FloatParam(id, in.Channel) + float32(in.Direction)*remoteNudgeStep
	m.applyPosition(config.ProtocolRemote, route.Param{ID: id, Channel: in.Channel, Value: v, Valid: true})

	if m.cb.OnRemotePosition != nil {
		m.cb.OnRemotePosition(target, in.Channel, in.Axis, m.store.FloatParam(id, in.Channel))
	}
}

func axisParam(a config.Axis) route.ParamID {
	switch a {
	case config.AxisY:
		return route.InputY
	case config.AxisZ:
		return route.InputZ
	}
	return route.InputX
}

// RemotePhaseOf reports the handshake phase for a target slot.
func (m *Manager) RemotePhaseOf(target int) RemotePhase {
	m.mu.Lock()
	defer m.mu.Unlock()
	if target < 0 || target >= MaxTargets || m.remotes[target] == nil {
		return RemoteDisconnected
	}
	return m.remotes[target].phase
}
