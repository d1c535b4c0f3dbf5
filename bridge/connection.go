package bridge

import (
	"encoding/binary"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"

	"github.com/tbeswick/wfsbridge/config"
	"github.com/tbeswick/wfsbridge/osc"
)

// Connection owns the outbound socket for one target slot: either a
// connected UDP socket or a TCP client, never both. The manager is its
// only owner; all methods are safe for concurrent use.
//
// Status machine: Disconnected → Connecting → {Connected | Error};
// Connected → Disconnected on explicit disconnect or TCP send failure.
// Error is terminal until the next Connect or Configure.
type Connection struct {
	index    int
	onStatus func(target int, status ConnectionStatus)

	mu     sync.Mutex
	cfg    config.TargetConfig
	status ConnectionStatus
	udp    *net.UDPConn
	tcp    net.Conn
	// connectGen cancels in-flight TCP connects: a background dial
	// publishes its result only if the generation is still current.
	connectGen uint64

	sent       atomic.Int64
	sendErrors atomic.Int64
}

// ConnStats is a snapshot of one connection's counters. Both reset on
// every successful reconnect.
type ConnStats struct {
	Sent       int64
	SendErrors int64
}

// NewConnection creates an unconfigured connection for a slot.
// onStatus may be nil.
func NewConnection(index int, onStatus func(int, ConnectionStatus)) *Connection {
	return &Connection{index: index, onStatus: onStatus}
}

// Configure applies a new target config. An address, port or mode
// change forces a disconnect and reconnect; becoming inactive
// disconnects; becoming active connects. Any connect attempt in flight
// is cancelled first.
func (c *Connection) Configure(cfg config.TargetConfig) {
	c.mu.Lock()
	old := c.cfg
	c.cfg = cfg
	c.connectGen++

	endpointChanged := old.IP != cfg.IP || old.Port != cfg.Port || old.Mode != cfg.Mode

	var notify []ConnectionStatus
	switch {
	case !cfg.Active():
		notify = c.closeLocked(StatusDisconnected, notify)
	case endpointChanged || c.status != StatusConnected:
		notify = c.closeLocked(StatusDisconnected, notify)
		notify = c.connectLocked(notify)
	}
	c.mu.Unlock()
	c.fire(notify)
}

// Connect (re)establishes the connection for the current config.
func (c *Connection) Connect() {
	c.mu.Lock()
	c.connectGen++
	var notify []ConnectionStatus
	notify = c.closeLocked(StatusDisconnected, notify)
	notify = c.connectLocked(notify)
	c.mu.Unlock()
	c.fire(notify)
}

// Disconnect tears the connection down and cancels any connect attempt
// in flight.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	c.connectGen++
	var notify []ConnectionStatus
	notify = c.closeLocked(StatusDisconnected, notify)
	c.mu.Unlock()
	c.fire(notify)
}

// connectLocked starts connecting under c.mu. The UDP path completes
// synchronously; the TCP path hands off to a background dial.
func (c *Connection) connectLocked(notify []ConnectionStatus) []ConnectionStatus {
	if !c.cfg.Valid() {
		log.Warnf("target %d: invalid config %q %s:%d", c.index, c.cfg.Name, c.cfg.IP, c.cfg.Port)
		return c.setStatusLocked(StatusError, notify)
	}
	addr := net.JoinHostPort(c.cfg.IP, strconv.Itoa(c.cfg.Port))

	if c.cfg.Mode == config.ModeTCP {
		notify = c.setStatusLocked(StatusConnecting, notify)
		go c.dialTCP(c.connectGen, addr)
		return notify
	}

	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		log.Errorf("target %d: resolving %s: %v", c.index, addr, err)
		return c.setStatusLocked(StatusError, notify)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		log.Errorf("target %d: udp connect %s: %v", c.index, addr, err)
		return c.setStatusLocked(StatusError, notify)
	}
	c.udp = conn
	c.resetStats()
	log.Infof("target %d: udp ready for %s", c.index, addr)
	return c.setStatusLocked(StatusConnected, notify)
}

// dialTCP performs the blocking connect off the lock and publishes the
// result only if no newer Configure/Disconnect superseded it.
func (c *Connection) dialTCP(gen uint64, addr string) {
	conn, err := net.DialTimeout("tcp", addr, tcpConnectTimeout)

	c.mu.Lock()
	if gen != c.connectGen {
		// Cancelled while dialing; drop the stale result.
		if conn != nil {
			conn.Close()
		}
		c.mu.Unlock()
		return
	}
	var notify []ConnectionStatus
	if err != nil {
		log.Errorf("target %d: tcp connect %s: %v", c.index, addr, err)
		notify = c.setStatusLocked(StatusError, notify)
	} else {
		c.tcp = conn
		c.resetStats()
		log.Infof("target %d: tcp connected to %s", c.index, addr)
		notify = c.setStatusLocked(StatusConnected, notify)
	}
	c.mu.Unlock()
	c.fire(notify)
}

// Send encodes and transmits one packet. It returns false when the
// connection is down, tx is disabled, or the write fails. A TCP write
// failure demotes the status to Disconnected so a later Configure can
// reconnect; it is not retried inline.
func (c *Connection) Send(p osc.Packet) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusConnected || !c.cfg.TxEnabled {
		return false
	}

	buf := osc.GetBuf()
	buf = p.Append(buf)
	defer osc.PutBuf(buf)

	if c.udp != nil {
		if _, err := c.udp.Write(buf); err != nil {
			c.sendErrors.Add(1)
			log.Errorf("target %d: udp send: %v", c.index, err)
			return false
		}
		c.sent.Add(1)
		return true
	}

	// TCP framing: 4-byte big-endian payload length, then the payload.
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(buf)))
	if _, err := c.tcp.Write(hdr[:]); err == nil {
		_, err = c.tcp.Write(buf)
		if err == nil {
			c.sent.Add(1)
			return true
		}
	}
	c.sendErrors.Add(1)
	c.tcp.Close()
	c.tcp = nil
	c.status = StatusDisconnected
	log.Warnf("target %d: tcp send failed, marking disconnected", c.index)
	go c.fire([]ConnectionStatus{StatusDisconnected})
	return false
}

// Connected reports whether the connection is up.
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == StatusConnected
}

// Status returns the current lifecycle state.
func (c *Connection) Status() ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Config returns the currently applied target config.
func (c *Connection) Config() config.TargetConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Stats snapshots the connection counters.
func (c *Connection) Stats() ConnStats {
	return ConnStats{Sent: c.sent.Load(), SendErrors: c.sendErrors.Load()}
}

func (c *Connection) resetStats() {
	c.sent.Store(0)
	c.sendErrors.Store(0)
}

// closeLocked shuts both socket kinds and records the new status.
func (c *Connection) closeLocked(s ConnectionStatus, notify []ConnectionStatus) []ConnectionStatus {
	if c.udp != nil {
		c.udp.Close()
		c.udp = nil
	}
	if c.tcp != nil {
		c.tcp.Close()
		c.tcp = nil
	}
	return c.setStatusLocked(s, notify)
}

func (c *Connection) setStatusLocked(s ConnectionStatus, notify []ConnectionStatus) []ConnectionStatus {
	if c.status == s {
		return notify
	}
	c.status = s
	return append(notify, s)
}

// fire invokes the status callback outside c.mu.
func (c *Connection) fire(notify []ConnectionStatus) {
	if c.onStatus == nil {
		return
	}
	for _, s := range notify {
		c.onStatus(c.index, s)
	}
}
