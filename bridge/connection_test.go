package bridge

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/tbeswick/wfsbridge/config"
	"github.com/tbeswick/wfsbridge/osc"
)

func udpTarget(t *testing.T, port int, tx bool) config.TargetConfig {
	t.Helper()
	return config.TargetConfig{
		Name: "test", IP: "127.0.0.1", Port: port,
		Protocol: config.ProtocolOSC, Mode: config.ModeUDP,
		TxEnabled: tx, RxEnabled: true,
	}
}

// udpSink binds a local UDP socket and forwards every datagram.
func udpSink(t *testing.T) (int, <-chan []byte) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	out := make(chan []byte, 16)
	go func() {
		buf := make([]byte, maxPacketSize)
		for {
			n, _, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			out <- append([]byte(nil), buf[:n]...)
		}
	}()
	return conn.LocalAddr().(*net.UDPAddr).Port, out
}

func waitStatus(t *testing.T, c *Connection, want ConnectionStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Status() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("status = %v, want %v", c.Status(), want)
}

func TestUDPConnectionSend(t *testing.T) {
	port, sink := udpSink(t)
	c := NewConnection(0, nil)
	c.Configure(udpTarget(t, port, true))
	// UDP connect is synchronous.
	if got := c.Status(); got != StatusConnected {
		t.Fatalf("status = %v, want connected", got)
	}

	msg := osc.NewMessage("/wfs/input/attenuation", int32(1), float32(-6))
	if !c.Send(msg) {
		t.Fatal("Send returned false")
	}
	select {
	case got := <-sink:
		if want := msg.Append(nil); !bytes.Equal(got, want) {
			t.Errorf("datagram:\n got %q\nwant %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("datagram never arrived")
	}
	if s := c.Stats(); s.Sent != 1 || s.SendErrors != 0 {
		t.Errorf("stats = %+v", s)
	}
	c.Disconnect()
	if c.Status() != StatusDisconnected {
		t.Errorf("status after disconnect = %v", c.Status())
	}
}

func TestSendRequiresTxEnabled(t *testing.T) {
	port, _ := udpSink(t)
	c := NewConnection(0, nil)
	c.Configure(udpTarget(t, port, false))
	if c.Status() != StatusConnected {
		t.Fatalf("status = %v", c.Status())
	}
	if c.Send(osc.NewMessage("/x", int32(1))) {
		t.Error("Send succeeded with tx disabled")
	}
}

func TestInvalidConfigIsError(t *testing.T) {
	var statuses []ConnectionStatus
	c := NewConnection(0, func(_ int, s ConnectionStatus) { statuses = append(statuses, s) })
	c.Configure(config.TargetConfig{
		Protocol: config.ProtocolOSC, Mode: config.ModeUDP,
		IP: "", Port: 0, TxEnabled: true, RxEnabled: true,
	})
	if c.Status() != StatusError {
		t.Fatalf("status = %v, want error", c.Status())
	}
	if c.Send(osc.NewMessage("/x", int32(1))) {
		t.Error("Send succeeded in error state")
	}
	if len(statuses) == 0 || statuses[len(statuses)-1] != StatusError {
		t.Errorf("status callbacks = %v", statuses)
	}
}

func TestInactiveConfigDisconnects(t *testing.T) {
	port, _ := udpSink(t)
	c := NewConnection(0, nil)
	c.Configure(udpTarget(t, port, true))
	waitStatus(t, c, StatusConnected)

	cfg := udpTarget(t, port, false)
	cfg.RxEnabled = false
	c.Configure(cfg)
	if c.Status() != StatusDisconnected {
		t.Errorf("status = %v, want disconnected", c.Status())
	}
}

func TestTCPConnectionFraming(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	type frame struct {
		payload []byte
		err     error
	}
	frames := make(chan frame, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			frames <- frame{err: err}
			return
		}
		defer conn.Close()
		var hdr [4]byte
		if _, err := io.ReadFull(conn, hdr[:]); err != nil {
			frames <- frame{err: err}
			return
		}
		payload := make([]byte, binary.BigEndian.Uint32(hdr[:]))
		_, err = io.ReadFull(conn, payload)
		frames <- frame{payload: payload, err: err}
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	c := NewConnection(1, nil)
	c.Configure(config.TargetConfig{
		Name: "tcp", IP: "127.0.0.1", Port: port,
		Protocol: config.ProtocolOSC, Mode: config.ModeTCP,
		TxEnabled: true,
	})
	waitStatus(t, c, StatusConnected)

	msg := osc.NewMessage("/wfs/output/delay", int32(3), float32(12.5))
	if !c.Send(msg) {
		t.Fatal("Send returned false")
	}

	select {
	case f := <-frames:
		if f.err != nil {
			t.Fatalf("reading frame: %v", f.err)
		}
		if want := msg.Append(nil); !bytes.Equal(f.payload, want) {
			t.Errorf("frame payload:\n got %q\nwant %q", f.payload, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame never arrived")
	}
	c.Disconnect()
}

func TestTCPSendFailureDemotesToDisconnected(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	c := NewConnection(2, nil)
	c.Configure(config.TargetConfig{
		Name: "tcp", IP: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port,
		Protocol: config.ProtocolOSC, Mode: config.ModeTCP,
		TxEnabled: true,
	})
	waitStatus(t, c, StatusConnected)

	select {
	case conn := <-accepted:
		conn.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted")
	}

	// The failure may take a few writes to surface through the kernel
	// buffers; the demotion must happen by then.
	msg := osc.NewMessage("/x", int32(1))
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !c.Send(msg) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := c.Status(); got != StatusDisconnected {
		t.Errorf("status after send failure = %v, want disconnected", got)
	}
	if c.Send(msg) {
		t.Error("Send succeeded while disconnected")
	}
}

func TestConfigureCancelsInflightConnect(t *testing.T) {
	// Nothing listens on this port; the dial will fail slowly or get
	// refused. Either way the later Configure must win.
	c := NewConnection(3, nil)
	c.Configure(config.TargetConfig{
		Name: "stale", IP: "10.255.255.1", Port: 9999,
		Protocol: config.ProtocolOSC, Mode: config.ModeTCP,
		TxEnabled: true,
	})

	port, _ := udpSink(t)
	c.Configure(udpTarget(t, port, true))
	waitStatus(t, c, StatusConnected)

	// Give the stale dial time to resolve; its result must be dropped.
	time.Sleep(100 * time.Millisecond)
	if got := c.Status(); got != StatusConnected {
		t.Errorf("stale connect result overwrote status: %v", got)
	}
}
