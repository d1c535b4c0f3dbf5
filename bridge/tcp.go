package bridge

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tbeswick/wfsbridge/osc"
)

// TCPReceiver accepts up to maxTCPClients framed OSC streams. Each
// accepted client runs on its own goroutine; a handler that hits
// end-of-stream or a read error marks itself inactive and a periodic
// sweep drops it from the active set. Dispatch is shared with the UDP
// receiver, tagged with the client IP and TransportTCP.
type TCPReceiver struct {
	handler     PacketHandler
	parseErrors atomic.Int64
	addr        atomic.Value // net.Addr, set once bound

	mu      sync.Mutex
	clients map[*tcpClient]struct{}
}

type tcpClient struct {
	conn net.Conn
	ip   string
	done atomic.Bool
}

// NewTCPReceiver creates a receiver dispatching to h.
func NewTCPReceiver(h PacketHandler) *TCPReceiver {
	return &TCPReceiver{
		handler: h,
		clients: make(map[*tcpClient]struct{}),
	}
}

// ParseErrors returns the number of frames that failed to decode.
func (r *TCPReceiver) ParseErrors() int64 {
	return r.parseErrors.Load()
}

// LocalAddr returns the bound address, or nil before Listen binds.
func (r *TCPReceiver) LocalAddr() net.Addr {
	a, _ := r.addr.Load().(net.Addr)
	return a
}

// ClientCount returns the number of clients in the active set. The
// count includes finished handlers the sweep has not collected yet.
func (r *TCPReceiver) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Listen accepts clients on iface:port until ctx is cancelled.
func (r *TCPReceiver) Listen(ctx context.Context, iface string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(iface, strconv.Itoa(port)))
	if err != nil {
		return errors.Wrap(err, "binding tcp receive socket")
	}
	r.addr.Store(ln.Addr())
	log.Infof("tcp receiver listening on %s", ln.Addr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		ln.Close()
		r.closeAll()
		return gctx.Err()
	})
	g.Go(func() error {
		ticker := time.NewTicker(clientSweepPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
				r.sweep()
			}
		}
	})
	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				return errors.Wrap(err, "tcp accept")
			}
			r.admit(conn)
		}
	})
	return g.Wait()
}

// admit registers a new client and starts its read loop, refusing it
// when the active set is full.
func (r *TCPReceiver) admit(conn net.Conn) bool {
	ip := "unknown"
	if addr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		ip = addr.IP.String()
	}

	r.mu.Lock()
	if len(r.clients) >= maxTCPClients {
		r.mu.Unlock()
		log.Warnf("tcp: refusing client %s, %d already connected", ip, maxTCPClients)
		conn.Close()
		return false
	}
	cl := &tcpClient{conn: conn, ip: ip}
	r.clients[cl] = struct{}{}
	r.mu.Unlock()

	log.Infof("tcp: client connected from %s", ip)
	go r.serve(cl)
	return true
}

// serve reads length-prefixed frames until the peer disconnects. Short
// reads are retried by io.ReadFull until the frame is complete.
func (r *TCPReceiver) serve(cl *tcpClient) {
	defer func() {
		cl.conn.Close()
		cl.done.Store(true)
	}()

	var hdr [4]byte
	for {
		if _, err := io.ReadFull(cl.conn, hdr[:]); err != nil {
			if err != io.EOF {
				log.Debugf("tcp: client %s read: %v", cl.ip, err)
			}
			return
		}
		size := int(int32(binary.BigEndian.Uint32(hdr[:])))
		if size <= 0 || size > maxFrameSize {
			log.Warnf("tcp: client %s sent frame length %d, dropping connection", cl.ip, size)
			return
		}
		frame := make([]byte, size)
		if _, err := io.ReadFull(cl.conn, frame); err != nil {
			log.Debugf("tcp: client %s mid-frame read: %v", cl.ip, err)
			return
		}
		r.dispatch(frame, cl.ip)
	}
}

func (r *TCPReceiver) dispatch(raw []byte, senderIP string) {
	if osc.IsBundle(raw) {
		b, err := osc.ParseBundle(raw)
		if err != nil {
			r.parseErrors.Add(1)
			log.Debugf("tcp: dropping bad bundle from %s: %v", senderIP, err)
			return
		}
		r.handler.HandleBundle(b, senderIP, TransportTCP)
		return
	}
	m, err := osc.ParseMessage(raw)
	if err != nil {
		r.parseErrors.Add(1)
		log.Debugf("tcp: dropping bad message from %s: %v", senderIP, err)
		return
	}
	r.handler.HandleMessage(m, senderIP, TransportTCP)
}

// sweep removes handlers that have marked themselves inactive.
func (r *TCPReceiver) sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for cl := range r.clients {
		if cl.done.Load() {
			delete(r.clients, cl)
		}
	}
}

func (r *TCPReceiver) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for cl := range r.clients {
		cl.conn.Close()
		delete(r.clients, cl)
	}
}
