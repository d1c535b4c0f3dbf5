package bridge

import (
	"context"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tbeswick/wfsbridge/osc"
)

// UDPReceiver binds one socket and decodes every datagram on a
// dedicated goroutine, dispatching synchronously to the handler with
// the sender's IP. Decode failures are counted and swallowed; the
// receive loop never stops over a bad packet.
type UDPReceiver struct {
	handler     PacketHandler
	parseErrors atomic.Int64
	addr        atomic.Value // net.Addr, set once bound
}

// NewUDPReceiver creates a receiver dispatching to h.
func NewUDPReceiver(h PacketHandler) *UDPReceiver {
	return &UDPReceiver{handler: h}
}

// ParseErrors returns the number of datagrams that failed to decode.
func (r *UDPReceiver) ParseErrors() int64 {
	return r.parseErrors.Load()
}

// LocalAddr returns the bound address, or nil before Listen binds.
func (r *UDPReceiver) LocalAddr() net.Addr {
	a, _ := r.addr.Load().(net.Addr)
	return a
}

// Listen binds iface:port and blocks reading datagrams until ctx is
// cancelled or the socket fails.
func (r *UDPReceiver) Listen(ctx context.Context, iface string, port int) error {
	laddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(iface, strconv.Itoa(port)))
	if err != nil {
		return errors.Wrap(err, "resolving udp listen address")
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return errors.Wrap(err, "binding udp receive socket")
	}
	r.addr.Store(conn.LocalAddr())
	log.Infof("udp receiver listening on %s", conn.LocalAddr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		conn.Close()
		return gctx.Err()
	})
	g.Go(func() error {
		buf := make([]byte, maxPacketSize)
		for {
			n, addr, err := conn.ReadFromUDP(buf)
			if n > 0 {
				r.dispatch(buf[:n], addr.IP.String())
			}
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				return errors.Wrap(err, "udp receive")
			}
		}
	})
	return g.Wait()
}

// dispatch decodes one datagram, picking the bundle or message decoder
// from the leading bytes.
func (r *UDPReceiver) dispatch(raw []byte, senderIP string) {
	if osc.IsBundle(raw) {
		b, err := osc.ParseBundle(raw)
		if err != nil {
			r.parseErrors.Add(1)
			log.Debugf("udp: dropping bad bundle from %s: %v", senderIP, err)
			return
		}
		r.handler.HandleBundle(b, senderIP, TransportUDP)
		return
	}
	m, err := osc.ParseMessage(raw)
	if err != nil {
		r.parseErrors.Add(1)
		log.Debugf("udp: dropping bad message from %s: %v", senderIP, err)
		return
	}
	r.handler.HandleMessage(m, senderIP, TransportUDP)
}
