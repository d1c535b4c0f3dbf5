package bridge

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tbeswick/wfsbridge/osc"
)

// Limiter is the per-target outbound scheduler. Messages queue under a
// coalescing key and a fixed-rate tick flushes them: a target whose
// minimum interval has elapsed gets all of its pending keys in that
// tick. The limiter bounds the frequency of ticks per target, not the
// number of messages per tick, so a burst of distinct keys goes out
// together once the target is eligible.
//
// Within one target only the most recent message per key is ever in
// flight; ordering between different keys is unspecified.
type Limiter struct {
	send             func(target int, m *osc.Message) bool
	broadcastTargets func() []int
	interval         time.Duration

	mu        sync.Mutex
	queues    [MaxTargets]map[string]*osc.Message
	broadcast map[string]*osc.Message
	lastFlush [MaxTargets + 1]time.Time

	sent      atomic.Int64
	coalesced atomic.Int64
}

// NewLimiter creates a limiter delivering through send. The broadcast
// queue fans out to the targets listed by broadcastTargets at flush
// time.
func NewLimiter(interval time.Duration, send func(int, *osc.Message) bool, broadcastTargets func() []int) *Limiter {
	return &Limiter{
		send:             send,
		broadcastTargets: broadcastTargets,
		interval:         interval,
		broadcast:        make(map[string]*osc.Message),
	}
}

// coalesceKey scopes coalescing to the channel when the first argument
// is an integer, so updates for different channels never displace each
// other.
func coalesceKey(m *osc.Message) string {
	if ch, ok := m.Int(0); ok {
		return fmt.Sprintf("%s:%d", m.Address, ch)
	}
	return m.Address
}

// Queue schedules m for target. A message already pending under the
// same key is replaced and counted as coalesced, not sent.
func (l *Limiter) Queue(target int, m *osc.Message) {
	if target < 0 || target >= MaxTargets {
		return
	}
	key := coalesceKey(m)
	l.mu.Lock()
	if l.queues[target] == nil {
		l.queues[target] = make(map[string]*osc.Message)
	}
	if _, dup := l.queues[target][key]; dup {
		l.coalesced.Add(1)
	}
	l.queues[target][key] = m
	l.mu.Unlock()
}

// QueueBroadcast schedules m for every broadcast-eligible target. The
// manager's fan-out is dialect-aware and does not use it; this is the
// surface for the controller UI to push one identical message to all
// tx-enabled targets, such as a global reset cue.
func (l *Limiter) QueueBroadcast(m *osc.Message) {
	key := coalesceKey(m)
	l.mu.Lock()
	if _, dup := l.broadcast[key]; dup {
		l.coalesced.Add(1)
	}
	l.broadcast[key] = m
	l.mu.Unlock()
}

// Run drives the flush tick until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			l.FlushAll()
			return ctx.Err()
		case now := <-ticker.C:
			l.flushAt(now)
		}
	}
}

// flushAt flushes every target whose minimum interval has elapsed.
func (l *Limiter) flushAt(now time.Time) {
	l.mu.Lock()
	var out []delivery
	for t := 0; t < MaxTargets; t++ {
		if len(l.queues[t]) == 0 || now.Sub(l.lastFlush[t]) < l.interval {
			continue
		}
		l.lastFlush[t] = now
		for _, m := range l.queues[t] {
			out = append(out, delivery{t, m})
		}
		clear(l.queues[t])
	}
	if len(l.broadcast) > 0 && now.Sub(l.lastFlush[MaxTargets]) >= l.interval {
		l.lastFlush[MaxTargets] = now
		out = l.drainBroadcastLocked(out)
	}
	l.mu.Unlock()
	l.deliver(out)
}

// FlushAll bypasses the rate gate and delivers every pending key
// exactly once. Used at shutdown.
func (l *Limiter) FlushAll() {
	l.mu.Lock()
	var out []delivery
	for t := 0; t < MaxTargets; t++ {
		for _, m := range l.queues[t] {
			out = append(out, delivery{t, m})
		}
		clear(l.queues[t])
	}
	out = l.drainBroadcastLocked(out)
	l.mu.Unlock()
	l.deliver(out)
}

type delivery struct {
	target int
	m      *osc.Message
}

func (l *Limiter) drainBroadcastLocked(out []delivery) []delivery {
	if len(l.broadcast) == 0 {
		return out
	}
	targets := l.broadcastTargets()
	for _, m := range l.broadcast {
		for _, t := range targets {
			out = append(out, delivery{t, m})
		}
	}
	clear(l.broadcast)
	return out
}

// deliver runs outside the queue lock: send ends in socket I/O.
func (l *Limiter) deliver(out []delivery) {
	for _, d := range out {
		if l.send(d.target, d.m) {
			l.sent.Add(1)
		}
	}
}

// Sent returns the number of messages delivered.
func (l *Limiter) Sent() int64 { return l.sent.Load() }

// Coalesced returns the number of queued messages displaced by a newer
// value for the same key.
func (l *Limiter) Coalesced() int64 { return l.coalesced.Load() }
