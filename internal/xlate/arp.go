package xlate

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"
)

// arpEntryLifetime is how long a learned IP→MAC resolution remains
// valid before it must be re-requested.
const arpEntryLifetime = 300 * time.Second

// arpInitialWait is how long Request waits after sending a broadcast
// request before the first poll of the cache.
const arpInitialWait = 100 * time.Millisecond

// arpPollInterval and arpPollAttempts bound the total time Request will
// wait for a reply to land in the cache: 100ms + 100*50ms ≈ 5.1s.
const (
	arpPollInterval = 50 * time.Millisecond
	arpPollAttempts = 100
)

type arpEntry struct {
	mac     net.HardwareAddr
	expires time.Time
}

// Writer is the minimal egress capability the ARP resolver needs: write
// a complete Ethernet frame (request or reply) out the IPv4-side raw
// socket.
type Writer interface {
	WriteFrame(ctx context.Context, frame []byte) error
}

// ARPCache is the IPv4 address resolution cache and resolver (C3). A
// single instance is shared by every v6→v4 translation goroutine;
// entries expire individually after arpEntryLifetime and are reclaimed
// lazily on read, matching the source's TimedCache semantics.
type ARPCache struct {
	mu      sync.Mutex
	entries map[netip.Addr]arpEntry

	ifMAC  net.HardwareAddr
	writer Writer
	table  TableSource
	log    *slog.Logger

	metrics ARPMetrics
}

// ARPMetrics receives counters for ARP resolver activity. A nil-valued
// method set (the zero value of NoopARPMetrics) is always safe to use.
type ARPMetrics interface {
	RequestSent()
	ReplyLearned()
	ReplyServed()
	Timeout()
}

// NoopARPMetrics discards every event. It is the default when no
// metrics collector is wired in (e.g. in tests).
type NoopARPMetrics struct{}

func (NoopARPMetrics) RequestSent()  {}
func (NoopARPMetrics) ReplyLearned() {}
func (NoopARPMetrics) ReplyServed()  {}
func (NoopARPMetrics) Timeout()      {}

// NewARPCache builds an ARP cache bound to the IPv4-side interface's
// own MAC address (used as the sender address in outgoing requests and
// replies), the raw-socket writer to send them on, the mapping table
// (to gate which addresses this bridge answers for), and a logger.
func NewARPCache(ifMAC net.HardwareAddr, writer Writer, table TableSource, log *slog.Logger, metrics ARPMetrics) *ARPCache {
	if metrics == nil {
		metrics = NoopARPMetrics{}
	}

	return &ARPCache{
		entries: make(map[netip.Addr]arpEntry),
		ifMAC:   ifMAC,
		writer:  writer,
		table:   table,
		log:     log,
		metrics: metrics,
	}
}

// TryGet returns the cached MAC for addr without sending a request,
// reporting false if there is no unexpired entry.
func (c *ARPCache) TryGet(addr netip.Addr) (net.HardwareAddr, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[addr]
	if !ok {
		return nil, false
	}

	if time.Now().After(e.expires) {
		delete(c.entries, addr)
		return nil, false
	}

	return e.mac, true
}

// Set records a learned resolution, valid for arpEntryLifetime from now.
func (c *ARPCache) Set(addr netip.Addr, mac net.HardwareAddr) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[addr] = arpEntry{
		mac:     append(net.HardwareAddr(nil), mac...),
		expires: time.Now().Add(arpEntryLifetime),
	}
}

// Size returns the number of live (unexpired) entries currently held,
// for metrics/introspection only.
func (c *ARPCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	n := 0

	for _, e := range c.entries {
		if !now.After(e.expires) {
			n++
		}
	}

	return n
}

// Snapshot returns a copy of the live (unexpired) entries with their
// remaining TTL, for the debug HTTP surface. Never called from the hot
// path.
func (c *ARPCache) Snapshot() []ARPEntryView {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	views := make([]ARPEntryView, 0, len(c.entries))

	for addr, e := range c.entries {
		if now.After(e.expires) {
			continue
		}

		views = append(views, ARPEntryView{
			Addr:      addr,
			MAC:       e.mac.String(),
			RemainTTL: e.expires.Sub(now),
		})
	}

	return views
}

// ARPEntryView is a point-in-time, copied view of one cache entry.
type ARPEntryView struct {
	Addr      netip.Addr
	MAC       string
	RemainTTL time.Duration
}

// Request resolves dstAddr to a MAC address, blocking the calling
// translation goroutine (never the reader loop) until a reply is
// learned or the resolution times out (~5.1s: a 100ms initial wait
// plus up to 100 polls spaced 50ms apart). srcAddr is the IPv4 address
// to claim as the requester.
//
// Each concurrent caller races to broadcast its own request and polls
// independently; the cache has no per-waiter signaling. Bursts of
// lookups to the same destination therefore produce redundant
// broadcasts, which is simpler than coordinating waiters and cheap
// given how rarely a fresh resolution is needed once warmed up.
func (c *ARPCache) Request(ctx context.Context, srcAddr, dstAddr netip.Addr) (net.HardwareAddr, bool) {
	if mac, ok := c.TryGet(dstAddr); ok {
		return mac, true
	}

	if err := c.sendRequest(ctx, srcAddr, dstAddr); err != nil {
		c.log.WarnContext(ctx, "failed to send arp request", "dst", dstAddr, "error", err)
		return nil, false
	}

	c.metrics.RequestSent()

	if !sleepCtx(ctx, arpInitialWait) {
		return nil, false
	}

	for i := 0; i < arpPollAttempts; i++ {
		if mac, ok := c.TryGet(dstAddr); ok {
			return mac, true
		}

		if !sleepCtx(ctx, arpPollInterval) {
			return nil, false
		}
	}

	c.metrics.Timeout()
	c.log.DebugContext(ctx, "arp resolution timed out", "dst", dstAddr)

	return nil, false
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *ARPCache) sendRequest(ctx context.Context, srcAddr, dstAddr netip.Addr) error {
	frame, err := c.buildFrame(net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, ARPPacket{
		Opcode:    ARPOpRequest,
		SenderMAC: c.ifMAC,
		SenderIP:  net.IP(srcAddr.AsSlice()),
		TargetMAC: make(net.HardwareAddr, MACLen),
		TargetIP:  net.IP(dstAddr.AsSlice()),
	})
	if err != nil {
		return err
	}

	return c.writer.WriteFrame(ctx, frame)
}

func (c *ARPCache) buildFrame(dstMAC net.HardwareAddr, arp ARPPacket) ([]byte, error) {
	frame := make([]byte, EthernetHeaderSize+ARPHeaderLen)

	if err := EncodeEthernet(frame, dstMAC, c.ifMAC, EtherTypeARP); err != nil {
		return nil, fmt.Errorf("build arp frame: %w", err)
	}

	if err := EncodeARP(frame[EthernetHeaderSize:], arp); err != nil {
		return nil, fmt.Errorf("build arp frame: %w", err)
	}

	return frame, nil
}

// ParseARP ingests an ARP packet observed on the IPv4 side: a Reply is
// learned into the cache; a Request is answered with a unicast Reply
// only when sendReply is true and the mapping table claims the
// requested address, and is otherwise silently ignored.
func (c *ARPCache) ParseARP(ctx context.Context, arp ARPPacket, sendReply bool) error {
	if arp.Opcode != ARPOpReply {
		if !sendReply {
			c.log.DebugContext(ctx, "arp reply disabled, ignoring request")
			return nil
		}

		return c.replyARP(ctx, arp)
	}

	addr, ok := netip.AddrFromSlice(arp.SenderIP.To4())
	if !ok {
		return nil
	}

	c.Set(addr, arp.SenderMAC)
	c.metrics.ReplyLearned()
	c.log.DebugContext(ctx, "learned arp resolution", "addr", addr, "mac", arp.SenderMAC)

	return nil
}

func (c *ARPCache) replyARP(ctx context.Context, req ARPPacket) error {
	who, ok := netip.AddrFromSlice(req.TargetIP.To4())
	if !ok || !c.table.FindV4ByLocal(who) {
		c.log.DebugContext(ctx, "arp request for address we do not serve", "who", who)
		return nil
	}

	c.metrics.ReplyServed()

	frame, err := c.buildFrame(req.SenderMAC, ARPPacket{
		Opcode:    ARPOpReply,
		SenderMAC: c.ifMAC,
		SenderIP:  req.TargetIP,
		TargetMAC: req.SenderMAC,
		TargetIP:  req.SenderIP,
	})
	if err != nil {
		return err
	}

	return c.writer.WriteFrame(ctx, frame)
}
