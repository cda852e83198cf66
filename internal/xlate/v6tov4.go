package xlate

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/netip"
)

// Metrics receives per-packet translation outcomes from both
// directions. A nil value is never passed to a Translator; callers that
// do not want metrics use NoopMetrics.
type Metrics interface {
	Translated(direction, protocol string)
	Dropped(direction, reason string)
}

// NoopMetrics discards every event.
type NoopMetrics struct{}

func (NoopMetrics) Translated(string, string) {}
func (NoopMetrics) Dropped(string, string)    {}

const (
	// DirectionV6ToV4 labels packets flowing from the TUN (IPv6) side
	// to the raw-socket (IPv4) side.
	DirectionV6ToV4 = "v6_to_v4"

	// DirectionV4ToV6 labels the opposite direction.
	DirectionV4ToV6 = "v4_to_v6"
)

// Reasons used in Metrics.Dropped and in drop log lines, stable across
// releases since they are load-bearing labels on exported metrics.
const (
	ReasonParseError          = "parse_error"
	ReasonUnsupportedProtocol = "unsupported_protocol"
	ReasonNoMapping           = "no_mapping"
	ReasonARPTimeout          = "arp_timeout"
	ReasonBufferTooSmall      = "buffer_too_small"
)

// TunPort is the capability the v6→v4 translator needs from the TUN
// side: read one IPv6 packet (no link-layer framing).
type TunPort interface {
	ReadPacket(buf []byte) (int, error)
}

// RawPort is the capability both translators need from the raw-socket
// side: read and write complete Ethernet frames. It also satisfies
// xlate.Writer, so the same value can back the ARP cache.
type RawPort interface {
	ReadFrame(buf []byte) (int, error)
	WriteFrame(ctx context.Context, frame []byte) error
}

// TunWriter is the capability the v4→v6 translator needs from the TUN
// side: write one IPv6 packet.
type TunWriter interface {
	WritePacket(ctx context.Context, packet []byte) error
}

// V6ToV4 is the C4 translator: it reads IPv6 packets from the TUN
// device, rewrites matching ones into IPv4 Ethernet frames, resolves
// the next-hop MAC via the shared ARP cache, and writes them to the
// raw socket. A new goroutine is spawned per packet so that ARP
// resolution on one flow never blocks the reader from picking up the
// next packet.
type V6ToV4 struct {
	Tun    TunPort
	Raw    RawPort
	IfMAC  net.HardwareAddr
	Table  TableSource
	ARP    *ARPCache
	Log    *slog.Logger
	Metric Metrics
}

// Run reads from Tun until ctx is cancelled or a fatal read error
// occurs. Per-packet errors are logged and dropped; they never
// terminate the loop.
func (t *V6ToV4) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		bufp := FramePool.Get().(*[]byte)
		buf := *bufp

		n, err := t.Tun.ReadPacket(buf)
		if err != nil {
			FramePool.Put(bufp)

			if ctx.Err() != nil {
				return ctx.Err()
			}

			return err
		}

		packet := append([]byte(nil), buf[:n]...)
		FramePool.Put(bufp)

		go func() {
			if err := t.translate(ctx, packet); err != nil {
				t.Log.DebugContext(ctx, "dropped v6 packet", "error", err)
			}
		}()
	}
}

func (t *V6ToV4) translate(ctx context.Context, packet []byte) error {
	metrics := t.Metric
	if metrics == nil {
		metrics = NoopMetrics{}
	}

	hdr, err := DecodeIPv6(packet)
	if err != nil {
		metrics.Dropped(DirectionV6ToV4, ReasonParseError)
		return err
	}

	if hdr.NextHeader != ProtoUDP && hdr.NextHeader != ProtoTCP {
		metrics.Dropped(DirectionV6ToV4, ReasonUnsupportedProtocol)
		return errors.New("unsupported next header")
	}

	srcV6, ok := netip.AddrFromSlice(hdr.SrcIP.To16())
	if !ok {
		return errors.New("malformed ipv6 source")
	}

	dstV6, ok := netip.AddrFromSlice(hdr.DstIP.To16())
	if !ok {
		return errors.New("malformed ipv6 destination")
	}

	mapped, ok := t.Table.FindV6(srcV6, dstV6)
	if !ok {
		metrics.Dropped(DirectionV6ToV4, ReasonNoMapping)
		return errors.New("no mapping for ipv6 pair")
	}

	arpTarget := mapped.Dst
	if mapped.GW.IsValid() {
		arpTarget = mapped.GW
	}

	dstMAC, ok := t.ARP.Request(ctx, mapped.Src, arpTarget)
	if !ok {
		metrics.Dropped(DirectionV6ToV4, ReasonARPTimeout)
		return errors.New("arp resolution timed out")
	}

	payload := packet[IPv6HeaderLen:]
	if int(hdr.PayloadLen) < len(payload) {
		payload = payload[:hdr.PayloadLen]
	}

	var frame []byte
	var proto string

	switch hdr.NextHeader {
	case ProtoUDP:
		frame, err = t.buildUDPFrame(dstMAC, mapped, payload)
		proto = "udp"
	case ProtoTCP:
		frame, err = t.buildTCPFrame(dstMAC, mapped, payload)
		proto = "tcp"
	}

	if err != nil {
		metrics.Dropped(DirectionV6ToV4, ReasonParseError)
		return err
	}

	if err := t.Raw.WriteFrame(ctx, frame); err != nil {
		return err
	}

	metrics.Translated(DirectionV6ToV4, proto)

	return nil
}

func (t *V6ToV4) buildUDPFrame(dstMAC net.HardwareAddr, mapped V4Pair, udpSegment []byte) ([]byte, error) {
	udpHdr, err := DecodeUDP(udpSegment)
	if err != nil {
		return nil, err
	}

	payload := udpSegment[UDPHeaderLen:]
	if int(udpHdr.Length) > UDPHeaderLen && int(udpHdr.Length)-UDPHeaderLen <= len(payload) {
		payload = payload[:int(udpHdr.Length)-UDPHeaderLen]
	}

	frame := make([]byte, EthernetHeaderSize+IPv4HeaderLen+UDPHeaderLen+len(payload))

	if err := EncodeEthernet(frame, dstMAC, t.IfMAC, EtherTypeIPv4); err != nil {
		return nil, err
	}

	ipOff := EthernetHeaderSize
	udpOff := ipOff + IPv4HeaderLen

	src4 := net.IP(mapped.Src.AsSlice())
	dst4 := net.IP(mapped.Dst.AsSlice())

	if _, err := EncodeIPv4(frame[ipOff:], src4, dst4, ProtoUDP, UDPHeaderLen+len(payload)); err != nil {
		return nil, err
	}

	pseudo := PseudoHeader{SrcIP: src4, DstIP: dst4}
	if err := EncodeUDP(frame[udpOff:], udpHdr.SrcPort, udpHdr.DstPort, payload, pseudo); err != nil {
		return nil, err
	}

	return frame, nil
}

func (t *V6ToV4) buildTCPFrame(dstMAC net.HardwareAddr, mapped V4Pair, tcpSegment []byte) ([]byte, error) {
	if _, err := TCPDataOffset(tcpSegment); err != nil {
		return nil, err
	}

	frame := make([]byte, EthernetHeaderSize+IPv4HeaderLen+len(tcpSegment))

	if err := EncodeEthernet(frame, dstMAC, t.IfMAC, EtherTypeIPv4); err != nil {
		return nil, err
	}

	ipOff := EthernetHeaderSize
	tcpOff := ipOff + IPv4HeaderLen

	src4 := net.IP(mapped.Src.AsSlice())
	dst4 := net.IP(mapped.Dst.AsSlice())

	if _, err := EncodeIPv4(frame[ipOff:], src4, dst4, ProtoTCP, len(tcpSegment)); err != nil {
		return nil, err
	}

	copy(frame[tcpOff:], tcpSegment)

	pseudo := PseudoHeader{SrcIP: src4, DstIP: dst4}
	if err := RewriteTCPChecksum(frame[tcpOff:], pseudo); err != nil {
		return nil, err
	}

	return frame, nil
}
