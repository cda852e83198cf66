package xlate

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/netip"
)

// V4ToV6 is the C5 translator: it reads Ethernet frames from the raw
// socket, hands ARP frames to the shared ARP cache, and rewrites
// matching IPv4 frames into IPv6 packets written to the TUN device. As
// with V6ToV4, each frame is handled in its own goroutine so a single
// slow/blocked translation never stalls the reader.
type V4ToV6 struct {
	Raw       RawPort
	TunWriter TunWriter
	Table     TableSource
	ARP       *ARPCache
	SendARP   bool
	Log       *slog.Logger
	Metric    Metrics
}

// Run reads from Raw until ctx is cancelled or a fatal read error
// occurs.
func (t *V4ToV6) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		bufp := FramePool.Get().(*[]byte)
		buf := *bufp

		n, err := t.Raw.ReadFrame(buf)
		if err != nil {
			FramePool.Put(bufp)

			if ctx.Err() != nil {
				return ctx.Err()
			}

			return err
		}

		frame := append([]byte(nil), buf[:n]...)
		FramePool.Put(bufp)

		go func() {
			if err := t.translate(ctx, frame); err != nil {
				t.Log.DebugContext(ctx, "dropped v4 frame", "error", err)
			}
		}()
	}
}

func (t *V4ToV6) translate(ctx context.Context, frame []byte) error {
	metrics := t.Metric
	if metrics == nil {
		metrics = NoopMetrics{}
	}

	eth, err := DecodeEthernet(frame)
	if err != nil {
		metrics.Dropped(DirectionV4ToV6, ReasonParseError)
		return err
	}

	payload := frame[EthernetHeaderSize:]

	if eth.EtherType == EtherTypeARP {
		arp, err := DecodeARP(payload)
		if err != nil {
			return err
		}

		return t.ARP.ParseARP(ctx, arp, t.SendARP)
	}

	if eth.EtherType != EtherTypeIPv4 {
		metrics.Dropped(DirectionV4ToV6, ReasonUnsupportedProtocol)
		return errors.New("unsupported ethertype")
	}

	hdr, hdrLen, err := DecodeIPv4(payload)
	if err != nil {
		metrics.Dropped(DirectionV4ToV6, ReasonParseError)
		return err
	}

	if hdr.Protocol != ProtoUDP && hdr.Protocol != ProtoTCP {
		metrics.Dropped(DirectionV4ToV6, ReasonUnsupportedProtocol)
		return errors.New("unsupported next level protocol")
	}

	wireSrc, ok := netip.AddrFromSlice(hdr.SrcIP.To4())
	if !ok {
		return errors.New("malformed ipv4 source")
	}

	wireDst, ok := netip.AddrFromSlice(hdr.DstIP.To4())
	if !ok {
		return errors.New("malformed ipv4 destination")
	}

	srcV6, dstV6, ok := t.Table.FindV4(wireSrc, wireDst)
	if !ok {
		metrics.Dropped(DirectionV4ToV6, ReasonNoMapping)
		return errors.New("no mapping for ipv4 pair")
	}

	if int(hdr.TotalLen) < hdrLen {
		metrics.Dropped(DirectionV4ToV6, ReasonParseError)
		return errors.New("ipv4 total length shorter than header")
	}

	segment := payload[hdrLen:]
	if int(hdr.TotalLen)-hdrLen < len(segment) {
		segment = segment[:int(hdr.TotalLen)-hdrLen]
	}

	var packet []byte
	var proto string

	switch hdr.Protocol {
	case ProtoUDP:
		packet, err = buildUDPPacket(srcV6, dstV6, segment)
		proto = "udp"
	case ProtoTCP:
		packet, err = buildTCPPacket(srcV6, dstV6, segment)
		proto = "tcp"
	}

	if err != nil {
		metrics.Dropped(DirectionV4ToV6, ReasonParseError)
		return err
	}

	if err := t.TunWriter.WritePacket(ctx, packet); err != nil {
		return err
	}

	metrics.Translated(DirectionV4ToV6, proto)

	return nil
}

func buildUDPPacket(src, dst netip.Addr, udpSegment []byte) ([]byte, error) {
	udpHdr, err := DecodeUDP(udpSegment)
	if err != nil {
		return nil, err
	}

	payload := udpSegment[UDPHeaderLen:]
	if int(udpHdr.Length) > UDPHeaderLen && int(udpHdr.Length)-UDPHeaderLen <= len(payload) {
		payload = payload[:int(udpHdr.Length)-UDPHeaderLen]
	}

	packet := make([]byte, IPv6HeaderLen+UDPHeaderLen+len(payload))

	srcIP := net.IP(src.AsSlice())
	dstIP := net.IP(dst.AsSlice())

	if _, err := EncodeIPv6(packet, srcIP, dstIP, ProtoUDP, UDPHeaderLen+len(payload)); err != nil {
		return nil, err
	}

	pseudo := PseudoHeader{SrcIP: srcIP, DstIP: dstIP}
	if err := EncodeUDP(packet[IPv6HeaderLen:], udpHdr.SrcPort, udpHdr.DstPort, payload, pseudo); err != nil {
		return nil, err
	}

	return packet, nil
}

func buildTCPPacket(src, dst netip.Addr, tcpSegment []byte) ([]byte, error) {
	if _, err := TCPDataOffset(tcpSegment); err != nil {
		return nil, err
	}

	packet := make([]byte, IPv6HeaderLen+len(tcpSegment))

	srcIP := net.IP(src.AsSlice())
	dstIP := net.IP(dst.AsSlice())

	if _, err := EncodeIPv6(packet, srcIP, dstIP, ProtoTCP, len(tcpSegment)); err != nil {
		return nil, err
	}

	copy(packet[IPv6HeaderLen:], tcpSegment)

	pseudo := PseudoHeader{SrcIP: srcIP, DstIP: dstIP}
	if err := RewriteTCPChecksum(packet[IPv6HeaderLen:], pseudo); err != nil {
		return nil, err
	}

	return packet, nil
}
