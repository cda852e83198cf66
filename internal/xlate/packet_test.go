package xlate_test

import (
	"bytes"
	"net"
	"testing"

	"github.com/nyantec/nyat64/internal/xlate"
)

func TestEthernetRoundTrip(t *testing.T) {
	t.Parallel()

	dst := net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	src := net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}

	buf := make([]byte, xlate.EthernetHeaderSize)
	if err := xlate.EncodeEthernet(buf, dst, src, xlate.EtherTypeIPv4); err != nil {
		t.Fatalf("EncodeEthernet: %v", err)
	}

	hdr, err := xlate.DecodeEthernet(buf)
	if err != nil {
		t.Fatalf("DecodeEthernet: %v", err)
	}

	if !bytes.Equal(hdr.DstMAC, dst) || !bytes.Equal(hdr.SrcMAC, src) {
		t.Fatalf("mac mismatch: got dst=%v src=%v", hdr.DstMAC, hdr.SrcMAC)
	}

	if hdr.EtherType != xlate.EtherTypeIPv4 {
		t.Fatalf("ethertype mismatch: got %#x", hdr.EtherType)
	}
}

func TestARPRoundTrip(t *testing.T) {
	t.Parallel()

	pkt := xlate.ARPPacket{
		Opcode:    xlate.ARPOpRequest,
		SenderMAC: net.HardwareAddr{1, 2, 3, 4, 5, 6},
		SenderIP:  net.IPv4(192, 0, 2, 1),
		TargetMAC: make(net.HardwareAddr, 6),
		TargetIP:  net.IPv4(192, 0, 2, 2),
	}

	buf := make([]byte, xlate.ARPHeaderLen)
	if err := xlate.EncodeARP(buf, pkt); err != nil {
		t.Fatalf("EncodeARP: %v", err)
	}

	got, err := xlate.DecodeARP(buf)
	if err != nil {
		t.Fatalf("DecodeARP: %v", err)
	}

	if got.Opcode != pkt.Opcode {
		t.Fatalf("opcode mismatch: got %d want %d", got.Opcode, pkt.Opcode)
	}

	if !got.SenderIP.Equal(pkt.SenderIP) || !got.TargetIP.Equal(pkt.TargetIP) {
		t.Fatalf("ip mismatch: got sender=%v target=%v", got.SenderIP, got.TargetIP)
	}
}

func TestDecodeARPRejectsNonEthernetIPv4(t *testing.T) {
	t.Parallel()

	buf := make([]byte, xlate.ARPHeaderLen)
	// hardware type 6 (IEEE 802), not Ethernet(1).
	buf[1] = 6

	if _, err := xlate.DecodeARP(buf); err == nil {
		t.Fatal("expected error for non-ethernet arp packet")
	}
}

func TestIPv4HeaderRoundTrip(t *testing.T) {
	t.Parallel()

	src := net.IPv4(10, 0, 0, 1)
	dst := net.IPv4(10, 0, 0, 2)
	payload := []byte("hello")

	buf := make([]byte, xlate.IPv4HeaderLen+len(payload))
	n, err := xlate.EncodeIPv4(buf, src, dst, xlate.ProtoUDP, len(payload))
	if err != nil {
		t.Fatalf("EncodeIPv4: %v", err)
	}

	copy(buf[n:], payload)

	hdr, hdrLen, err := xlate.DecodeIPv4(buf)
	if err != nil {
		t.Fatalf("DecodeIPv4: %v", err)
	}

	if hdrLen != xlate.IPv4HeaderLen {
		t.Fatalf("header length mismatch: got %d", hdrLen)
	}

	if !hdr.SrcIP.Equal(src) || !hdr.DstIP.Equal(dst) {
		t.Fatalf("address mismatch: got src=%v dst=%v", hdr.SrcIP, hdr.DstIP)
	}

	if hdr.Protocol != xlate.ProtoUDP {
		t.Fatalf("protocol mismatch: got %d", hdr.Protocol)
	}
}

func TestIPv4ChecksumValidatesToZero(t *testing.T) {
	t.Parallel()

	buf := make([]byte, xlate.IPv4HeaderLen)
	if _, err := xlate.EncodeIPv4(buf, net.IPv4(1, 2, 3, 4), net.IPv4(5, 6, 7, 8), xlate.ProtoTCP, 0); err != nil {
		t.Fatalf("EncodeIPv4: %v", err)
	}

	var sum uint32
	for i := 0; i+1 < len(buf); i += 2 {
		sum += uint32(buf[i])<<8 | uint32(buf[i+1])
	}

	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}

	if sum != 0xFFFF {
		t.Fatalf("header checksum does not validate: folded sum %#x", sum)
	}
}

func TestIPv6HeaderRoundTrip(t *testing.T) {
	t.Parallel()

	src := net.ParseIP("2001:db8::1")
	dst := net.ParseIP("2001:db8::2")
	payload := []byte("udp-payload")

	buf := make([]byte, xlate.IPv6HeaderLen+len(payload))
	if _, err := xlate.EncodeIPv6(buf, src, dst, xlate.ProtoUDP, len(payload)); err != nil {
		t.Fatalf("EncodeIPv6: %v", err)
	}

	copy(buf[xlate.IPv6HeaderLen:], payload)

	hdr, err := xlate.DecodeIPv6(buf)
	if err != nil {
		t.Fatalf("DecodeIPv6: %v", err)
	}

	if !hdr.SrcIP.Equal(src) || !hdr.DstIP.Equal(dst) {
		t.Fatalf("address mismatch: got src=%v dst=%v", hdr.SrcIP, hdr.DstIP)
	}

	if hdr.NextHeader != xlate.ProtoUDP {
		t.Fatalf("next header mismatch: got %d", hdr.NextHeader)
	}

	if int(hdr.PayloadLen) != len(payload) {
		t.Fatalf("payload length mismatch: got %d want %d", hdr.PayloadLen, len(payload))
	}
}

func TestUDPChecksumNeverZero(t *testing.T) {
	t.Parallel()

	src := net.IPv4(192, 0, 2, 1)
	dst := net.IPv4(192, 0, 2, 2)
	payload := []byte{}

	buf := make([]byte, xlate.UDPHeaderLen)
	err := xlate.EncodeUDP(buf, 1234, 5678, payload, xlate.PseudoHeader{SrcIP: src, DstIP: dst})
	if err != nil {
		t.Fatalf("EncodeUDP: %v", err)
	}

	checksum := uint16(buf[6])<<8 | uint16(buf[7])
	if checksum == 0 {
		t.Fatal("a computed-zero checksum must be transmitted as 0xFFFF, not 0")
	}
}

func TestTCPDataOffsetRejectsShortHeader(t *testing.T) {
	t.Parallel()

	buf := make([]byte, 10)
	if _, err := xlate.TCPDataOffset(buf); err == nil {
		t.Fatal("expected error for short tcp header")
	}
}

func TestRewriteTCPChecksumPreservesPayload(t *testing.T) {
	t.Parallel()

	segment := make([]byte, xlate.TCPMinHeaderLen+4)
	segment[12] = 5 << 4 // data offset = 5 (20 bytes, no options)
	copy(segment[xlate.TCPMinHeaderLen:], []byte("data"))

	pseudo := xlate.PseudoHeader{SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2)}
	if err := xlate.RewriteTCPChecksum(segment, pseudo); err != nil {
		t.Fatalf("RewriteTCPChecksum: %v", err)
	}

	if !bytes.Equal(segment[xlate.TCPMinHeaderLen:], []byte("data")) {
		t.Fatalf("payload corrupted: got %q", segment[xlate.TCPMinHeaderLen:])
	}
}
