//go:build linux

package netio

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// linuxRawSocket implements RawSocket using an AF_PACKET/SOCK_RAW socket
// bound to a single interface. The socket fd is wrapped in an *os.File
// in non-blocking mode so that blocking Read/Write calls suspend via the
// Go runtime's netpoller rather than a kernel thread, the same trick
// used for the TUN device (see tun_linux.go).
type linuxRawSocket struct {
	file   *os.File
	ifName string

	mu     sync.Mutex
	closed bool
}

// htons converts a 16-bit value from host to network byte order, needed
// because EtherType constants here are used directly as socket() and
// sockaddr_ll protocol fields, which the kernel expects in network
// order regardless of host endianness.
func htons(v uint16) uint16 {
	return (v << 8) | (v >> 8)
}

// NewRawSocket opens an AF_PACKET/SOCK_RAW socket that sends and
// receives every Ethernet frame (ETH_P_ALL) on the named interface,
// including the Ethernet header.
func NewRawSocket(ifName string) (RawSocket, error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(unix.ETH_P_ALL)))
	if err != nil {
		return nil, fmt.Errorf("open raw socket: %w", err)
	}

	iface, err := net.InterfaceByName(ifName)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: %s: %w", ErrInterfaceNotFound, ifName, err)
	}

	addr := unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  iface.Index,
	}

	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind raw socket to %s: %w", ifName, err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set raw socket nonblocking: %w", err)
	}

	file := os.NewFile(uintptr(fd), "raw:"+ifName)

	return &linuxRawSocket{file: file, ifName: ifName}, nil
}

// ReadFrame reads one Ethernet frame, including its header, into buf.
func (s *linuxRawSocket) ReadFrame(buf []byte) (int, error) {
	n, err := s.file.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("read frame on %s: %w", s.ifName, err)
	}

	return n, nil
}

// WriteFrame writes a complete Ethernet frame. ctx is honored only to
// the extent that no write is attempted when ctx is already done; the
// underlying write itself is not individually cancellable.
func (s *linuxRawSocket) WriteFrame(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := s.file.Write(frame); err != nil {
		return fmt.Errorf("write frame on %s: %w", s.ifName, err)
	}

	return nil
}

// Close releases the underlying socket. Safe to call more than once.
func (s *linuxRawSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	if err := s.file.Close(); err != nil {
		return fmt.Errorf("close raw socket on %s: %w", s.ifName, err)
	}

	return nil
}

// interfaceHardwareAddr reads the MAC address of the named interface,
// used once at startup to populate the ARP cache's sender address.
func interfaceHardwareAddr(ifName string) (net.HardwareAddr, error) {
	iface, err := net.InterfaceByName(ifName)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInterfaceNotFound, ifName, err)
	}

	return iface.HardwareAddr, nil
}
