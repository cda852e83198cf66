//go:build linux

package netio

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

const tunDevicePath = "/dev/net/tun"

// ifReqFlags mirrors the kernel's struct ifreq layout for the fields
// TUNSETIFF needs: a 16-byte interface name followed by a flags word.
type ifReqFlags struct {
	Name  [16]byte
	Flags uint16
	_     [22]byte // pad to sizeof(struct ifreq)
}

type linuxTunDevice struct {
	file   *os.File
	ifName string

	mu     sync.Mutex
	closed bool
}

// NewTunDevice opens (creating if necessary) a TUN interface matching
// ifPattern (e.g. "nyat64%d" to let the kernel assign a number), in
// point-to-point mode: IFF_TUN strips the Ethernet framing a TAP device
// would carry, IFF_NO_PI strips the 4-byte protocol-information header
// Linux otherwise prepends, and IFF_MULTI_QUEUE lets multiple readers
// share the device if the deployment ever needs that.
//
// As with AF_PACKET sockets, the fd is opened in blocking mode, put
// into non-blocking mode only after TUNSETIFF (the ioctl itself
// requires a blocking fd on some kernels), and only then wrapped in an
// *os.File so the Go runtime registers it with the netpoller.
func NewTunDevice(ifPattern string) (TunDevice, error) {
	fd, err := unix.Open(tunDevicePath, os.O_RDWR|syscall.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", tunDevicePath, err)
	}

	var req ifReqFlags
	copy(req.Name[:15], ifPattern)
	req.Flags = unix.IFF_TUN | unix.IFF_NO_PI | unix.IFF_MULTI_QUEUE

	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), uintptr(unix.TUNSETIFF), uintptr(unsafe.Pointer(&req))); errno != 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("ioctl(TUNSETIFF) on %s: %w", tunDevicePath, errno)
	}

	ifName := string(req.Name[:])
	if idx := strings.IndexByte(ifName, 0); idx >= 0 {
		ifName = ifName[:idx]
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set %s nonblocking: %w", tunDevicePath, err)
	}

	file := os.NewFile(uintptr(fd), tunDevicePath)

	return &linuxTunDevice{file: file, ifName: ifName}, nil
}

func (t *linuxTunDevice) Name() string {
	return t.ifName
}

func (t *linuxTunDevice) ReadPacket(buf []byte) (int, error) {
	n, err := t.file.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("read packet on %s: %w", t.ifName, err)
	}

	return n, nil
}

func (t *linuxTunDevice) WritePacket(ctx context.Context, packet []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := t.file.Write(packet); err != nil {
		return fmt.Errorf("write packet on %s: %w", t.ifName, err)
	}

	return nil
}

func (t *linuxTunDevice) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}

	t.closed = true

	if err := t.file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", t.ifName, err)
	}

	return nil
}
