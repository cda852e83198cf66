package netio

import "context"

// TunDevice is the IPv6-side point-to-point endpoint: it reads and
// writes raw IPv6 packets with no link-layer framing (IFF_NO_PI), the
// way a TUN device presents point-to-point traffic. It satisfies
// xlate.TunPort and xlate.TunWriter.
type TunDevice interface {
	// Name returns the kernel-assigned interface name.
	Name() string

	// ReadPacket reads one IPv6 packet into buf.
	ReadPacket(buf []byte) (int, error)

	// WritePacket writes one IPv6 packet.
	WritePacket(ctx context.Context, packet []byte) error

	// Close releases the underlying device.
	Close() error
}
