//go:build linux

package netio

import (
	"fmt"
	"net"

	"github.com/vishvananda/netlink"
)

// linuxInterfaceAdmin implements InterfaceAdmin via netlink, the same
// mechanism used by ip(8): one route-socket request per operation,
// rather than the per-field SIOCSIF* ioctls an older implementation
// would reach for.
type linuxInterfaceAdmin struct{}

// NewInterfaceAdmin returns the Linux netlink-backed InterfaceAdmin.
func NewInterfaceAdmin() InterfaceAdmin {
	return linuxInterfaceAdmin{}
}

func (linuxInterfaceAdmin) AddAddress(ifName string, ip net.IP, prefixLen int) error {
	link, err := netlink.LinkByName(ifName)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInterfaceNotFound, ifName, err)
	}

	bits := net.IPv4len * 8
	if ip.To4() == nil {
		bits = net.IPv6len * 8
	}

	addr := &netlink.Addr{IPNet: &net.IPNet{IP: ip, Mask: net.CIDRMask(prefixLen, bits)}}

	if err := netlink.AddrAdd(link, addr); err != nil {
		return fmt.Errorf("add address %s/%d to %s: %w", ip, prefixLen, ifName, err)
	}

	return nil
}

func (linuxInterfaceAdmin) SetMTU(ifName string, mtu int) error {
	link, err := netlink.LinkByName(ifName)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInterfaceNotFound, ifName, err)
	}

	if err := netlink.LinkSetMTU(link, mtu); err != nil {
		return fmt.Errorf("set mtu %d on %s: %w", mtu, ifName, err)
	}

	return nil
}

func (linuxInterfaceAdmin) SetUp(ifName string) error {
	link, err := netlink.LinkByName(ifName)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInterfaceNotFound, ifName, err)
	}

	if err := netlink.LinkSetUp(link); err != nil {
		return fmt.Errorf("set %s up: %w", ifName, err)
	}

	return nil
}

func (linuxInterfaceAdmin) HardwareAddr(ifName string) (net.HardwareAddr, error) {
	return interfaceHardwareAddr(ifName)
}
