package netio

import "net"

// InterfaceAdmin is the administrative surface used once at startup to
// bring an interface into the state the translator expects: address
// assigned, MTU set, link up. Implemented with netlink on Linux rather
// than hand-rolled ioctls.
type InterfaceAdmin interface {
	// AddAddress assigns ip/prefixLen to the named interface.
	AddAddress(ifName string, ip net.IP, prefixLen int) error

	// SetMTU sets the named interface's MTU.
	SetMTU(ifName string, mtu int) error

	// SetUp brings the named interface administratively up.
	SetUp(ifName string) error

	// HardwareAddr returns the named interface's MAC address.
	HardwareAddr(ifName string) (net.HardwareAddr, error)
}
