// Package netio provides the two link-layer endpoints the translator
// bridges: a point-to-point IPv6 TUN device and an IPv4 raw Ethernet
// (AF_PACKET) socket, plus the netlink-based interface administration
// both endpoints need at startup (address/MTU/up-state, MAC lookup).
package netio
