// Package router implements the packet processing pipeline, the interface
// registry, the routing table, and the ARP sweeper: the components that tie
// the wire codec (ethernet/arp/ipv4/icmpv4) and the ARP cache (arp) into a
// running IPv4 router.
package router

import "net/netip"

// Interface describes one local virtual network interface: its name, link
// layer address, and assigned IPv4 network. The set of interfaces is fixed
// at startup and never mutated afterward, so Interfaces requires no locking.
type Interface struct {
	Name string
	HW   [6]byte
	Addr netip.Prefix // interface IPv4 address with its subnet mask length
}

// IP returns the interface's own IPv4 address.
func (ifc *Interface) IP() netip.Addr { return ifc.Addr.Addr() }

// Interfaces is the read-only interface registry, component B.
type Interfaces struct {
	list []*Interface
}

// NewInterfaces builds a registry from a fixed list of interfaces.
func NewInterfaces(ifaces []*Interface) *Interfaces {
	return &Interfaces{list: ifaces}
}

// All returns the full interface list, in configuration order.
func (r *Interfaces) All() []*Interface { return r.list }

// LookupByName returns the interface with the given name, if any.
func (r *Interfaces) LookupByName(name string) (*Interface, bool) {
	for _, ifc := range r.list {
		if ifc.Name == name {
			return ifc, true
		}
	}
	return nil, false
}

// IPMatchesAnyLocal returns the interface whose own address equals ip, if any.
func (r *Interfaces) IPMatchesAnyLocal(ip netip.Addr) (*Interface, bool) {
	for _, ifc := range r.list {
		if ifc.IP() == ip {
			return ifc, true
		}
	}
	return nil, false
}
