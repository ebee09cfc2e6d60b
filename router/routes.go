package router

import "net/netip"

// Route is one entry in the routing table: a destination network, an
// optional gateway (the zero Addr means "directly attached", i.e. the
// destination itself is the next hop), and the egress interface name.
type Route struct {
	Dest    netip.Prefix
	Gateway netip.Addr
	Iface   string
}

// NextHop returns the IPv4 address that must be ARP-resolved to reach this
// route: the gateway if one is configured, otherwise the destination
// address itself (directly attached network).
func (rt *Route) NextHop(dst netip.Addr) netip.Addr {
	if rt.Gateway.IsValid() && !rt.Gateway.IsUnspecified() {
		return rt.Gateway
	}
	return dst
}

// Routes is the immutable routing table, component C.
type Routes struct {
	list []Route
}

// NewRoutes builds a routing table from a fixed list of routes, in the
// order they should be tie-broken (typically configuration file order).
func NewRoutes(routes []Route) *Routes {
	return &Routes{list: routes}
}

// LongestMatch performs a linear scan for the route with the longest
// matching prefix for ip, breaking ties by earliest configuration order.
func (rt *Routes) LongestMatch(ip netip.Addr) (*Route, bool) {
	best := -1
	bestLen := -1
	for i := range rt.list {
		r := &rt.list[i]
		if r.Dest.Contains(ip) && r.Dest.Bits() > bestLen {
			bestLen = r.Dest.Bits()
			best = i
		}
	}
	if best < 0 {
		return nil, false
	}
	return &rt.list[best], true
}
