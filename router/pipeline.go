package router

import (
	"log/slog"
	"net/netip"
	"sync/atomic"
	"time"

	wire "github.com/soypat/ip4router"
	"github.com/soypat/ip4router/arp"
	"github.com/soypat/ip4router/ethernet"
	"github.com/soypat/ip4router/internal"
	"github.com/soypat/ip4router/ipv4"
	"github.com/soypat/ip4router/ipv4/icmpv4"
)

// Sender transmits a fully-built frame out a named egress interface. Send
// may block; the pipeline and sweeper both treat it as synchronous.
type Sender interface {
	Send(frame []byte, iface string) error
}

// Instrumentation is the subset of internal/metrics the pipeline and
// sweeper report to. A nil Instrumentation disables metrics entirely.
type Instrumentation interface {
	PacketDropped(reason string)
	PacketForwarded()
	ICMPSent(kind string)
	ArpProbeSent()
	ArpGivenUp()
	ArpCacheHit()
	ArpCacheMiss()
}

// Router ties the wire codec, the ARP cache, the interface registry and
// the routing table into the packet processing pipeline (component F).
type Router struct {
	Ifaces  *Interfaces
	Routes  *Routes
	Cache   *arp.Cache
	Send    Sender
	Log     *slog.Logger
	Metrics Instrumentation

	nextID uint32
}

// id returns a fresh identifier for an ICMP error datagram. Called from
// whatever goroutine the I/O shim delivers a frame on, so it must not rely
// on the cache lock or any other per-call synchronization (§5: the pipeline
// is invoked from a potentially multi-threaded shim).
func (r *Router) id() uint16 {
	return uint16(atomic.AddUint32(&r.nextID, 1))
}

func (r *Router) drop(reason string, attrs ...any) {
	if r.Metrics != nil {
		r.Metrics.PacketDropped(reason)
	}
	if r.Log != nil {
		r.Log.Debug("dropping frame", append([]any{"reason", reason}, attrs...)...)
	}
}

// HandleFrame is the pipeline's entry point: handle_frame(frame_bytes,
// ingress_iface_name) in the design's terms. frame is lent by the caller;
// HandleFrame never retains a reference to it past this call (anything
// queued is deep-copied first, by arp.Cache.Queue).
func (r *Router) HandleFrame(frame []byte, ingress string) {
	efrm, err := ethernet.NewFrame(frame)
	if err != nil {
		r.drop("short-ethernet")
		return
	}
	var v wire.Validator
	efrm.ValidateSize(&v)
	if v.HasError() {
		r.drop("structural", "err", v.ErrPop())
		return
	}

	switch efrm.EtherTypeOrSize() {
	case ethernet.TypeARP:
		r.handleARP(efrm, ingress)
	case ethernet.TypeIPv4:
		r.handleIPv4(efrm, ingress)
	default:
		r.drop("unsupported-ethertype")
	}
}

func (r *Router) handleARP(efrm ethernet.Frame, ingress string) {
	const sizeEthARP = 14 + 28
	if len(efrm.RawData()) < sizeEthARP {
		r.drop("short-arp")
		return
	}
	afrm, err := arp.NewFrame(efrm.Payload())
	if err != nil {
		r.drop("short-arp")
		return
	}
	var v wire.Validator
	afrm.ValidateSize(&v)
	if v.HasError() {
		r.drop("structural-arp", "err", v.ErrPop())
		return
	}

	switch afrm.Operation() {
	case arp.OpRequest:
		r.handleARPRequest(efrm, ingress)
	case arp.OpReply:
		r.handleARPReply(efrm, ingress)
	default:
		r.drop("unsupported-arp-op")
	}
}

func (r *Router) handleARPRequest(efrm ethernet.Frame, ingress string) {
	afrm, _ := arp.NewFrame(efrm.Payload())
	_, targetIP := afrm.Target4()
	target := netip.AddrFrom4(*targetIP)

	ifc, ok := r.Ifaces.IPMatchesAnyLocal(target)
	if !ok {
		return // not for us; this router does no proxy-ARP.
	}

	BuildARPReply(efrm.RawData(), ifc.HW, ifc.IP())
	if err := r.Send.Send(efrm.RawData(), ingress); err != nil && r.Log != nil {
		r.Log.Warn("send failed", "err", err, "iface", ingress)
	}

	// Opportunistic learning: the requester just told us its own mapping.
	afrm2, _ := arp.NewFrame(efrm.Payload())
	reqHW, reqIP := afrm2.Target4() // post-swap, target is now the original requester
	r.Cache.Insert(*reqHW, netip.AddrFrom4(*reqIP))
}

func (r *Router) handleARPReply(efrm ethernet.Frame, ingress string) {
	afrm, _ := arp.NewFrame(efrm.Payload())
	senderHW, senderIP := afrm.Sender4()
	targetHW, _ := afrm.Target4()
	if *senderIP == [4]byte{} || *targetHW == ethernet.BroadcastAddr() {
		r.drop("sanity-arp-reply", internal.SlogAddr6("sender_hw", senderHW), internal.SlogAddr4("sender_ip", senderIP))
		return
	}

	ip := netip.AddrFrom4(*senderIP)
	req := r.Cache.Insert(*senderHW, ip)
	if req == nil {
		return
	}
	for _, pkt := range req.Pending {
		pefrm, err := ethernet.NewFrame(pkt.Frame)
		if err != nil {
			continue
		}
		pefrm.SetAddrs(*senderHW, *targetHW)
		if err := r.Send.Send(pkt.Frame, pkt.Iface); err != nil && r.Log != nil {
			r.Log.Warn("send failed", "err", err, "iface", pkt.Iface)
		}
	}
	r.Cache.Destroy(req)
}

func (r *Router) handleIPv4(efrm ethernet.Frame, ingress string) {
	payload := efrm.Payload()
	ifrm, err := ipv4.NewFrame(payload)
	if err != nil || len(payload) < 20 {
		r.drop("short-ip")
		return
	}
	var v wire.Validator
	ifrm.ValidateSize(&v)
	if v.HasError() {
		r.drop("structural-ip", "err", v.ErrPop())
		return
	}
	gotCRC := ifrm.CRC()
	ifrm.SetCRC(0)
	wantCRC := ifrm.CalculateHeaderCRC()
	ifrm.SetCRC(gotCRC)
	if gotCRC != wantCRC {
		r.drop("bad-ip-checksum", internal.SlogAddr4("src", ifrm.SourceAddr()), internal.SlogAddr4("dst", ifrm.DestinationAddr()))
		return
	}

	dst := netip.AddrFrom4(*ifrm.DestinationAddr())
	if ifc, ok := r.Ifaces.IPMatchesAnyLocal(dst); ok {
		r.handleLocal(efrm, ifrm, ifc, ingress)
		return
	}
	r.forward(efrm, ifrm)
}

func (r *Router) handleLocal(efrm ethernet.Frame, ifrm ipv4.Frame, ifc *Interface, ingress string) {
	switch ifrm.Protocol() {
	case wire.IPProtoICMP:
		r.handleLocalICMP(efrm, ifrm, ifc, ingress)
	case wire.IPProtoTCP, wire.IPProtoUDP:
		r.sendICMPError(efrm, ifrm, icmpv4.TypeDestinationUnreachable, uint8(icmpv4.CodePortUnreachable), ifc)
	default:
		r.sendICMPError(efrm, ifrm, icmpv4.TypeDestinationUnreachable, uint8(icmpv4.CodeProtoUnreachable), ifc)
	}
}

func (r *Router) handleLocalICMP(efrm ethernet.Frame, ifrm ipv4.Frame, ifc *Interface, ingress string) {
	icmpPayload := ifrm.Payload()
	icfrm, err := icmpv4.NewFrame(icmpPayload)
	if err != nil {
		r.drop("short-icmp")
		return
	}
	gotCRC := icfrm.CRC()
	icfrm.SetCRC(0)
	var crc wire.CRC791
	icfrm.CRCWrite(&crc)
	icfrm.SetCRC(gotCRC)
	if gotCRC != crc.Sum16() {
		r.drop("bad-icmp-checksum")
		return
	}
	if icfrm.Type() != icmpv4.TypeEcho {
		r.drop("unsupported-icmp-type")
		return
	}

	src, dst := *ifrm.SourceAddr(), *ifrm.DestinationAddr()
	*ifrm.SourceAddr(), *ifrm.DestinationAddr() = dst, src
	icmpv4.BuildEchoReply(icmpPayload)
	ipv4.FinalizeHeader(ifrm)
	efrm.SwapAddrs()

	if err := r.Send.Send(efrm.RawData(), ingress); err != nil && r.Log != nil {
		r.Log.Warn("send failed", "err", err, "iface", ingress)
	}
	if r.Metrics != nil {
		r.Metrics.ICMPSent("echo-reply")
	}
}

// forward implements §4.F.3: longest-prefix lookup, TTL decrement, ARP
// resolution, and transmission (or queueing) on the egress interface.
func (r *Router) forward(efrm ethernet.Frame, ifrm ipv4.Frame) {
	dst := netip.AddrFrom4(*ifrm.DestinationAddr())
	route, ok := r.Routes.LongestMatch(dst)
	if !ok {
		r.sendICMPError(efrm, ifrm, icmpv4.TypeDestinationUnreachable, uint8(icmpv4.CodeNetUnreachable), nil)
		return
	}
	egress, ok := r.Ifaces.LookupByName(route.Iface)
	if !ok {
		r.drop("route-to-unknown-iface", "iface", route.Iface)
		return
	}

	if ifrm.TTL() <= 1 {
		r.sendICMPError(efrm, ifrm, icmpv4.TypeTimeExceeded, uint8(icmpv4.CodeExceededInTransit), egress)
		return
	}
	ifrm.SetTTL(ifrm.TTL() - 1)
	ipv4.FinalizeHeader(ifrm)

	nextHop := route.NextHop(dst)
	mac, ok := r.Cache.Lookup(nextHop)
	if ok {
		if r.Metrics != nil {
			r.Metrics.ArpCacheHit()
		}
		efrm.SetAddrs(mac, egress.HW)
		if err := r.Send.Send(efrm.RawData(), egress.Name); err != nil && r.Log != nil {
			r.Log.Warn("send failed", "err", err, "iface", egress.Name)
		}
		if r.Metrics != nil {
			r.Metrics.PacketForwarded()
		}
		return
	}
	if r.Metrics != nil {
		r.Metrics.ArpCacheMiss()
	}
	r.Cache.Queue(nextHop, efrm.RawData(), egress.Name)
	probeOnce(r, nextHop, egress)
}

// probeOnce sends an immediate ARP probe for a freshly queued request,
// matching §4.F.3's "invoke the ARP sweeper action once immediately"
// without waiting for the next 1-second sweeper tick. Cache.MarkProbed
// records the attempt so it counts toward the retry budget and dedups
// against a burst of packets missing the cache for the same target within
// the same second.
func probeOnce(r *Router, target netip.Addr, egress *Interface) {
	if !r.Cache.MarkProbed(target, time.Now()) {
		return
	}
	var buf [SizeARPFrame]byte
	n := BuildARPRequest(buf[:], egress.HW, egress.IP(), target)
	if err := r.Send.Send(buf[:n], egress.Name); err != nil && r.Log != nil {
		r.Log.Warn("send failed", "err", err, "iface", egress.Name)
	}
	if r.Metrics != nil {
		r.Metrics.ArpProbeSent()
	}
}

// sendICMPError builds and transmits a type-3/type-11 ICMP error addressed
// back to the source of ifrm, reusing efrm's source hardware address as the
// error's Ethernet destination (we have no reason to believe a fresh ARP
// lookup for it would do better than the address the offending frame itself
// arrived with). egress picks the interface the error is sent from (and
// whose address becomes the ICMP source IP); when nil, the longest-prefix
// match on the offending datagram's source is used instead
// (network-unreachable has no usable egress of its own).
func (r *Router) sendICMPError(efrm ethernet.Frame, ifrm ipv4.Frame, typ icmpv4.Type, code uint8, egress *Interface) {
	src := netip.AddrFrom4(*ifrm.SourceAddr())
	if egress == nil {
		route, ok := r.Routes.LongestMatch(src)
		if !ok {
			r.drop("no-route-for-icmp-error")
			return
		}
		egress, ok = r.Ifaces.LookupByName(route.Iface)
		if !ok {
			r.drop("route-to-unknown-iface", "iface", route.Iface)
			return
		}
	}

	dstHW, _ := internal.GetHWAddr(efrm.RawData())
	var buf [14 + 20 + 36]byte // header + max destination-unreachable/time-exceeded payload for a typical datagram
	need := 14 + 20 + icmpv4.DestinationUnreachableLen(ifrm.HeaderLength()+8)
	out := buf[:]
	if need > len(out) {
		out = make([]byte, need)
	}
	n := BuildICMPError(out, typ, code, ifrm, egress.IP(), egress.HW, dstHW, r.id())
	if err := r.Send.Send(out[:n], egress.Name); err != nil && r.Log != nil {
		r.Log.Warn("send failed", "err", err, "iface", egress.Name)
	}
	if r.Metrics != nil {
		r.Metrics.ICMPSent(icmpErrorMetricKind(typ, code))
	}
}

func icmpErrorMetricKind(typ icmpv4.Type, code uint8) string {
	switch typ {
	case icmpv4.TypeTimeExceeded:
		return "time-exceeded"
	default:
		switch icmpv4.CodeDestinationUnreachable(code) {
		case icmpv4.CodeNetUnreachable:
			return "net-unreachable"
		case icmpv4.CodeHostUnreachable:
			return "host-unreachable"
		case icmpv4.CodeProtoUnreachable:
			return "proto-unreachable"
		case icmpv4.CodePortUnreachable:
			return "port-unreachable"
		default:
			return "dest-unreachable"
		}
	}
}
