package router

import (
	"net/netip"

	"github.com/soypat/ip4router"
	"github.com/soypat/ip4router/arp"
	"github.com/soypat/ip4router/ethernet"
	"github.com/soypat/ip4router/ipv4"
	"github.com/soypat/ip4router/ipv4/icmpv4"
)

// SizeARPFrame is the wire size of an Ethernet+ARP(IPv4) frame.
const SizeARPFrame = 14 + 28

// BuildARPRequest assembles a broadcast ARP request ("who has targetIP? tell
// srcIP") into buf, which must be at least SizeARPFrame bytes, returning the
// number of bytes written.
func BuildARPRequest(buf []byte, srcHW [6]byte, srcIP, targetIP netip.Addr) int {
	efrm, _ := ethernet.NewFrame(buf)
	efrm.ClearHeader()
	efrm.SetAddrs(ethernet.BroadcastAddr(), srcHW)
	efrm.SetEtherType(ethernet.TypeARP)

	afrm, _ := arp.NewFrame(buf[14:])
	afrm.ClearHeader()
	afrm.SetHardware(1, 6)
	afrm.SetProtocol(ethernet.TypeIPv4, 4)
	afrm.SetOperation(arp.OpRequest)
	senderHW, senderIP := afrm.Sender4()
	*senderHW = srcHW
	*senderIP = srcIP.As4()
	targetHW, targetProto := afrm.Target4()
	*targetHW = ethernet.BroadcastAddr() // all-ones padding; ignored by the receiver of a request
	*targetProto = targetIP.As4()
	return SizeARPFrame
}

// BuildARPReply rewrites an inbound ARP request frame in place into a reply
// from ownHW/ownIP: it swaps the Ethernet and ARP sender/target pairs, sets
// the opcode to reply, and fills the new sender fields with the local
// interface's own addresses. buf must contain exactly the original request
// frame (Ethernet header through the fixed ARP/IPv4 fields).
func BuildARPReply(buf []byte, ownHW [6]byte, ownIP netip.Addr) {
	efrm, _ := ethernet.NewFrame(buf)
	afrm, _ := arp.NewFrame(buf[efrm.HeaderLength():])

	afrm.SwapTargetSender()
	afrm.SetOperation(arp.OpReply)
	senderHW, senderIP := afrm.Sender4()
	*senderHW = ownHW
	*senderIP = ownIP.As4()

	efrm.SwapAddrs()
	efrm.SetAddrs(*efrm.DestinationHardwareAddr(), ownHW)
}

// icmpErrorPayloadLen is the number of octets of the offending datagram's
// payload RFC 792 mandates carrying in a type-3/type-11 ICMP error: the IP
// header itself plus the first 8 bytes following it.
func icmpErrorPayloadLen(origIP ipv4.Frame) int {
	n := origIP.HeaderLength() + 8
	if n > len(origIP.RawData()) {
		n = len(origIP.RawData())
	}
	return n
}

// BuildICMPError assembles a complete Ethernet+IPv4+ICMP error datagram
// (destination-unreachable or time-exceeded) into buf addressed back to the
// source of origIP, an already-validated inbound IPv4 frame. srcIP is the
// address of the interface the error is transmitted from; dstHW/srcHW are
// the Ethernet addresses to use. It returns the number of bytes written.
func BuildICMPError(buf []byte, typ icmpv4.Type, code uint8, origIP ipv4.Frame, srcIP netip.Addr, srcHW, dstHW [6]byte, id uint16) int {
	carryLen := icmpErrorPayloadLen(origIP)
	icmpLen := icmpv4.DestinationUnreachableLen(carryLen)
	totalIPLen := 20 + icmpLen

	efrm, _ := ethernet.NewFrame(buf)
	efrm.ClearHeader()
	efrm.SetAddrs(dstHW, srcHW)
	efrm.SetEtherType(ethernet.TypeIPv4)

	ipBuf := buf[14 : 14+totalIPLen]
	ifrm, _ := ipv4.NewFrame(ipBuf)
	dstAddr := netip.AddrFrom4(*origIP.SourceAddr())
	ipv4.BuildHeader(ifrm, id, 64, wire.IPProtoICMP, srcIP.As4(), dstAddr.As4(), uint16(totalIPLen))

	icmpBuf := ipBuf[20:]
	switch typ {
	case icmpv4.TypeTimeExceeded:
		icmpv4.BuildTimeExceeded(icmpBuf, icmpv4.CodeTimeExceeded(code), origIP.RawData()[:carryLen])
	default:
		icmpv4.BuildDestinationUnreachable(icmpBuf, icmpv4.CodeDestinationUnreachable(code), origIP.RawData()[:carryLen])
	}
	ipv4.FinalizeHeader(ifrm)
	return 14 + totalIPLen
}
