package router

import (
	"encoding/binary"
	"net/netip"
	"testing"
	"time"

	"github.com/soypat/ip4router/arp"
	"github.com/soypat/ip4router/ethernet"
	"github.com/soypat/ip4router/ipv4"
	"github.com/soypat/ip4router/ipv4/icmpv4"
	wire "github.com/soypat/ip4router"
)

var (
	eth0HW = [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	eth0IP = netip.MustParsePrefix("10.0.0.1/24")
	eth1HW = [6]byte{0x00, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE}
	eth1IP = netip.MustParsePrefix("192.168.1.1/24")

	hostMAC = [6]byte{0x00, 0xDE, 0xAD, 0xBE, 0xEF, 0x00}
	hostIP  = netip.MustParseAddr("10.0.0.5")

	gatewayIP = netip.MustParseAddr("192.168.1.254")
	gatewayMAC = [6]byte{0x00, 0xCA, 0xFE, 0x00, 0x00, 0x01}
)

type capturedFrame struct {
	frame []byte
	iface string
}

type fakeSender struct {
	sent []capturedFrame
}

func (f *fakeSender) Send(frame []byte, iface string) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	f.sent = append(f.sent, capturedFrame{frame: cp, iface: iface})
	return nil
}

func newTestRouter() (*Router, *fakeSender) {
	ifaces := NewInterfaces([]*Interface{
		{Name: "eth0", HW: eth0HW, Addr: eth0IP},
		{Name: "eth1", HW: eth1HW, Addr: eth1IP},
	})
	routes := NewRoutes([]Route{
		{Dest: netip.MustParsePrefix("0.0.0.0/0"), Gateway: gatewayIP, Iface: "eth1"},
	})
	send := &fakeSender{}
	r := &Router{
		Ifaces: ifaces,
		Routes: routes,
		Cache:  arp.NewCache(16, arp.DefaultEntryTTL),
		Send:   send,
	}
	return r, send
}

func buildARPRequestFrame(t *testing.T, srcHW [6]byte, srcIP, targetIP netip.Addr) []byte {
	t.Helper()
	buf := make([]byte, SizeARPFrame)
	n := BuildARPRequest(buf, srcHW, srcIP, targetIP)
	return buf[:n]
}

func buildICMPEchoFrame(t *testing.T, srcHW, dstHW [6]byte, srcIP, dstIP netip.Addr, id, seq uint16) []byte {
	t.Helper()
	const icmpLen = 8
	buf := make([]byte, 14+20+icmpLen)
	efrm, _ := ethernet.NewFrame(buf)
	efrm.ClearHeader()
	efrm.SetAddrs(dstHW, srcHW)
	efrm.SetEtherType(ethernet.TypeIPv4)

	ifrm, _ := ipv4.NewFrame(buf[14:])
	ipv4.BuildHeader(ifrm, 1, 64, wire.IPProtoICMP, srcIP.As4(), dstIP.As4(), 20+icmpLen)

	icmpBuf := buf[34:]
	icfrm := icmpv4.FrameEcho{Frame: mustICMPFrame(t, icmpBuf)}
	icfrm.Frame.SetType(icmpv4.TypeEcho)
	icfrm.Frame.SetCode(0)
	binary.BigEndian.PutUint16(icmpBuf[4:6], id)
	binary.BigEndian.PutUint16(icmpBuf[6:8], seq)
	icfrm.Frame.SetCRC(0)
	var crc wire.CRC791
	icfrm.Frame.CRCWrite(&crc)
	icfrm.Frame.SetCRC(crc.Sum16())

	ipv4.FinalizeHeader(ifrm)
	return buf
}

func mustICMPFrame(t *testing.T, buf []byte) icmpv4.Frame {
	t.Helper()
	frm, err := icmpv4.NewFrame(buf)
	if err != nil {
		t.Fatal(err)
	}
	return frm
}

func buildForwardedFrame(t *testing.T, dst netip.Addr, ttl uint8) []byte {
	t.Helper()
	buf := make([]byte, 14+20+4)
	efrm, _ := ethernet.NewFrame(buf)
	efrm.ClearHeader()
	efrm.SetAddrs(eth0HW, hostMAC)
	efrm.SetEtherType(ethernet.TypeIPv4)

	ifrm, _ := ipv4.NewFrame(buf[14:])
	ipv4.BuildHeader(ifrm, 7, ttl, wire.IPProtoUDP, hostIP.As4(), dst.As4(), 24)
	ipv4.FinalizeHeader(ifrm)
	return buf
}

func TestScenario1ARPRequestForUs(t *testing.T) {
	r, send := newTestRouter()
	frame := buildARPRequestFrame(t, hostMAC, hostIP, eth0IP.Addr())

	r.HandleFrame(frame, "eth0")

	if len(send.sent) != 1 {
		t.Fatalf("want 1 sent frame, got %d", len(send.sent))
	}
	if send.sent[0].iface != "eth0" {
		t.Errorf("want reply out eth0, got %s", send.sent[0].iface)
	}
	efrm, _ := ethernet.NewFrame(send.sent[0].frame)
	afrm, _ := arp.NewFrame(efrm.Payload())
	if afrm.Operation() != arp.OpReply {
		t.Fatalf("want ARP reply, got op %v", afrm.Operation())
	}
	senderHW, senderIP := afrm.Sender4()
	if *senderHW != eth0HW || netip.AddrFrom4(*senderIP) != eth0IP.Addr() {
		t.Errorf("unexpected sender %x/%s", *senderHW, netip.AddrFrom4(*senderIP))
	}
	targetHW, targetIP := afrm.Target4()
	if *targetHW != hostMAC || netip.AddrFrom4(*targetIP) != hostIP {
		t.Errorf("unexpected target %x/%s", *targetHW, netip.AddrFrom4(*targetIP))
	}
}

func TestScenario2ICMPEchoToUs(t *testing.T) {
	r, send := newTestRouter()
	frame := buildICMPEchoFrame(t, hostMAC, eth0HW, hostIP, eth0IP.Addr(), 0xABCD, 1)

	r.HandleFrame(frame, "eth0")

	if len(send.sent) != 1 {
		t.Fatalf("want 1 sent frame, got %d", len(send.sent))
	}
	efrm, _ := ethernet.NewFrame(send.sent[0].frame)
	if *efrm.DestinationHardwareAddr() != hostMAC || *efrm.SourceHardwareAddr() != eth0HW {
		t.Errorf("ethernet addresses not swapped")
	}
	ifrm, _ := ipv4.NewFrame(efrm.Payload())
	if netip.AddrFrom4(*ifrm.SourceAddr()) != eth0IP.Addr() || netip.AddrFrom4(*ifrm.DestinationAddr()) != hostIP {
		t.Errorf("IP addresses not swapped")
	}
	icfrm, _ := icmpv4.NewFrame(ifrm.Payload())
	if icfrm.Type() != icmpv4.TypeEchoReply {
		t.Errorf("want echo reply, got type %v", icfrm.Type())
	}
	gotCRC := icfrm.CRC()
	icfrm.SetCRC(0)
	var crc wire.CRC791
	icfrm.CRCWrite(&crc)
	if gotCRC != crc.Sum16() {
		t.Errorf("bad ICMP checksum")
	}
}

func TestScenario3ForwardARPCached(t *testing.T) {
	r, send := newTestRouter()
	r.Cache.Insert(gatewayMAC, gatewayIP)
	frame := buildForwardedFrame(t, netip.MustParseAddr("8.8.8.8"), 64)

	r.HandleFrame(frame, "eth0")

	if len(send.sent) != 1 {
		t.Fatalf("want 1 sent frame, got %d", len(send.sent))
	}
	if send.sent[0].iface != "eth1" {
		t.Fatalf("want forward out eth1, got %s", send.sent[0].iface)
	}
	efrm, _ := ethernet.NewFrame(send.sent[0].frame)
	if *efrm.SourceHardwareAddr() != eth1HW || *efrm.DestinationHardwareAddr() != gatewayMAC {
		t.Errorf("unexpected ethernet addrs src=%x dst=%x", *efrm.SourceHardwareAddr(), *efrm.DestinationHardwareAddr())
	}
	ifrm, _ := ipv4.NewFrame(efrm.Payload())
	if ifrm.TTL() != 63 {
		t.Errorf("want TTL 63, got %d", ifrm.TTL())
	}
	gotCRC := ifrm.CRC()
	ifrm.SetCRC(0)
	if want := ifrm.CalculateHeaderCRC(); gotCRC != want {
		t.Errorf("bad IP checksum: got %d want %d", gotCRC, want)
	}
}

func TestScenario4ForwardARPMissThenResolve(t *testing.T) {
	r, send := newTestRouter()
	frame := buildForwardedFrame(t, netip.MustParseAddr("8.8.8.8"), 64)

	r.HandleFrame(frame, "eth0")

	if len(send.sent) != 1 {
		t.Fatalf("want 1 ARP probe sent, got %d", len(send.sent))
	}
	if send.sent[0].iface != "eth1" {
		t.Fatalf("want probe out eth1, got %s", send.sent[0].iface)
	}
	efrm, _ := ethernet.NewFrame(send.sent[0].frame)
	afrm, _ := arp.NewFrame(efrm.Payload())
	if afrm.Operation() != arp.OpRequest {
		t.Fatalf("want ARP request probe, got op %v", afrm.Operation())
	}
	_, targetIP := afrm.Target4()
	if netip.AddrFrom4(*targetIP) != gatewayIP {
		t.Errorf("probe target = %s, want %s", netip.AddrFrom4(*targetIP), gatewayIP)
	}

	reply := buildARPRequestFrame(t, gatewayMAC, gatewayIP, eth1IP.Addr())
	BuildARPReply(reply, gatewayMAC, gatewayIP) // rewrite in place as if gateway answered eth1's probe

	r.HandleFrame(reply, "eth1")

	if len(send.sent) != 2 {
		t.Fatalf("want the queued datagram drained after the reply, got %d sent frames", len(send.sent))
	}
	drained := send.sent[1]
	if drained.iface != "eth1" {
		t.Fatalf("want drained datagram out eth1, got %s", drained.iface)
	}
	efrm2, _ := ethernet.NewFrame(drained.frame)
	if *efrm2.DestinationHardwareAddr() != gatewayMAC {
		t.Errorf("drained frame dst = %x, want gateway MAC", *efrm2.DestinationHardwareAddr())
	}
	ifrm2, _ := ipv4.NewFrame(efrm2.Payload())
	if ifrm2.TTL() != 63 {
		t.Errorf("drained frame TTL = %d, want 63", ifrm2.TTL())
	}
	if r.Cache.Len() != 0 {
		t.Errorf("want request queue empty after drain, got %d pending", r.Cache.Len())
	}
}

func TestScenario5ForwardARPUnresolvable(t *testing.T) {
	r, send := newTestRouter()
	frame := buildForwardedFrame(t, netip.MustParseAddr("8.8.8.8"), 64)
	r.HandleFrame(frame, "eth0") // triggers the immediate probe; counts as attempt 1 of arp.MaxAttempts

	now := time.Now()
	for i := 0; i < arp.MaxAttempts+1; i++ {
		now = now.Add(arp.RetryInterval)
		r.sweepOnce(now)
	}

	var icmpSent bool
	for _, f := range send.sent {
		efrm, err := ethernet.NewFrame(f.frame)
		if err != nil || efrm.EtherTypeOrSize() != ethernet.TypeIPv4 {
			continue
		}
		ifrm, err := ipv4.NewFrame(efrm.Payload())
		if err != nil || ifrm.Protocol() != wire.IPProtoICMP {
			continue
		}
		icfrm, err := icmpv4.NewFrame(ifrm.Payload())
		if err != nil {
			continue
		}
		if icfrm.Type() == icmpv4.TypeDestinationUnreachable && icmpv4.CodeDestinationUnreachable(icfrm.Code()) == icmpv4.CodeHostUnreachable {
			icmpSent = true
			if netip.AddrFrom4(*ifrm.DestinationAddr()) != hostIP {
				t.Errorf("host-unreachable addressed to %s, want %s", netip.AddrFrom4(*ifrm.DestinationAddr()), hostIP)
			}
		}
	}
	if !icmpSent {
		t.Fatal("want an ICMP host-unreachable after exhausting retries")
	}
	if r.Cache.Len() != 0 {
		t.Errorf("want request queue empty after giving up, got %d pending", r.Cache.Len())
	}
}

func TestScenario6TTLExpiry(t *testing.T) {
	r, send := newTestRouter()
	frame := buildForwardedFrame(t, netip.MustParseAddr("8.8.8.8"), 1)

	r.HandleFrame(frame, "eth0")

	if len(send.sent) != 1 {
		t.Fatalf("want 1 sent frame (the ICMP error), got %d", len(send.sent))
	}
	efrm, _ := ethernet.NewFrame(send.sent[0].frame)
	ifrm, _ := ipv4.NewFrame(efrm.Payload())
	if ifrm.Protocol() != wire.IPProtoICMP {
		t.Fatalf("want ICMP, got protocol %v", ifrm.Protocol())
	}
	icfrm, _ := icmpv4.NewFrame(ifrm.Payload())
	if icfrm.Type() != icmpv4.TypeTimeExceeded || icmpv4.CodeTimeExceeded(icfrm.Code()) != icmpv4.CodeExceededInTransit {
		t.Errorf("want time-exceeded/in-transit, got type=%v code=%d", icfrm.Type(), icfrm.Code())
	}
	if netip.AddrFrom4(*ifrm.DestinationAddr()) != hostIP {
		t.Errorf("ICMP error addressed to %s, want %s", netip.AddrFrom4(*ifrm.DestinationAddr()), hostIP)
	}
	if r.Cache.Len() != 0 {
		t.Errorf("no forwarding queue entry should have been created")
	}
}
