package router

import (
	"context"
	"net/netip"
	"time"

	"github.com/soypat/ip4router/arp"
	"github.com/soypat/ip4router/ethernet"
	"github.com/soypat/ip4router/ipv4"
	"github.com/soypat/ip4router/ipv4/icmpv4"
)

// SweepInterval is how often the sweeper ticks: it expires aged cache
// entries and advances retry bookkeeping for pending ARP requests.
const SweepInterval = 1 * time.Second

// RunSweeper drives the ARP cache's periodic maintenance (component E):
// expiring aged entries and retrying or giving up on unresolved targets. It
// blocks until ctx is cancelled; run it in its own goroutine, one per
// Router. Every tick calls into Cache at most once per concern
// (SweepExpire, then Evaluate), so the cache's per-method locking never
// needs to be reentrant.
func (r *Router) RunSweeper(ctx context.Context) {
	t := time.NewTicker(SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			r.sweepOnce(now)
		}
	}
}

func (r *Router) sweepOnce(now time.Time) {
	r.Cache.SweepExpire(now)
	for _, action := range r.Cache.Evaluate(now) {
		if action.GiveUp {
			r.giveUp(action)
			continue
		}
		r.retryProbe(action.IP, action.Iface)
	}
}

func (r *Router) retryProbe(target netip.Addr, iface string) {
	egress, ok := r.Ifaces.LookupByName(iface)
	if !ok {
		return // the pending packet's recorded egress no longer exists; the request ages out via MaxAttempts.
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

// giveUp fails every packet buffered for a target that exhausted its ARP
// retries, emitting an ICMP host-unreachable for each back to its sender.
func (r *Router) giveUp(action arp.SweepAction) {
	if r.Metrics != nil {
		r.Metrics.ArpGivenUp()
	}
	for _, pkt := range action.Pending {
		r.hostUnreachable(pkt)
	}
}

func (r *Router) hostUnreachable(pkt arp.PendingPacket) {
	efrm, err := ethernet.NewFrame(pkt.Frame)
	if err != nil {
		return
	}
	ifrm, err := ipv4.NewFrame(efrm.Payload())
	if err != nil {
		return
	}
	// Per §4.E, the egress for the error is chosen by a longest-prefix match
	// on the original datagram's source, not the forwarding egress recorded
	// on pkt.Iface; sendICMPError's egress==nil branch does that lookup.
	r.sendICMPError(efrm, ifrm, icmpv4.TypeDestinationUnreachable, uint8(icmpv4.CodeHostUnreachable), nil)
}
