package arp

import (
	"net/netip"
	"sync"
	"time"
)

// DefaultEntryTTL is the default lifetime of a resolved cache entry (T_entry in the design doc).
const DefaultEntryTTL = 15 * time.Second

// DefaultMaxPending bounds the number of datagrams buffered per unresolved
// target. The sweeper's retry budget (5 attempts spaced 1s apart) naturally
// limits how long packets queue up; this is a backstop against a host that
// floods traffic to one unresolved destination.
const DefaultMaxPending = 64

// Entry is a single IPv4-to-hardware-address mapping. An entry is live
// when Valid is true and has not aged past the cache's TTL.
type Entry struct {
	IP    netip.Addr
	MAC   [6]byte
	Added time.Time
	Valid bool
}

// PendingPacket is an owned copy of a frame buffered while its destination's
// hardware address is being resolved, together with the egress interface
// chosen for it at enqueue time (by longest-prefix match). The egress
// interface is fixed here and never re-evaluated once queued.
type PendingPacket struct {
	Frame []byte
	Iface string
}

// Request tracks an in-flight ARP resolution for one target IPv4 address:
// the datagrams waiting on it, and the sweeper's retry bookkeeping. At most
// one Request exists per target IP at any time; see [Cache.Queue].
type Request struct {
	IP       netip.Addr
	Pending  []PendingPacket
	LastSent time.Time
	Attempts int
}

// Cache is the concurrent ARP resolution table and pending-request queue.
// It is safe for use by multiple goroutines: the packet pipeline calls
// Lookup/Queue/Insert from however many receiver goroutines the I/O shim
// runs, while a single sweeper goroutine calls SweepExpire and Evaluate
// once a second. All methods take the lock for their own duration and
// release it on every exit path; none of them call each other while
// holding it, so a single non-reentrant mutex suffices.
type Cache struct {
	mu         sync.Mutex
	entries    []Entry
	requests   map[netip.Addr]*Request
	ttl        time.Duration
	maxPending int
}

// NewCache returns a Cache with the given fixed capacity and entry lifetime.
// capacity must be positive.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		panic("arp: cache capacity must be positive")
	}
	if ttl <= 0 {
		ttl = DefaultEntryTTL
	}
	return &Cache{
		entries:    make([]Entry, capacity),
		requests:   make(map[netip.Addr]*Request),
		ttl:        ttl,
		maxPending: DefaultMaxPending,
	}
}

// Lookup returns a copy of the hardware address of the valid entry mapped to
// ip, if any. It does not check the entry's age: an aged entry stays valid
// until SweepExpire invalidates it.
func (c *Cache) Lookup(ip netip.Addr) (mac [6]byte, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.entries {
		e := &c.entries[i]
		if e.Valid && e.IP == ip {
			return e.MAC, true
		}
	}
	return mac, false
}

// Queue finds or creates the pending Request for ip and appends a deep copy
// of frame to its buffered packet list, tagged with egressIface. It returns
// the request so the caller (the pipeline, on a forwarding miss) can trigger
// an immediate probe instead of waiting for the next sweeper tick.
//
// The returned *Request is a borrowed handle: valid until the request
// resolves or is destroyed. Callers must not mutate it directly; all
// mutation happens under the cache lock via Cache's methods.
func (c *Cache) Queue(ip netip.Addr, frame []byte, egressIface string) *Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.requests[ip]
	if !ok {
		req = &Request{IP: ip}
		c.requests[ip] = req
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	req.Pending = append(req.Pending, PendingPacket{Frame: cp, Iface: egressIface})
	if len(req.Pending) > c.maxPending {
		// Drop oldest to bound memory; the 5-retry sweep window already
		// limits how long a request can realistically live.
		req.Pending = req.Pending[len(req.Pending)-c.maxPending:]
	}
	return req
}

// Insert records a fresh valid mapping from ip to mac, refreshing the valid
// entry for ip in place if there is one and otherwise using the first invalid
// slot, if any slot is free; if the table is full, no insertion happens and
// entries are left to age out naturally. Regardless of whether the table
// had room, Insert detaches and returns any pending Request for ip so the
// caller can drain its buffered packets; the request is removed from the
// queue's map as part of this call (the caller is responsible for releasing
// its packets, typically by sending them, then letting it be garbage
// collected - there is no separate Destroy needed for this path, though
// Destroy remains idempotent if called anyway).
func (c *Cache) Insert(mac [6]byte, ip netip.Addr) (detached *Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot := -1
	for i := range c.entries {
		e := &c.entries[i]
		if e.Valid && e.IP == ip {
			slot = i
			break
		}
		if slot < 0 && !e.Valid {
			slot = i
		}
	}
	if slot >= 0 {
		c.entries[slot] = Entry{IP: ip, MAC: mac, Added: time.Now(), Valid: true}
	}
	req := c.requests[ip]
	if req != nil {
		delete(c.requests, ip)
	}
	return req
}

// Destroy removes req from the request queue, if still present, and
// releases its pending packets. Safe to call with nil or an already-removed
// request.
func (c *Cache) Destroy(req *Request) {
	if req == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.requests[req.IP] == req {
		delete(c.requests, req.IP)
	}
	req.Pending = nil
}

// SweepExpire invalidates every entry whose age exceeds the cache's TTL.
func (c *Cache) SweepExpire(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.entries {
		e := &c.entries[i]
		if e.Valid && now.Sub(e.Added) > c.ttl {
			e.Valid = false
		}
	}
}

// MarkProbed records an immediate ARP probe for ip sent outside the
// sweeper's regular tick (see the pipeline's forward-miss path in §4.F.3,
// "invoke the ARP sweeper action once immediately"). It returns false,
// meaning the caller must not send a probe, if a probe for ip has already
// been recorded — either by an earlier immediate probe for the same target
// or because the request has just been retried by a sweep tick. On true, it
// sets Attempts to 1 and LastSent to now, so the immediate probe counts
// toward the §3 N_retry budget and the sweeper's RetryInterval spacing.
func (c *Cache) MarkProbed(ip netip.Addr, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	req, ok := c.requests[ip]
	if !ok || req.Attempts > 0 {
		return false
	}
	req.Attempts = 1
	req.LastSent = now
	return true
}

// Len reports the number of pending requests currently queued, for diagnostics/metrics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// RetryInterval is the minimum spacing between ARP probes for the same
// unresolved target.
const RetryInterval = 1 * time.Second

// MaxAttempts is the number of probes sent for a target before its pending
// request gives up and its buffered packets are failed back to their senders.
const MaxAttempts = 5

// SweepAction is a decision for the sweeper to act on after Evaluate has
// released the cache lock. GiveUp false means: send another ARP probe for
// IP out Iface (the egress recorded on the request's first pending packet
// at enqueue time, per §4.E — not re-resolved against the routing table).
// GiveUp true means: the request exhausted its retries and has already
// been removed from the queue; the sweeper should fail every packet in
// Pending with an ICMP host-unreachable.
type SweepAction struct {
	IP      netip.Addr
	Iface   string
	Pending []PendingPacket
	GiveUp  bool
}

// Evaluate advances retry bookkeeping for every pending request as of now
// and returns the actions the sweeper should take once it releases the
// lock. A request due for another probe has its Attempts/LastSent updated
// in place before Evaluate returns, so the sweeper never needs to call back
// into Cache while iterating the result; a request that has exhausted
// MaxAttempts is removed from the queue here; the caller owns its Pending
// packets from that point on.
func (c *Cache) Evaluate(now time.Time) []SweepAction {
	c.mu.Lock()
	defer c.mu.Unlock()
	var actions []SweepAction
	for ip, req := range c.requests {
		if now.Sub(req.LastSent) < RetryInterval {
			continue
		}
		if req.Attempts >= MaxAttempts {
			actions = append(actions, SweepAction{IP: ip, Pending: req.Pending, GiveUp: true})
			delete(c.requests, ip)
			continue
		}
		req.Attempts++
		req.LastSent = now
		var iface string
		if len(req.Pending) > 0 {
			iface = req.Pending[0].Iface
		}
		actions = append(actions, SweepAction{IP: ip, Iface: iface})
	}
	return actions
}
