package internal

// GetHWAddr extracts the Ethernet source and destination addresses from the
// first 12 bytes of a frame without needing an ethernet.Frame view. Used by
// the pipeline's ICMP-error path to recover the original sender's link
// layer address from the triggering inbound frame without a fresh ARP
// lookup (see the open question on sweeper-synthesized host-unreachable
// destinations).
func GetHWAddr(buf []byte) (src, dst [6]byte) {
	copy(src[:], buf[6:12])
	copy(dst[:], buf[0:6])
	return
}
