// Package wire provides the shared low-level primitives used by the
// wire-format packages (ethernet, arp, ipv4): the Internet checksum and a
// small error-accumulating Validator used by every frame's ValidateSize
// method.
package wire

// IPProto represents the IP protocol number carried in the IPv4 header's
// Protocol field. See the IANA protocol numbers registry.
type IPProto uint8

// IP protocol numbers relevant to a router that only answers ICMP locally
// and forwards everything else unexamined.
const (
	IPProtoICMP IPProto = 1  // Internet Control Message [RFC792]
	IPProtoTCP  IPProto = 6  // Transmission Control [RFC793]
	IPProtoUDP  IPProto = 17 // User Datagram [RFC768]
)

func (p IPProto) String() string {
	switch p {
	case IPProtoICMP:
		return "ICMP"
	case IPProtoTCP:
		return "TCP"
	case IPProtoUDP:
		return "UDP"
	default:
		return "IPProto(" + itoa(uint8(p)) + ")"
	}
}

func itoa(v uint8) string {
	if v == 0 {
		return "0"
	}
	var buf [3]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
