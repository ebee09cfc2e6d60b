package ipv4

import "github.com/soypat/ip4router"

// BuildHeader initializes the fixed 20-byte IPv4 header fields (no options)
// for an outbound datagram: version 4, ToS 0, no flags/fragmentation,
// the given TTL/protocol/source/destination, and totalLength as TotalLength.
// It does not compute the checksum; call FinalizeHeader once the header is
// otherwise complete.
func BuildHeader(ifrm Frame, id uint16, ttl uint8, proto wire.IPProto, src, dst [4]byte, totalLength uint16) {
	ifrm.ClearHeader()
	ifrm.SetVersionAndIHL(4, 5)
	ifrm.SetTotalLength(totalLength)
	ifrm.SetID(id)
	ifrm.SetTTL(ttl)
	ifrm.SetProtocol(proto)
	*ifrm.SourceAddr() = src
	*ifrm.DestinationAddr() = dst
}

// FinalizeHeader zeroes the checksum field, recomputes it over the header,
// and writes it back. Call this last, after every other header field is set.
func FinalizeHeader(ifrm Frame) {
	ifrm.SetCRC(0)
	ifrm.SetCRC(ifrm.CalculateHeaderCRC())
}
