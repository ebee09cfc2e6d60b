package icmpv4

import "github.com/soypat/ip4router"

// BuildEchoReply turns a received echo request in place into an echo reply:
// identifier, sequence number and data are left untouched, only the type
// and checksum fields change. buf must hold exactly the ICMP message
// (type through trailing echo data), no IPv4 header.
func BuildEchoReply(buf []byte) {
	frm := Frame{buf: buf}
	frm.SetType(TypeEchoReply)
	frm.SetCode(0)
	frm.SetCRC(0)
	var crc wire.CRC791
	frm.CRCWrite(&crc)
	frm.SetCRC(wire.NeverZeroChecksum(crc.Sum16()))
}

// DestinationUnreachableLen returns the wire length of a destination
// unreachable message carrying ipHeaderAndFirstOctets, which per RFC 792
// is the original IPv4 header plus the first 8 bytes of its payload.
func DestinationUnreachableLen(ipHeaderAndFirstOctets int) int {
	return 8 + ipHeaderAndFirstOctets
}

// BuildDestinationUnreachable writes a type-3 ICMP message into buf: code,
// four bytes unused/zero, then a verbatim copy of origIPHeaderAndData (the
// original datagram's IP header plus the first 8 bytes of its payload, per
// RFC 792). len(buf) must equal DestinationUnreachableLen(len(origIPHeaderAndData)).
func BuildDestinationUnreachable(buf []byte, code CodeDestinationUnreachable, origIPHeaderAndData []byte) {
	frm := FrameDestinationUnreachable{Frame{buf: buf}}
	buf[0] = byte(TypeDestinationUnreachable)
	frm.SetCode(code)
	buf[2], buf[3] = 0, 0 // checksum, filled below
	buf[4], buf[5], buf[6], buf[7] = 0, 0, 0, 0
	copy(buf[8:], origIPHeaderAndData)
	var crc wire.CRC791
	frm.Frame.CRCWrite(&crc)
	frm.Frame.SetCRC(wire.NeverZeroChecksum(crc.Sum16()))
}

// BuildTimeExceeded writes a type-11 ICMP time-exceeded message into buf
// with the same wire layout as a destination-unreachable message.
func BuildTimeExceeded(buf []byte, code CodeTimeExceeded, origIPHeaderAndData []byte) {
	buf[0] = byte(TypeTimeExceeded)
	buf[1] = byte(code)
	buf[2], buf[3] = 0, 0
	buf[4], buf[5], buf[6], buf[7] = 0, 0, 0, 0
	copy(buf[8:], origIPHeaderAndData)
	frm := Frame{buf: buf}
	var crc wire.CRC791
	frm.CRCWrite(&crc)
	frm.SetCRC(wire.NeverZeroChecksum(crc.Sum16()))
}
