package arp

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"

	"github.com/soypat/ip4router"
	"github.com/soypat/ip4router/ethernet"
)

// NewFrame returns a Frame with data set to buf.
// An error is returned if the buffer size is smaller than 28 (Ethernet/IPv4 ARP size).
// Users should still call [Frame.ValidateSize] before working with the frame
// to avoid panics on malformed hardware/protocol-length fields.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeaderv4 {
		return Frame{buf: nil}, errShortARP
	}
	return Frame{buf: buf}, nil
}

// Frame encapsulates the raw data of an ARP packet
// and provides methods for manipulating, validating and
// retrieving fields and payload data. See [RFC826].
//
// This router only speaks the Ethernet/IPv4 combination (hardware type 1,
// protocol type 0x0800, 6-byte MAC, 4-byte IPv4), but the field accessors
// below stay length-generic so ValidateSize can reject anything else cleanly.
//
// [RFC826]: https://tools.ietf.org/html/rfc826
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice with which the frame was created.
func (afrm Frame) RawData() []byte { return afrm.buf }

// Hardware returns the network link protocol type and address length. Ethernet is 1.
func (afrm Frame) Hardware() (hwType uint16, length uint8) {
	hwType = binary.BigEndian.Uint16(afrm.buf[0:2])
	return hwType, afrm.hwlen()
}

func (afrm Frame) hwlen() uint8 { return afrm.buf[4] }

// SetHardware sets the network link protocol type and address length. See [Frame.Hardware].
func (afrm Frame) SetHardware(hwType uint16, length uint8) {
	binary.BigEndian.PutUint16(afrm.buf[0:2], hwType)
	afrm.buf[4] = length
}

// Protocol returns the internet protocol type and address length. See [ethernet.Type].
func (afrm Frame) Protocol() (protoType ethernet.Type, length uint8) {
	protoType = ethernet.Type(binary.BigEndian.Uint16(afrm.buf[2:4]))
	return protoType, afrm.protolen()
}

func (afrm Frame) protolen() uint8 { return afrm.buf[5] }

// SetProtocol sets the protocol type and address length fields of the ARP frame. See [Frame.Protocol].
func (afrm Frame) SetProtocol(protoType ethernet.Type, length uint8) {
	binary.BigEndian.PutUint16(afrm.buf[2:4], uint16(protoType))
	afrm.buf[5] = length
}

// Operation returns the ARP header operation field. See [Operation].
func (afrm Frame) Operation() Operation { return Operation(binary.BigEndian.Uint16(afrm.buf[6:8])) }

// SetOperation sets the ARP header operation field. See [Operation].
func (afrm Frame) SetOperation(op Operation) { binary.BigEndian.PutUint16(afrm.buf[6:8], uint16(op)) }

// Sender returns the hardware (MAC) and protocol addresses of the sender of the ARP packet.
// In an ARP request the hardware address is that of the host sending the request.
// In an ARP reply it is that of the host that the request was looking for.
func (afrm Frame) Sender() (hardwareAddr []byte, proto []byte) {
	hlen, ilen := afrm.hwlen(), afrm.protolen()
	return afrm.buf[8 : 8+hlen], afrm.buf[8+hlen : 8+hlen+ilen]
}

// Target returns the hardware (MAC) and protocol addresses of the target of the ARP packet.
// In an ARP request the target hardware address is ignored (usually zeroed).
func (afrm Frame) Target() (hardwareAddr []byte, proto []byte) {
	hlen, ilen := afrm.hwlen(), afrm.protolen()
	toff := 8 + hlen + ilen
	return afrm.buf[toff : toff+hlen], afrm.buf[toff+hlen : toff+hlen+ilen]
}

// Sender4 returns the Ethernet/IPv4 sender addresses as fixed-size views. See [Frame.Sender].
func (afrm Frame) Sender4() (hardwareAddr *[6]byte, proto *[4]byte) {
	return (*[6]byte)(afrm.buf[8:14]), (*[4]byte)(afrm.buf[14:18])
}

// Target4 returns the Ethernet/IPv4 target addresses as fixed-size views. See [Frame.Target].
func (afrm Frame) Target4() (hardwareAddr *[6]byte, proto *[4]byte) {
	return (*[6]byte)(afrm.buf[18:24]), (*[4]byte)(afrm.buf[24:28])
}

// ClearHeader zeros out the fixed (non-variable) header contents.
func (afrm Frame) ClearHeader() {
	for i := range afrm.buf[:8] {
		afrm.buf[i] = 0
	}
}

// Clip returns the frame re-sliced to exactly its header+addresses length,
// discarding any trailing Ethernet padding.
func (afrm Frame) Clip() Frame {
	return Frame{buf: afrm.buf[:sizeHeader+2*int(afrm.hwlen())+2*int(afrm.protolen())]}
}

// SwapTargetSender exchanges the sender and target hardware/protocol address
// pairs in place. Used to turn a received request into a reply without
// reallocating: the wire codec's ARP reply builder calls this, then
// overwrites the new sender fields with the local interface's own addresses.
func (afrm Frame) SwapTargetSender() {
	hwTarget, protoTarget := afrm.Target()
	hwSender, protoSender := afrm.Sender()
	for i := range hwTarget {
		hwTarget[i], hwSender[i] = hwSender[i], hwTarget[i]
	}
	for i := range protoTarget {
		protoTarget[i], protoSender[i] = protoSender[i], protoTarget[i]
	}
}

//
// Validation API.
//

// ValidateSize checks the frame's size fields and compares with the actual buffer
// the frame. It returns a non-nil error on finding an inconsistency.
func (afrm Frame) ValidateSize(v *wire.Validator) {
	if len(afrm.buf) < 8 {
		v.AddError(errShortARP)
		return
	}
	hlen, ilen := afrm.hwlen(), afrm.protolen()
	minLen := 8 + 2*int(hlen) + 2*int(ilen)
	if len(afrm.buf) < minLen {
		v.AddError(errShortARP)
	}
}

func (afrm Frame) String() string {
	opstr := afrm.Operation().String()
	hwt, _ := afrm.Hardware()
	ptt, _ := afrm.Protocol()
	sndhw, sndpt := afrm.Sender()
	tgthw, tgtpt := afrm.Target()
	var sndstr, tgtstr string
	if ptt == ethernet.TypeIPv4 {
		sender, _ := netip.AddrFromSlice(sndpt)
		target, _ := netip.AddrFromSlice(tgtpt)
		sndstr = sender.String()
		tgtstr = target.String()
	} else {
		sndstr = net.HardwareAddr(sndpt).String()
		tgtstr = net.HardwareAddr(tgtpt).String()
	}
	return fmt.Sprintf("ARP %s HW=(%d,SENDER=%s,TARGET=%s) PROTO=(%s,SENDER=%s,TARGET=%s)",
		opstr, hwt, net.HardwareAddr(sndhw).String(), net.HardwareAddr(tgthw).String(),
		ptt.String(), sndstr, tgtstr)
}
