package ethernet

import (
	"encoding/binary"
	"errors"

	"github.com/soypat/ip4router"
)

// sizeHeader is the fixed length of an Ethernet II header: destination (6),
// source (6), EtherType (2). 802.1Q VLAN tagging is out of scope for this
// router; frames are always interpreted with the untagged 14-byte header.
const sizeHeader = sizeHeaderNoVLAN

// NewFrame returns a Frame with data set to buf.
// An error is returned if the buffer size is smaller than 14.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeader {
		return Frame{buf: nil}, errShort
	}
	return Frame{buf: buf}, nil
}

// Frame encapsulates the raw data of an Ethernet II frame
// without including preamble (first byte is start of destination address)
// and provides methods for manipulating, validating and
// retrieving fields and payload data. See [IEEE 802.3].
//
// [IEEE 802.3]: https://standards.ieee.org/ieee/802.3/7071/
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice with which the frame was created.
func (efrm Frame) RawData() []byte { return efrm.buf }

// HeaderLength returns the length of the Ethernet header, always 14 (no VLAN support).
func (efrm Frame) HeaderLength() int { return sizeHeader }

// Payload returns the data portion of the ethernet packet.
func (efrm Frame) Payload() []byte {
	et := efrm.EtherTypeOrSize()
	if et.IsSize() {
		return efrm.buf[sizeHeader : sizeHeader+int(et)]
	}
	return efrm.buf[sizeHeader:]
}

// DestinationHardwareAddr returns the target's MAC/hardware address for the ethernet packet.
func (efrm Frame) DestinationHardwareAddr() (dst *[6]byte) {
	return (*[6]byte)(efrm.buf[0:6])
}

// IsBroadcast returns true if the destination is the broadcast address ff:ff:ff:ff:ff:ff, false otherwise.
func (efrm Frame) IsBroadcast() bool {
	return efrm.buf[0] == 0xff && efrm.buf[1] == 0xff && efrm.buf[2] == 0xff &&
		efrm.buf[3] == 0xff && efrm.buf[4] == 0xff && efrm.buf[5] == 0xff
}

// SourceHardwareAddr returns the sender's MAC/hardware address of the ethernet packet.
func (efrm Frame) SourceHardwareAddr() (src *[6]byte) {
	return (*[6]byte)(efrm.buf[6:12])
}

// EtherTypeOrSize returns the EtherType/Size field of the ethernet packet.
// Caller should check if the field is actually a valid EtherType or if it represents the Ethernet payload size with [Type.IsSize].
func (efrm Frame) EtherTypeOrSize() Type {
	return Type(binary.BigEndian.Uint16(efrm.buf[12:14]))
}

// SetEtherType sets the EtherType field of the ethernet packet. See [Type] and [Frame.EtherTypeOrSize].
func (efrm Frame) SetEtherType(v Type) {
	binary.BigEndian.PutUint16(efrm.buf[12:14], uint16(v))
}

// SetAddrs sets the destination and source hardware address fields in one call.
// Used by the wire codec's frame builders to assemble outbound Ethernet headers.
func (efrm Frame) SetAddrs(dst, src [6]byte) {
	copy(efrm.buf[0:6], dst[:])
	copy(efrm.buf[6:12], src[:])
}

// SwapAddrs exchanges the destination and source hardware address fields in place.
// Used when turning a received frame into a reply without a fresh allocation.
func (efrm Frame) SwapAddrs() {
	var tmp [6]byte
	copy(tmp[:], efrm.buf[0:6])
	copy(efrm.buf[0:6], efrm.buf[6:12])
	copy(efrm.buf[6:12], tmp[:])
}

// ClearHeader zeros out the fixed header contents.
func (efrm Frame) ClearHeader() {
	for i := range efrm.buf[:sizeHeader] {
		efrm.buf[i] = 0
	}
}

//
// Validation API.
//

var errShort = errors.New("ethernet: too short")

// ValidateSize checks the frame's size fields and compares with the actual buffer
// the frame. It returns a non-nil error on finding an inconsistency.
func (efrm Frame) ValidateSize(v *wire.Validator) {
	sz := efrm.EtherTypeOrSize()
	if sz.IsSize() && len(efrm.buf) < sizeHeader+int(sz) {
		v.AddError(errShort)
	}
}
