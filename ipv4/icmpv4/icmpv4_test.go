package icmpv4

import (
	"testing"

	wire "github.com/soypat/ip4router"
)

func TestBuildEchoReplyChecksumVerifies(t *testing.T) {
	buf := make([]byte, 16)
	frm := Frame{buf: buf}
	frm.SetType(TypeEcho)
	frm.SetCode(0)
	echo := FrameEcho{Frame: frm}
	echo.SetIdentifier(0xABCD)
	echo.SetSequenceNumber(1)
	copy(echo.Data(), []byte{1, 2, 3, 4, 5, 6, 7, 8})
	frm.SetCRC(0)
	var crc wire.CRC791
	frm.CRCWrite(&crc)
	frm.SetCRC(crc.Sum16())

	BuildEchoReply(buf)

	if frm.Type() != TypeEchoReply {
		t.Fatalf("want type echo-reply, got %v", frm.Type())
	}
	if echo.Identifier() != 0xABCD || echo.SequenceNumber() != 1 {
		t.Fatal("BuildEchoReply must preserve identifier and sequence number")
	}
	gotCRC := frm.CRC()
	frm.SetCRC(0)
	var verify wire.CRC791
	frm.CRCWrite(&verify)
	if gotCRC != wire.NeverZeroChecksum(verify.Sum16()) {
		t.Fatal("echo reply checksum does not verify")
	}
}

func TestBuildDestinationUnreachableCarriesHeaderAndOctets(t *testing.T) {
	origIPHeader := make([]byte, 28) // 20-byte header + 8 bytes of payload
	for i := range origIPHeader {
		origIPHeader[i] = byte(i + 1)
	}
	buf := make([]byte, DestinationUnreachableLen(len(origIPHeader)))
	BuildDestinationUnreachable(buf, CodePortUnreachable, origIPHeader)

	frm := Frame{buf: buf}
	if frm.Type() != TypeDestinationUnreachable {
		t.Fatalf("want type destination-unreachable, got %v", frm.Type())
	}
	if (FrameDestinationUnreachable{frm}).Code() != CodePortUnreachable {
		t.Fatalf("want code port-unreachable, got %v", frm.Code())
	}
	for i, b := range origIPHeader {
		if buf[8+i] != b {
			t.Fatalf("carried payload byte %d = %d, want %d", i, buf[8+i], b)
			break
		}
	}
	gotCRC := frm.CRC()
	frm.SetCRC(0)
	var crc wire.CRC791
	frm.CRCWrite(&crc)
	if gotCRC != wire.NeverZeroChecksum(crc.Sum16()) {
		t.Fatal("destination-unreachable checksum does not verify")
	}
}
