package arp

import (
	"testing"

	wire "github.com/soypat/ip4router"
	"github.com/soypat/ip4router/ethernet"
)

func TestFrameSwapTargetSender(t *testing.T) {
	buf := make([]byte, sizeHeaderv4)
	afrm, err := NewFrame(buf)
	if err != nil {
		t.Fatal(err)
	}
	afrm.SetHardware(1, 6)
	afrm.SetProtocol(ethernet.TypeIPv4, 4)
	afrm.SetOperation(OpRequest)
	senderHW, senderIP := afrm.Sender4()
	*senderHW = [6]byte{1, 2, 3, 4, 5, 6}
	*senderIP = [4]byte{10, 0, 0, 1}
	targetHW, targetIP := afrm.Target4()
	*targetHW = [6]byte{}
	*targetIP = [4]byte{10, 0, 0, 2}

	afrm.SwapTargetSender()

	newSenderHW, newSenderIP := afrm.Sender4()
	newTargetHW, newTargetIP := afrm.Target4()
	if *newSenderHW != [6]byte{} || *newSenderIP != [4]byte{10, 0, 0, 2} {
		t.Fatalf("sender after swap = %x/%v, want zero-hw/10.0.0.2", *newSenderHW, *newSenderIP)
	}
	if *newTargetHW != [6]byte{1, 2, 3, 4, 5, 6} || *newTargetIP != [4]byte{10, 0, 0, 1} {
		t.Fatalf("target after swap = %x/%v, want original sender", *newTargetHW, *newTargetIP)
	}
}

func TestValidateSizeShortBuffer(t *testing.T) {
	buf := make([]byte, sizeHeaderv4)
	afrm, err := NewFrame(buf)
	if err != nil {
		t.Fatal(err)
	}
	afrm.SetHardware(1, 6)
	afrm.SetProtocol(ethernet.TypeIPv4, 4)
	var v wire.Validator
	afrm.ValidateSize(&v)
	if v.HasError() {
		t.Fatalf("well-formed Ethernet/IPv4 ARP frame should validate, got %v", v.Err())
	}

	short, err := NewFrame(make([]byte, sizeHeaderv4))
	if err != nil {
		t.Fatal(err)
	}
	short.SetHardware(1, 16) // claims a 16-byte hardware address it doesn't have room for
	short.SetProtocol(ethernet.TypeIPv4, 4)
	var v2 wire.Validator
	short.ValidateSize(&v2)
	if !v2.HasError() {
		t.Fatal("expected a structural error when declared address lengths exceed the buffer")
	}
}

func TestClip(t *testing.T) {
	buf := make([]byte, sizeHeaderv4+10) // trailing Ethernet padding
	afrm, err := NewFrame(buf)
	if err != nil {
		t.Fatal(err)
	}
	afrm.SetHardware(1, 6)
	afrm.SetProtocol(ethernet.TypeIPv4, 4)
	clipped := afrm.Clip()
	if len(clipped.RawData()) != sizeHeaderv4 {
		t.Fatalf("Clip length = %d, want %d", len(clipped.RawData()), sizeHeaderv4)
	}
}
