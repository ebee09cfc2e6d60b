package wire

import (
	"encoding/binary"
	"math/rand"
	"testing"
)

// TestChecksumRoundTrip exercises the testable property from the design
// doc: recomputing the checksum over a header with the checksum field
// zeroed and writing it back yields a buffer whose checksum verifies.
func TestChecksumRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		n := 20 + rng.Intn(40)
		buf := make([]byte, n)
		rng.Read(buf)
		const crcOff = 10
		buf[crcOff], buf[crcOff+1] = 0, 0
		sum := ChecksumRFC791(buf)
		binary.BigEndian.PutUint16(buf[crcOff:], sum)

		var c CRC791
		c.Write(buf)
		if c.Sum16() != 0 {
			t.Fatalf("iter %d: checksum does not verify after round-trip, got residual %#x", i, c.Sum16())
		}
	}
}

func TestChecksumOddLength(t *testing.T) {
	buf := []byte{0x01, 0x02, 0x03}
	var c CRC791
	c.Write(buf)
	want := checksum16(uint32(0x0102) + uint32(0x0300))
	if got := c.Sum16(); got != want {
		t.Fatalf("odd-length checksum = %#x, want %#x", got, want)
	}
}

func TestNeverZeroChecksum(t *testing.T) {
	if got := NeverZeroChecksum(0); got != 0xffff {
		t.Fatalf("NeverZeroChecksum(0) = %#x, want 0xffff", got)
	}
	if got := NeverZeroChecksum(0x1234); got != 0x1234 {
		t.Fatalf("NeverZeroChecksum(0x1234) = %#x, want unchanged", got)
	}
}

func TestPayloadSum16DoesNotMutate(t *testing.T) {
	var c CRC791
	c.AddUint16(0x1234)
	before := c.Sum16()
	_ = c.PayloadSum16([]byte{1, 2, 3})
	after := c.Sum16()
	if before != after {
		t.Fatal("PayloadSum16 must not mutate the running checksum")
	}
}
