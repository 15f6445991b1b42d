package ndpwire

import (
	"net"
	"net/netip"
	"testing"
)

func TestBuildNSIncludesSLLAWhenSrcProvided(t *testing.T) {
	src := netip.MustParseAddr("fe80::1")
	dst := netip.MustParseAddr("ff02::1:ff00:2")
	target := netip.MustParseAddr("2001:db8::2")
	mac := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}

	pkt, err := BuildNS(src, dst, target, mac)
	if err != nil {
		t.Fatalf("BuildNS: %v", err)
	}
	// type(1) + code(1) + checksum(2) + reserved(4) + target(16) + SLLA option(8)
	if len(pkt) != 32 {
		t.Fatalf("len(pkt) = %d, want 32", len(pkt))
	}
	if pkt[0] != 135 {
		t.Errorf("ICMPv6 type = %d, want 135", pkt[0])
	}
	opt := pkt[24:32]
	if opt[0] != optSourceLinkLayerAddr || opt[1] != 1 {
		t.Errorf("SLLA option header = %v", opt[:2])
	}
	if got := net.HardwareAddr(opt[2:8]).String(); got != mac.String() {
		t.Errorf("SLLA MAC = %s, want %s", got, mac)
	}
}

func TestBuildNSOmitsSLLAWhenSrcMACNil(t *testing.T) {
	src := netip.IPv6Unspecified()
	dst := netip.MustParseAddr("ff02::1:ff00:2")
	target := netip.MustParseAddr("2001:db8::2")

	pkt, err := BuildNS(src, dst, target, nil)
	if err != nil {
		t.Fatalf("BuildNS: %v", err)
	}
	if len(pkt) != 24 {
		t.Fatalf("len(pkt) = %d, want 24 (no option)", len(pkt))
	}
}

func TestBuildNAClearsOverrideBit(t *testing.T) {
	src := netip.MustParseAddr("fe80::1")
	dst := netip.MustParseAddr("fe80::2")
	target := netip.MustParseAddr("2001:db8::2")
	mac := net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}

	pkt, err := BuildNA(src, dst, target, mac, 0xE0) // Router|Solicited|Override
	if err != nil {
		t.Fatalf("BuildNA: %v", err)
	}
	flags := pkt[4]
	if flags&overrideBit != 0 {
		t.Errorf("flags = %#x, Override bit must be cleared", flags)
	}
	if flags&0x80 == 0 || flags&0x40 == 0 {
		t.Errorf("flags = %#x, Router and Solicited bits should survive", flags)
	}
}

func TestParseNSFieldsTooShort(t *testing.T) {
	if _, ok := ParseNSFields(make([]byte, 63)); ok {
		t.Error("ParseNSFields accepted a 63-byte frame")
	}
}

func TestParseNSFieldsExtractsOffsets(t *testing.T) {
	pkt := make([]byte, 64)
	src := netip.MustParseAddr("fe80::1").As16()
	dst := netip.MustParseAddr("fe80::2").As16()
	target := netip.MustParseAddr("2001:db8::3").As16()
	copy(pkt[8:24], src[:])
	copy(pkt[24:40], dst[:])
	copy(pkt[48:64], target[:])

	parsed, ok := ParseNSFields(pkt)
	if !ok {
		t.Fatal("ParseNSFields rejected a 64-byte frame")
	}
	if parsed.Src.String() != "fe80::1" {
		t.Errorf("Src = %s, want fe80::1", parsed.Src)
	}
	if parsed.Dst.String() != "fe80::2" {
		t.Errorf("Dst = %s, want fe80::2", parsed.Dst)
	}
	if parsed.Target.String() != "2001:db8::3" {
		t.Errorf("Target = %s, want 2001:db8::3", parsed.Target)
	}
}
