package rawsock

import (
	"testing"

	"golang.org/x/net/bpf"
)

func runFilter(t *testing.T, wantType byte, pkt []byte) int {
	t.Helper()
	raw, err := ndpFilterProgram(wantType)
	if err != nil {
		t.Fatalf("ndpFilterProgram: %v", err)
	}
	insns := make([]bpf.Instruction, len(raw))
	for i, r := range raw {
		insns[i] = r
	}
	vm, err := bpf.NewVM(insns)
	if err != nil {
		t.Fatalf("bpf.NewVM: %v", err)
	}
	n, err := vm.Run(pkt)
	if err != nil {
		t.Fatalf("vm.Run: %v", err)
	}
	return n
}

func icmpv6Frame(icmpType byte) []byte {
	pkt := make([]byte, 64)
	pkt[6] = 58 // IPv6 next header: ICMPv6
	pkt[40] = icmpType
	return pkt
}

func TestNdpFilterAcceptsMatchingType(t *testing.T) {
	n := runFilter(t, 135, icmpv6Frame(135))
	if n == 0 {
		t.Error("filter rejected a matching NS frame")
	}
}

func TestNdpFilterRejectsOtherICMPv6Type(t *testing.T) {
	n := runFilter(t, 135, icmpv6Frame(136))
	if n != 0 {
		t.Error("filter accepted a non-matching ICMPv6 type")
	}
}

func TestNdpFilterRejectsNonICMPv6(t *testing.T) {
	pkt := make([]byte, 64)
	pkt[6] = 17 // UDP
	pkt[40] = 135
	n := runFilter(t, 135, pkt)
	if n != 0 {
		t.Error("filter accepted a non-ICMPv6 next header")
	}
}
