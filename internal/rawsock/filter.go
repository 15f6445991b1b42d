package rawsock

import (
	"golang.org/x/net/bpf"
)

// ndpFilterProgram assembles the classic-BPF program that accepts a frame
// iff the IPv6 Next Header byte (offset 6) equals 58 (ICMPv6) and the
// ICMPv6 Type byte (offset 40) equals wantType. Frames that fail either
// check never cross to user space — this is the in-kernel filtering
// §4.3/§6 call for, built the same way golang.org/x/net/bpf is used
// throughout the ecosystem for classic-BPF assembly (the teacher's own
// golang.org/x/net import family).
func ndpFilterProgram(wantType byte) ([]bpf.RawInstruction, error) {
	insns := []bpf.Instruction{
		// A = byte at offset 6 (IPv6 Next Header)
		bpf.LoadAbsolute{Off: 6, Size: 1},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: 58, SkipTrue: 3},
		// A = byte at offset 40 (ICMPv6 Type)
		bpf.LoadAbsolute{Off: 40, Size: 1},
		bpf.JumpIf{Cond: bpf.JumpNotEqual, Val: uint32(wantType), SkipTrue: 1},
		bpf.RetConstant{Val: 0x40000}, // accept, truncate to 256KB (more than enough)
		bpf.RetConstant{Val: 0},       // reject
	}
	return bpf.Assemble(insns)
}
