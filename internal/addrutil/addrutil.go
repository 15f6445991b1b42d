// Package addrutil implements the stateless IPv6 prefix arithmetic the ND
// proxy needs: NPTv6 checksum-neutral rewrite (RFC 6296), netmap 1:1 prefix
// substitution, solicited-node multicast synthesis (RFC 4291), and raw-bytes
// decode. Every function here is pure and total except Decode, which
// reports invalid input explicitly rather than panicking.
package addrutil

import (
	"fmt"
	"net/netip"
)

// ErrInvalidLength is returned by Decode when fewer than 16 bytes are given.
var ErrInvalidLength = fmt.Errorf("addrutil: need 16 bytes to decode an IPv6 address")

// Decode copies the first 16 octets of b into an IPv6 address.
func Decode(b []byte) (netip.Addr, error) {
	if len(b) < 16 {
		return netip.Addr{}, ErrInvalidLength
	}
	var a [16]byte
	copy(a[:], b[:16])
	return netip.AddrFrom16(a), nil
}

// segments returns the eight 16-bit big-endian segments of an IPv6 address.
func segments(a netip.Addr) [8]uint16 {
	b := a.As16()
	var s [8]uint16
	for i := range s {
		s[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return s
}

func fromSegments(s [8]uint16) netip.Addr {
	var b [16]byte
	for i, seg := range s {
		b[2*i] = byte(seg >> 8)
		b[2*i+1] = byte(seg)
	}
	return netip.AddrFrom16(b)
}

// onesComplementAdd adds two 16-bit values using one's-complement
// arithmetic, folding the carry back into the low bits (RFC 1071 style).
func onesComplementAdd(a, b uint16) uint16 {
	sum := uint32(a) + uint32(b)
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return uint16(sum)
}

// onesComplementSub subtracts b from a in one's-complement arithmetic; this
// is add of the one's-complement (bitwise NOT) of b.
func onesComplementSub(a, b uint16) uint16 {
	return onesComplementAdd(a, ^b)
}

// PrefixChecksum computes the one's-complement sum of the eight 16-bit
// segments of prefix's network address — the "prefix checksum" NPTv6 uses
// to keep the rewrite checksum-neutral.
func PrefixChecksum(prefix netip.Prefix) uint16 {
	segs := segments(prefix.Masked().Addr())
	var sum uint16
	for _, s := range segs {
		sum = onesComplementAdd(sum, s)
	}
	return sum
}

// segmentIndex returns the 16-bit segment index a prefix length boundary
// falls on. Callers must ensure prefixLen is a multiple of 16.
func segmentIndex(prefixLen int) int {
	return prefixLen / 16
}

// NPT rewrites addr under RFC 6296: the first prefixLen/16 segments become
// dst's segments, and the segment at that boundary is adjusted by the
// difference between the upstream and downstream prefix checksums so the
// whole address stays checksum-neutral. dst.Bits() must be a multiple of 16
// and callers must ensure addr and dst share the same prefix length
// (upstreamCsum/downstreamCsum precomputed via PrefixChecksum).
func NPT(upstreamCsum, downstreamCsum uint16, addr netip.Addr, dst netip.Prefix) netip.Addr {
	idx := segmentIndex(dst.Bits())
	addrSegs := segments(addr)
	dstSegs := segments(dst.Masked().Addr())

	out := addrSegs
	for i := 0; i < idx; i++ {
		out[i] = dstSegs[i]
	}
	if idx < 8 {
		adjusted := onesComplementAdd(onesComplementSub(upstreamCsum, downstreamCsum), addrSegs[idx])
		if adjusted == 0xFFFF {
			adjusted = 0 // one's-complement negative zero is written as 0x0000
		}
		out[idx] = adjusted
	}
	return fromSegments(out)
}

// hostMask returns a 128-bit mask with the low (128-prefixLen) bits set.
func hostMask(prefixLen int) [16]byte {
	var m [16]byte
	for i := range m {
		m[i] = 0xFF
	}
	full := prefixLen / 8
	rem := prefixLen % 8
	for i := 0; i < full && i < 16; i++ {
		m[i] = 0
	}
	if full < 16 && rem != 0 {
		m[full] = byte(0xFF) >> rem
	} else if full < 16 {
		m[full] = 0xFF
	}
	return m
}

// Netmap performs a 1:1 stateless prefix substitution: the host bits of
// addr are preserved, the network bits become dst's network bits.
func Netmap(addr netip.Addr, dst netip.Prefix) netip.Addr {
	mask := hostMask(dst.Bits())
	a := addr.As16()
	d := dst.Masked().Addr().As16()

	var out [16]byte
	for i := range out {
		out[i] = (a[i] & mask[i]) | (d[i] &^ mask[i])
	}
	return netip.AddrFrom16(out)
}

// SolicitedNodeMulticast produces ff02::1:ff00:0/104 | low-24-bits(addr),
// per RFC 4291 §2.7.1.
func SolicitedNodeMulticast(addr netip.Addr) netip.Addr {
	a := addr.As16()
	var out [16]byte
	out[0] = 0xff
	out[1] = 0x02
	out[11] = 0x01
	out[12] = 0xff
	out[13] = a[13]
	out[14] = a[14]
	out[15] = a[15]
	return netip.AddrFrom16(out)
}
