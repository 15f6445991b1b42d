// Package ndpwire builds and parses the NDP messages the proxy sends and
// receives: Neighbor Solicitation (ICMPv6 135) and Neighbor Advertisement
// (ICMPv6 136), per RFC 4861 §4.3-4.4. Checksum computation is delegated to
// golang.org/x/net/icmp, the same library the teacher's listener uses to
// parse inbound ICMPv6 traffic.
package ndpwire

import (
	"net"
	"net/netip"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv6"

	"github.com/ndproxy/ndproxy/internal/ndperrors"
)

// NDP option types (RFC 4861 §4.6).
const (
	optSourceLinkLayerAddr = 1
	optTargetLinkLayerAddr = 2
)

// overrideBit is the 0x20 bit of an NA's flags byte. This implementation
// always clears it: setting it risks clobbering a legitimate entry in an
// upstream host's neighbor cache for an address we are merely proxying.
const overrideBit = 0x20

// llaOption renders a Source/Target Link-Layer Address option: 1-byte type,
// 1-byte length (in 8-byte units — always 1 for a 6-byte MAC), the MAC
// itself padded to an 8-byte boundary.
func llaOption(optType byte, mac net.HardwareAddr) []byte {
	opt := make([]byte, 8)
	opt[0] = optType
	opt[1] = 1
	copy(opt[2:8], mac)
	return opt
}

type nsBody struct {
	target netip.Addr
	srcMAC net.HardwareAddr // nil omits the SLLA option (RFC 4861: unspecified-source NS)
}

func (b *nsBody) Len(int) int {
	n := 4 + 16 // reserved + target
	if b.srcMAC != nil {
		n += 8
	}
	return n
}

func (b *nsBody) Marshal(int) ([]byte, error) {
	out := make([]byte, 4, b.Len(0))
	t := b.target.As16()
	out = append(out, t[:]...)
	if b.srcMAC != nil {
		out = append(out, llaOption(optSourceLinkLayerAddr, b.srcMAC)...)
	}
	return out, nil
}

type naBody struct {
	flags  byte
	target netip.Addr
	tllMAC net.HardwareAddr
}

func (b *naBody) Len(int) int {
	return 4 + 16 + 8 // flags+reserved, target, TLLA option
}

func (b *naBody) Marshal(int) ([]byte, error) {
	out := make([]byte, 4, b.Len(0))
	out[0] = b.flags &^ overrideBit
	t := b.target.As16()
	out = append(out, t[:]...)
	out = append(out, llaOption(optTargetLinkLayerAddr, b.tllMAC)...)
	return out, nil
}

// BuildNS builds a Neighbor Solicitation. srcMAC may be nil to omit the
// Source-Link-Layer-Address option, as RFC 4861 requires when src is the
// unspecified address.
func BuildNS(src, dst, target netip.Addr, srcMAC net.HardwareAddr) ([]byte, error) {
	msg := icmp.Message{
		Type: ipv6.ICMPTypeNeighborSolicitation,
		Code: 0,
		Body: &nsBody{target: target, srcMAC: srcMAC},
	}
	b, err := msg.Marshal(icmp.IPv6PseudoHeader(net.IP(src.AsSlice()), net.IP(dst.AsSlice())))
	if err != nil {
		return nil, &ndperrors.PacketGenerationError{Kind: ndperrors.NeighborSol, Err: err}
	}
	return b, nil
}

// BuildNA builds a Neighbor Advertisement. The Override bit of flags is
// always cleared by this codec regardless of the caller's value.
func BuildNA(src, dst, target netip.Addr, srcMAC net.HardwareAddr, flags byte) ([]byte, error) {
	msg := icmp.Message{
		Type: ipv6.ICMPTypeNeighborAdvertisement,
		Code: 0,
		Body: &naBody{flags: flags, target: target, tllMAC: srcMAC},
	}
	b, err := msg.Marshal(icmp.IPv6PseudoHeader(net.IP(src.AsSlice()), net.IP(dst.AsSlice())))
	if err != nil {
		return nil, &ndperrors.PacketGenerationError{Kind: ndperrors.NeighborAdv, Err: err}
	}
	return b, nil
}

// ParsedNS is the information NSMonitor and NAMonitor extract from a raw
// IPv6+ICMPv6 frame captured off the wire (as opposed to the ICMPv6-only
// bytes BuildNS/BuildNA return for transmission over a raw ICMPv6 socket).
type ParsedNS struct {
	Src    netip.Addr
	Dst    netip.Addr
	Target netip.Addr
}

// minFrameLen is the shortest a captured IPv6+ICMPv6 NS/NA frame can be:
// 40 bytes of IPv6 header + 4 bytes ICMPv6 type/code/checksum + 4 bytes
// reserved (NS) or flags/reserved (NA) + 16 bytes target, so the target
// ends exactly at byte 64.
const minFrameLen = 64

// ParseNSFields extracts source, destination and target addresses from a
// full IPv6+ICMPv6 frame. Callers must have pre-validated the ICMPv6 type
// via BPF; this function trusts the offsets spec.md fixes: src [8:24],
// dst [24:40], target [48:64].
func ParseNSFields(pkt []byte) (ParsedNS, bool) {
	if len(pkt) < minFrameLen {
		return ParsedNS{}, false
	}
	src, err1 := addrFromBytes(pkt[8:24])
	dst, err2 := addrFromBytes(pkt[24:40])
	target, err3 := addrFromBytes(pkt[48:64])
	if err1 != nil || err2 != nil || err3 != nil {
		return ParsedNS{}, false
	}
	return ParsedNS{Src: src, Dst: dst, Target: target}, true
}

func addrFromBytes(b []byte) (netip.Addr, error) {
	var a [16]byte
	copy(a[:], b)
	return netip.AddrFrom16(a), nil
}

// IPv6NextHeaderOffset is the byte offset of the Next Header field in an IPv6
// header — BPF filters match next-header==58 (ICMPv6) here.
const IPv6NextHeaderOffset = 6

// ICMPv6TypeOffset is the byte offset of the ICMPv6 Type field within a
// captured IPv6+ICMPv6 frame (after the fixed 40-byte IPv6 header).
const ICMPv6TypeOffset = 40

// ICMPv6 type values used by NDP (RFC 4861 §3-4) and IPv6 next-header.
const (
	ICMPv6NextHeader = 58
	ICMPv6TypeNS      = byte(ipv6.ICMPTypeNeighborSolicitation)
	ICMPv6TypeNA      = byte(ipv6.ICMPTypeNeighborAdvertisement)
)
