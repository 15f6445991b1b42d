package rawsock

import (
	"net"
	"net/netip"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv6"

	"github.com/ndproxy/ndproxy/internal/ndperrors"
)

// PacketSender is a raw ICMPv6 egress socket, built the same way the
// teacher's NDPListener opens its ingress socket
// (icmp.ListenPacket("ip6:ipv6-icmp", ...)) — except used here to write.
type PacketSender struct {
	pc *icmp.PacketConn
	p6 *ipv6.PacketConn
}

// NewPacketSender opens a non-blocking raw IPv6 ICMPv6 socket.
func NewPacketSender() (*PacketSender, error) {
	pc, err := icmp.ListenPacket("ip6:ipv6-icmp", "::")
	if err != nil {
		return nil, &ndperrors.SocketOptError{Kind: ndperrors.SocketCreate, Err: err}
	}
	p6 := pc.IPv6PacketConn()
	if err := p6.SetControlMessage(ipv6.FlagInterface, true); err != nil {
		_ = pc.Close()
		return nil, &ndperrors.SocketOptError{Kind: ndperrors.SocketCreate, Err: err}
	}
	return &PacketSender{pc: pc, p6: p6}, nil
}

// SetMulticastHops sets the multicast hop limit, required to be 255 for
// every NDP message by RFC 4861.
func (s *PacketSender) SetMulticastHops(n int) error {
	if err := s.p6.SetMulticastHopLimit(n); err != nil {
		return &ndperrors.SocketOptError{Kind: ndperrors.SetMultiHop, Err: err}
	}
	return nil
}

// SetUnicastHops sets the unicast hop limit, likewise required to be 255.
func (s *PacketSender) SetUnicastHops(n int) error {
	if err := s.p6.SetHopLimit(n); err != nil {
		return &ndperrors.SocketOptError{Kind: ndperrors.SetUniHop, Err: err}
	}
	return nil
}

// Dest carries a destination address plus the scope id that selects the
// egress interface for link-scope destinations.
type Dest struct {
	Addr    netip.Addr
	ScopeID uint32
}

// SendTo sends one ICMPv6 message to dest.
func (s *PacketSender) SendTo(b []byte, dest Dest) error {
	cm := &ipv6.ControlMessage{IfIndex: int(dest.ScopeID)}
	_, err := s.p6.WriteTo(b, cm, &net.UDPAddr{IP: net.IP(dest.Addr.AsSlice())})
	if err != nil {
		return &ndperrors.IOError{Op: "sendto", Err: err}
	}
	return nil
}

// Close releases the socket.
func (s *PacketSender) Close() error {
	return s.pc.Close()
}
