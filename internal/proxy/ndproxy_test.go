package proxy

import (
	"io"
	"log/slog"
	"net"
	"net/netip"
	"testing"

	"github.com/ndproxy/ndproxy/internal/config"
	"github.com/ndproxy/ndproxy/internal/ifaceinfo"
	"github.com/ndproxy/ndproxy/internal/ndpevent"
	"github.com/ndproxy/ndproxy/internal/neighborcache"
	"github.com/ndproxy/ndproxy/internal/rawsock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// buildFrame constructs a minimal 64-byte IPv6+ICMPv6-shaped frame with src,
// dst and target placed at the fixed offsets ndpwire.ParseNSFields reads.
func buildFrame(src, dst, target netip.Addr) []byte {
	buf := make([]byte, 64)
	s, d, tg := src.As16(), dst.As16(), target.As16()
	copy(buf[8:24], s[:])
	copy(buf[24:40], d[:])
	copy(buf[48:64], tg[:])
	return buf
}

func testIface(name string, scope uint32) ifaceinfo.Interface {
	return ifaceinfo.Interface{
		Name:      name,
		ScopeID:   scope,
		LinkLocal: netip.MustParseAddr("fe80::" + name),
		MAC:       net.HardwareAddr{0x02, 0, 0, 0, 0, byte(scope)},
	}
}

type sentPacket struct {
	dest rawsock.Dest
}

func newTestProxy(mode config.Mode, mangling config.AddressMangling) (*NDProxy, *[]sentPacket) {
	sent := &[]sentPacket{}
	p := &NDProxy{
		name:     "test",
		mode:     mode,
		mangling: mangling,
		dstPfx:   netip.MustParsePrefix("fd00::/64"),
		upstream: map[uint32]ifaceinfo.Interface{
			1: testIface("wan", 1),
		},
		downstream: map[uint32]ifaceinfo.Interface{
			2: testIface("lan0", 2),
			3: testIface("lan1", 3),
		},
		cache: neighborcache.New(0),
		send: func(b []byte, dest rawsock.Dest) error {
			*sent = append(*sent, sentPacket{dest: dest})
			return nil
		},
		log: discardLogger(),
	}
	return p, sent
}

func TestHandleStaticEmitsNAImmediately(t *testing.T) {
	p, sent := newTestProxy(config.Static, config.None)

	nsSrc := netip.MustParseAddr("2001:db8::cafe")
	target := netip.MustParseAddr("2001:db8::1")
	frame := buildFrame(nsSrc, netip.MustParseAddr("ff02::1:ff00:1"), target)

	if err := p.handle(ndpevent.NS{ScopeID: 1, Target: target, Raw: frame}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(*sent) != 1 {
		t.Fatalf("sent %d packets, want 1", len(*sent))
	}
	if (*sent)[0].dest.Addr != nsSrc {
		t.Errorf("NA destination = %s, want %s", (*sent)[0].dest.Addr, nsSrc)
	}
}

func TestHandleGatesOnUnknownIngressScope(t *testing.T) {
	p, sent := newTestProxy(config.Static, config.None)

	target := netip.MustParseAddr("2001:db8::1")
	frame := buildFrame(netip.MustParseAddr("2001:db8::cafe"), netip.MustParseAddr("ff02::1:ff00:1"), target)

	if err := p.handle(ndpevent.NS{ScopeID: 99, Target: target, Raw: frame}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(*sent) != 0 {
		t.Errorf("sent %d packets for an unrecognized ingress scope, want 0", len(*sent))
	}
}

func TestHandleForwardProbesDownstreamExceptIngress(t *testing.T) {
	p, sent := newTestProxy(config.Forward, config.None)

	target := netip.MustParseAddr("2001:db8::1")
	frame := buildFrame(netip.MustParseAddr("2001:db8::cafe"), netip.MustParseAddr("ff02::1:ff00:1"), target)

	// ingress is scope 1 (wan), which is not in downstream, so both lan0/lan1
	// should receive a unicast probe, plus a multicast probe each since the
	// cache has no entry.
	if err := p.handle(ndpevent.NS{ScopeID: 1, Target: target, Raw: frame}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(*sent) != 4 {
		t.Fatalf("sent %d packets, want 4 (2 unicast + 2 multicast probes)", len(*sent))
	}
}

func TestHandleForwardSkipsMulticastProbeOnCacheHit(t *testing.T) {
	p, sent := newTestProxy(config.Forward, config.None)
	target := netip.MustParseAddr("2001:db8::1")
	p.cache.MarkPresent(2, target)

	frame := buildFrame(netip.MustParseAddr("2001:db8::cafe"), netip.MustParseAddr("ff02::1:ff00:1"), target)
	if err := p.handle(ndpevent.NS{ScopeID: 1, Target: target, Raw: frame}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	// 2 unicast probes (lan0, lan1) + 1 NA reply upstream; no multicast probes.
	if len(*sent) != 3 {
		t.Fatalf("sent %d packets, want 3", len(*sent))
	}
}

func TestRewriteNetmap(t *testing.T) {
	p, _ := newTestProxy(config.Forward, config.Netmap)
	target := netip.MustParseAddr("2001:db8::1")
	got := p.rewrite(target)
	if !p.dstPfx.Contains(got) {
		t.Errorf("rewrite(%s) = %s, not within %s", target, got, p.dstPfx)
	}
}
