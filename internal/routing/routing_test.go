package routing

import (
	"net/netip"
	"testing"

	"github.com/ndproxy/ndproxy/internal/ndpevent"
)

func TestLookupMatchesContainingPrefix(t *testing.T) {
	sink := make(chan ndpevent.NS, 1)
	pfx := netip.MustParsePrefix("2001:db8::/32")
	tbl := Build(map[netip.Prefix]chan ndpevent.NS{pfx: sink})

	m, ok := tbl.Lookup(netip.MustParseAddr("2001:db8::dead:beef"))
	if !ok {
		t.Fatal("Lookup reported no match")
	}
	if m.Network != pfx {
		t.Errorf("Network = %s, want %s", m.Network, pfx)
	}
	if m.Sink != sink {
		t.Error("Sink does not match the registered channel")
	}
}

func TestLookupNoMatchOutsideAnyPrefix(t *testing.T) {
	sink := make(chan ndpevent.NS, 1)
	pfx := netip.MustParsePrefix("2001:db8::/32")
	tbl := Build(map[netip.Prefix]chan ndpevent.NS{pfx: sink})

	if _, ok := tbl.Lookup(netip.MustParseAddr("2001:db9::1")); ok {
		t.Error("Lookup matched an address outside the registered prefix")
	}
}

func TestLookupExcludesSubnetRouterAnycast(t *testing.T) {
	sink := make(chan ndpevent.NS, 1)
	pfx := netip.MustParsePrefix("2001:db8::/32")
	tbl := Build(map[netip.Prefix]chan ndpevent.NS{pfx: sink})

	if _, ok := tbl.Lookup(pfx.Addr()); ok {
		t.Error("Lookup matched the subnet-router anycast address")
	}
}

func TestLookupPicksMostSpecificPrefix(t *testing.T) {
	outer := make(chan ndpevent.NS, 1)
	inner := make(chan ndpevent.NS, 1)
	tbl := Build(map[netip.Prefix]chan ndpevent.NS{
		netip.MustParsePrefix("2001:db8::/32"):   outer,
		netip.MustParsePrefix("2001:db8:1::/48"): inner,
	})

	m, ok := tbl.Lookup(netip.MustParseAddr("2001:db8:1::1"))
	if !ok {
		t.Fatal("Lookup reported no match")
	}
	if m.Sink != inner {
		t.Error("Lookup did not prefer the more specific /48")
	}
}
