// Package routing implements the longest-prefix-match fabric that fans
// incoming Neighbor Solicitations out to the NDProxy instance owning the
// matched prefix. The trie itself is github.com/gaissmai/bart's Table — a
// balanced routing table purpose-built for exactly this LPM-over-netip.Addr
// workload — wrapped here only to add the RFC 4291 subnet-router-anycast
// edge rule that BART, being ND-agnostic, knows nothing about.
package routing

import (
	"net/netip"

	"github.com/gaissmai/bart"

	"github.com/ndproxy/ndproxy/internal/ndpevent"
)

// Table is an immutable-after-construction longest-prefix-match trie from
// IPv6 address to the NS-sink channel of the proxy owning that prefix.
type Table struct {
	t bart.Table[chan ndpevent.NS]
}

// Build constructs the trie from a prefix -> sink map. The table is never
// mutated again once Build returns.
func Build(entries map[netip.Prefix]chan ndpevent.NS) *Table {
	tbl := &Table{}
	for pfx, sink := range entries {
		tbl.t.Insert(pfx.Masked(), sink)
	}
	return tbl
}

// Match is the result of a successful lookup.
type Match struct {
	Network netip.Prefix
	Sink    chan ndpevent.NS
}

// Lookup returns the most-specific prefix match for addr, or ok=false if
// none exists. Per the §4.5 edge rule, if addr equals the matched prefix's
// network address (the subnet-router anycast, RFC 4291 §2.6.1), the lookup
// reports no match so NSMonitor does not forward solicitations for it.
func (t *Table) Lookup(addr netip.Addr) (Match, bool) {
	pfx := netip.PrefixFrom(addr, addr.BitLen())
	lpmPfx, sink, ok := t.t.LookupPrefixLPM(pfx)
	if !ok {
		return Match{}, false
	}
	if lpmPfx.Addr() == addr {
		return Match{}, false
	}
	return Match{Network: lpmPfx, Sink: sink}, true
}
