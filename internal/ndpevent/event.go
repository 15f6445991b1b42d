// Package ndpevent defines the message type NSMonitor hands to RoutingTable
// and RoutingTable hands onward to NDProxy — kept in its own package so
// routing can use it without importing monitor, which itself imports routing.
package ndpevent

import "net/netip"

// NS is what an NSMonitor sends on the matched proxy's channel: the
// interface the NS arrived on, the (already-decoded) solicited target
// address, and the raw frame bytes — needed downstream to recover the NS's
// original source address for the eventual NA reply.
type NS struct {
	ScopeID uint32
	Target  netip.Addr
	Raw     []byte
}
