// Package proxy implements NDProxy, the per-prefix state machine that
// consumes Neighbor Solicitations and emits verified Neighbor
// Advertisements: the heart of the system (§4.8).
package proxy

import (
	"context"
	"log/slog"
	"net/netip"

	"github.com/ndproxy/ndproxy/internal/addrutil"
	"github.com/ndproxy/ndproxy/internal/config"
	"github.com/ndproxy/ndproxy/internal/ifaceinfo"
	"github.com/ndproxy/ndproxy/internal/ndperrors"
	"github.com/ndproxy/ndproxy/internal/ndpevent"
	"github.com/ndproxy/ndproxy/internal/ndpwire"
	"github.com/ndproxy/ndproxy/internal/neighborcache"
	"github.com/ndproxy/ndproxy/internal/rawsock"
)

// chanCapacity is the authoritative backpressure point: an NS storm slows
// the feeding NSMonitor rather than growing memory without bound (§4.8,
// §9 Open Questions — the latest preserved draft form is capacity 1 and
// this implementation keeps it as-is).
const chanCapacity = 1

// sendFunc abstracts PacketSender.SendTo so tests can substitute a fake
// sender without opening a real raw socket.
type sendFunc func(b []byte, dest rawsock.Dest) error

// NDProxy is one instance per ProxyConfig (§3 "NDProxy state").
type NDProxy struct {
	name        string
	mode        config.Mode
	proxiedPfx  netip.Prefix
	proxiedCsum uint16
	dstPfx      netip.Prefix
	dstCsum     uint16
	mangling    config.AddressMangling
	naFlags     byte

	upstream   map[uint32]ifaceinfo.Interface
	downstream map[uint32]ifaceinfo.Interface

	recv  <-chan ndpevent.NS
	cache *neighborcache.Cache

	sender *rawsock.PacketSender
	send   sendFunc

	log *slog.Logger
}

// New builds an NDProxy from a validated ProxyConfig plus the discovered
// interface set. It returns the proxy and the sender end of its inbound NS
// channel — RoutingTable construction consumes that sender exactly once,
// per the construction contract in §4.8.
func New(cfg config.ProxyConfig, allIfaces map[string]ifaceinfo.Interface, cache *neighborcache.Cache, log *slog.Logger) (*NDProxy, chan<- ndpevent.NS, error) {
	upstream, err := ifaceinfo.Select(allIfaces, cfg.ProxiedIfaces)
	if err != nil {
		return nil, nil, err
	}
	downstream, err := ifaceinfo.Select(allIfaces, cfg.ForwardedIfaces)
	if err != nil {
		return nil, nil, err
	}

	sender, err := rawsock.NewPacketSender()
	if err != nil {
		return nil, nil, err
	}
	if err := sender.SetMulticastHops(255); err != nil {
		_ = sender.Close()
		return nil, nil, err
	}
	if err := sender.SetUnicastHops(255); err != nil {
		_ = sender.Close()
		return nil, nil, err
	}

	ch := make(chan ndpevent.NS, chanCapacity)

	p := &NDProxy{
		name:        cfg.Name,
		mode:        cfg.Mode,
		proxiedPfx:  cfg.ProxiedPfx,
		proxiedCsum: addrutil.PrefixChecksum(cfg.ProxiedPfx),
		dstPfx:      cfg.DstPfx,
		dstCsum:     addrutil.PrefixChecksum(cfg.DstPfx),
		mangling:    cfg.Mangling,
		naFlags:     cfg.NAFlags,
		upstream:    upstream,
		downstream:  downstream,
		recv:        ch,
		cache:       cache,
		sender:      sender,
		send:        sender.SendTo,
		log:         log.With("component", "ndproxy", "proxy", cfg.Name),
	}
	return p, ch, nil
}

// Run consumes inbound NS events until ctx is cancelled, the channel
// closes (all feeding NSMonitors gone — a clean shutdown), or a fatal
// error occurs.
func (p *NDProxy) Run(ctx context.Context) error {
	defer p.sender.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-p.recv:
			if !ok {
				return ndperrors.ErrMpscRecvNone
			}
			if err := p.handle(ev); err != nil {
				return err
			}
		}
	}
}

func (p *NDProxy) handle(ev ndpevent.NS) error {
	// Step A — gate: defence in depth against routing-table misrouting.
	ingress, ok := p.upstream[ev.ScopeID]
	if !ok {
		return nil
	}

	// The NS's source address is byte-addressed at raw_packet[8..24].
	parsed, ok := ndpwire.ParseNSFields(ev.Raw)
	if !ok {
		return nil
	}
	nsSrc := parsed.Src

	// Step B — rewrite.
	rewritten := p.rewrite(ev.Target)

	p.log.Debug("ns event", "ingress", ingress.Name, "target", ev.Target, "rewritten", rewritten)

	// Step C — mode branch.
	if p.mode == config.Static {
		return p.emitNA(ingress, nsSrc, ev.Target)
	}
	return p.handleForward(ingress, ev.ScopeID, rewritten, ev.Target, nsSrc)
}

func (p *NDProxy) rewrite(target netip.Addr) netip.Addr {
	switch p.mangling {
	case config.Netmap:
		return addrutil.Netmap(target, p.dstPfx)
	case config.NPT:
		return addrutil.NPT(p.proxiedCsum, p.dstCsum, target, p.dstPfx)
	default:
		return target
	}
}

func (p *NDProxy) handleForward(ingress ifaceinfo.Interface, ingressScope uint32, rewritten, originalTarget, nsSrc netip.Addr) error {
	// C1 — unicast probe to rewritten_target on every downstream interface
	// other than the one the NS arrived on.
	for scope, iface := range p.downstream {
		if scope == ingressScope {
			continue
		}
		if err := p.sendProbe(iface, rewritten, rewritten); err != nil {
			return err
		}
	}

	// C2 — cache check.
	for scope := range p.downstream {
		if p.cache.Exists(scope, rewritten) {
			return p.emitNA(ingress, nsSrc, originalTarget)
		}
	}

	// C3 — multicast probe: provoke the real host into advertising so a
	// subsequent NS from the same upstream succeeds against the cache.
	snMcast := addrutil.SolicitedNodeMulticast(rewritten)
	for scope, iface := range p.downstream {
		if scope == ingressScope {
			continue
		}
		if err := p.sendProbe(iface, snMcast, rewritten); err != nil {
			return err
		}
	}
	return nil
}

// sendProbe builds and sends a single NS with src=iface.link_local,
// target=target, and an SLLA option carrying iface's MAC, to dst on
// iface's scope (§4.8 C1/C3).
func (p *NDProxy) sendProbe(iface ifaceinfo.Interface, dst, target netip.Addr) error {
	pkt, err := ndpwire.BuildNS(iface.LinkLocal, dst, target, iface.MAC)
	if err != nil {
		return err
	}
	if err := p.send(pkt, rawsock.Dest{Addr: dst, ScopeID: iface.ScopeID}); err != nil {
		return err
	}
	return nil
}

// emitNA builds and sends the proxied NA upstream (§4.8 Step E): src is
// unspecified, dst is the NS's original source, target is the
// pre-translation address, and the TLLA option carries the upstream
// interface's MAC. The codec clears the Override bit unconditionally.
func (p *NDProxy) emitNA(ingress ifaceinfo.Interface, dst, target netip.Addr) error {
	pkt, err := ndpwire.BuildNA(netip.IPv6Unspecified(), dst, target, ingress.MAC, p.naFlags)
	if err != nil {
		return err
	}
	return p.send(pkt, rawsock.Dest{Addr: dst, ScopeID: ingress.ScopeID})
}
