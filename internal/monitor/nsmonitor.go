package monitor

import (
	"context"
	"log/slog"

	"github.com/ndproxy/ndproxy/internal/ifaceinfo"
	"github.com/ndproxy/ndproxy/internal/ndpevent"
	"github.com/ndproxy/ndproxy/internal/ndpwire"
	"github.com/ndproxy/ndproxy/internal/rawsock"
	"github.com/ndproxy/ndproxy/internal/routing"
)

// NSMonitor is the per-upstream-interface task that reads Neighbor
// Solicitations off one interface's PacketReceiver, decodes them, and fans
// them out through the shared RoutingTable to the NDProxy that owns the
// solicited prefix. Each NSMonitor preserves the FIFO order of its own
// captured frames.
type NSMonitor struct {
	iface  ifaceinfo.Interface
	recv   *rawsock.PacketReceiver
	routes *routing.Table
	log    *slog.Logger
}

// NewNSMonitor opens and configures a PacketReceiver bound to iface,
// filtered to Neighbor Solicitations, with all-multicast reception enabled
// so solicited-node multicast NS frames reach it.
func NewNSMonitor(iface ifaceinfo.Interface, routes *routing.Table, log *slog.Logger) (*NSMonitor, error) {
	recv, err := rawsock.NewPacketReceiver()
	if err != nil {
		return nil, err
	}
	if err := recv.BindToInterface(iface.ScopeID); err != nil {
		_ = recv.Close()
		return nil, err
	}
	if err := recv.SetAllMulti(iface.ScopeID); err != nil {
		_ = recv.Close()
		return nil, err
	}
	if err := recv.AttachFilterNS(); err != nil {
		_ = recv.Close()
		return nil, err
	}
	return &NSMonitor{
		iface:  iface,
		recv:   recv,
		routes: routes,
		log:    log.With("component", "nsmonitor", "iface", iface.Name),
	}, nil
}

// Run reads frames until ctx is cancelled or a fatal error occurs.
func (m *NSMonitor) Run(ctx context.Context) error {
	defer m.recv.Close()

	type recvResult struct {
		buf []byte
		err error
	}
	results := make(chan recvResult, 1)
	go func() {
		for {
			buf, err := m.recv.Recv()
			select {
			case results <- recvResult{buf, err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-results:
			if r.err != nil {
				return r.err
			}
			if err := m.handle(ctx, r.buf); err != nil {
				return err
			}
		}
	}
}

func (m *NSMonitor) handle(ctx context.Context, buf []byte) error {
	if len(buf) < 64 {
		return nil // discard: shorter than a valid NS frame
	}

	parsed, ok := ndpwire.ParseNSFields(buf)
	if !ok {
		return nil
	}

	m.log.Debug("ns received", "src", parsed.Src, "dst", parsed.Dst, "target", parsed.Target)

	match, ok := m.routes.Lookup(parsed.Target)
	if !ok {
		return nil // no match, or target is the prefix's subnet-router anycast (§4.5 edge rule)
	}

	event := ndpevent.NS{ScopeID: m.iface.ScopeID, Target: parsed.Target, Raw: buf}
	select {
	case match.Sink <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
