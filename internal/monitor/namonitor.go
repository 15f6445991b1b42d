package monitor

import (
	"context"
	"log/slog"

	"github.com/ndproxy/ndproxy/internal/ifaceinfo"
	"github.com/ndproxy/ndproxy/internal/ndpwire"
	"github.com/ndproxy/ndproxy/internal/neighborcache"
	"github.com/ndproxy/ndproxy/internal/rawsock"
)

// NAMonitor is the per-downstream-interface task that reads Neighbor
// Advertisements off one interface's PacketReceiver and folds each
// observed target address into the shared NeighborCache. It has no
// coupling to any specific NDProxy — the cache is the only channel of
// influence (§4.7).
type NAMonitor struct {
	iface ifaceinfo.Interface
	recv  *rawsock.PacketReceiver
	cache *neighborcache.Cache
	log   *slog.Logger
}

// NewNAMonitor opens and configures a PacketReceiver bound to iface,
// filtered to Neighbor Advertisements.
func NewNAMonitor(iface ifaceinfo.Interface, cache *neighborcache.Cache, log *slog.Logger) (*NAMonitor, error) {
	recv, err := rawsock.NewPacketReceiver()
	if err != nil {
		return nil, err
	}
	if err := recv.BindToInterface(iface.ScopeID); err != nil {
		_ = recv.Close()
		return nil, err
	}
	if err := recv.AttachFilterNA(); err != nil {
		_ = recv.Close()
		return nil, err
	}
	return &NAMonitor{
		iface: iface,
		recv:  recv,
		cache: cache,
		log:   log.With("component", "namonitor", "iface", iface.Name),
	}, nil
}

// Run reads frames until ctx is cancelled or a fatal error occurs.
func (m *NAMonitor) Run(ctx context.Context) error {
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
			m.handle(r.buf)
		}
	}
}

func (m *NAMonitor) handle(buf []byte) {
	if len(buf) < 64 {
		return // discard: shorter than a valid NA frame
	}
	parsed, ok := ndpwire.ParseNSFields(buf) // layout is identical for NA: src/dst/target at the same offsets
	if !ok {
		return
	}
	m.cache.MarkPresent(m.iface.ScopeID, parsed.Target)
	m.log.Debug("na received", "src", parsed.Src, "dst", parsed.Dst, "target", parsed.Target)
}
