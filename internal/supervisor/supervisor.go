// Package supervisor wires the whole proxy together: it loads
// configuration, discovers interfaces, builds one NDProxy per configured
// prefix, builds the shared RoutingTable, spawns one NSMonitor per
// upstream interface and one NAMonitor per downstream interface, and runs
// everything under a single first-error-wins cancellation scope — the Go
// analogue of the teacher's single top-level tea.Program loop, generalized
// from "one UI goroutine" to "N cooperating network goroutines" using
// golang.org/x/sync/errgroup the way rafaelkonrath-gvisor's netstack
// fan-in/fan-out code composes goroutine groups.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ndproxy/ndproxy/internal/config"
	"github.com/ndproxy/ndproxy/internal/ifaceinfo"
	"github.com/ndproxy/ndproxy/internal/monitor"
	"github.com/ndproxy/ndproxy/internal/ndperrors"
	"github.com/ndproxy/ndproxy/internal/ndpevent"
	"github.com/ndproxy/ndproxy/internal/neighborcache"
	"github.com/ndproxy/ndproxy/internal/proxy"
	"github.com/ndproxy/ndproxy/internal/routing"
)

// Supervisor owns every long-lived task's lifecycle.
type Supervisor struct {
	proxies    []*proxy.NDProxy
	proxyChans []chan ndpevent.NS
	nsMonitors []*monitor.NSMonitor
	naMonitors []*monitor.NAMonitor
	log        *slog.Logger
}

// New loads the configuration at path, discovers interfaces, and
// constructs every component. No goroutines are started yet — call Run.
func New(path string, log *slog.Logger) (*Supervisor, error) {
	cfgs, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("supervisor: config %s defines no [ndp.*] entries", path)
	}

	allIfaces, err := ifaceinfo.Discover()
	if err != nil {
		return nil, err
	}

	cache := neighborcache.New(neighborcache.DefaultTTL)

	s := &Supervisor{log: log}
	routes := make(map[netip.Prefix]chan ndpevent.NS, len(cfgs))
	upstream := make(map[uint32]ifaceinfo.Interface)
	downstream := make(map[uint32]ifaceinfo.Interface)

	for _, cfg := range cfgs {
		p, ch, err := proxy.New(cfg, allIfaces, cache, log)
		if err != nil {
			return nil, fmt.Errorf("supervisor: build proxy %q: %w", cfg.Name, err)
		}
		s.proxies = append(s.proxies, p)
		s.proxyChans = append(s.proxyChans, ch)
		routes[cfg.ProxiedPfx] = ch

		up, err := ifaceinfo.Select(allIfaces, cfg.ProxiedIfaces)
		if err != nil {
			return nil, fmt.Errorf("supervisor: proxy %q proxied_ifaces: %w", cfg.Name, err)
		}
		for scope, ifc := range up {
			upstream[scope] = ifc
		}

		if cfg.Mode == config.Forward {
			down, err := ifaceinfo.Select(allIfaces, cfg.ForwardedIfaces)
			if err != nil {
				return nil, fmt.Errorf("supervisor: proxy %q forwarded_ifaces: %w", cfg.Name, err)
			}
			for scope, ifc := range down {
				downstream[scope] = ifc
			}
		}
	}

	routeTable := routing.Build(routes)

	for _, ifc := range upstream {
		nm, err := monitor.NewNSMonitor(ifc, routeTable, log)
		if err != nil {
			return nil, fmt.Errorf("supervisor: nsmonitor on %s: %w", ifc.Name, err)
		}
		s.nsMonitors = append(s.nsMonitors, nm)
	}
	for _, ifc := range downstream {
		nam, err := monitor.NewNAMonitor(ifc, cache, log)
		if err != nil {
			return nil, fmt.Errorf("supervisor: namonitor on %s: %w", ifc.Name, err)
		}
		s.naMonitors = append(s.naMonitors, nam)
	}

	return s, nil
}

// Run starts every task and blocks until ctx is cancelled or one task
// returns a non-cancellation error, at which point every other task is
// cancelled and the first such error is returned.
//
// Each proxy's NS channel may receive from any NSMonitor — routing is
// decided by longest-prefix-match at send time, not by which interface a
// monitor watches — so no single NSMonitor can safely close a channel on
// exit. Instead monitorsWG tracks every NSMonitor goroutine, and only once
// all of them have returned (so none can still be blocked mid-send) does a
// dedicated task close every proxy channel.
func (s *Supervisor) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	var monitorsWG sync.WaitGroup

	for _, nm := range s.nsMonitors {
		nm := nm
		monitorsWG.Add(1)
		g.Go(func() error {
			defer monitorsWG.Done()
			return ignoreCancel(nm.Run(ctx))
		})
	}
	for _, nam := range s.naMonitors {
		nam := nam
		g.Go(func() error {
			return ignoreCancel(nam.Run(ctx))
		})
	}

	g.Go(func() error {
		monitorsWG.Wait()
		for _, ch := range s.proxyChans {
			close(ch)
		}
		return nil
	})

	for _, p := range s.proxies {
		p := p
		g.Go(func() error {
			err := ignoreCancel(p.Run(ctx))
			if errors.Is(err, ndperrors.ErrMpscRecvNone) {
				return nil // clean shutdown: every feeding monitor exited
			}
			return err
		})
	}

	return g.Wait()
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
