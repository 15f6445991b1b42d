package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"syscall"

	"github.com/ndproxy/ndproxy/internal/addrutil"
	"github.com/ndproxy/ndproxy/internal/ndpwire"
	"github.com/ndproxy/ndproxy/internal/rawsock"
	"github.com/ndproxy/ndproxy/internal/supervisor"
)

func main() {
	if len(os.Args) < 2 {
		runCore(os.Args[1:])
		return
	}

	switch os.Args[1] {
	case "run":
		runCore(os.Args[2:])
	case "nsmonitor":
		runNSMonitor(os.Args[2:])
	case "namonitor":
		runNAMonitor(os.Args[2:])
	case "nssender":
		runNSSender(os.Args[2:])
	case "nasender":
		runNASender(os.Args[2:])
	default:
		runCore(os.Args[1:])
	}
}

func newLogger(level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(level)})).With("component", "ndproxy")
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// runCore is the default subcommand: load the config, build the fabric,
// and run until interrupted.
func runCore(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "/etc/ndproxy.toml", "path to the TOML configuration file")
	logLevel := fs.String("log-level", "info", "debug|info|warn|error")
	fs.Parse(args)

	log := newLogger(*logLevel)

	sup, err := supervisor.New(*cfgPath, log)
	if err != nil {
		log.Error("startup failed", "err", err)
		os.Exit(1)
	}

	ctx, cancel := signalContext()
	defer cancel()

	log.Info("starting", "config", *cfgPath)
	if err := sup.Run(ctx); err != nil {
		log.Error("exited with error", "err", err)
		os.Exit(1)
	}
}

// runNSMonitor is a standalone dev tool: attach to one interface and print
// every Neighbor Solicitation received, without any proxy logic.
func runNSMonitor(args []string) {
	fs := flag.NewFlagSet("nsmonitor", flag.ExitOnError)
	ifaceName := fs.String("iface", "", "interface name (required)")
	fs.Parse(args)
	if *ifaceName == "" {
		fmt.Fprintln(os.Stderr, "nsmonitor: -iface is required")
		os.Exit(2)
	}

	scopeID := mustIfindex(*ifaceName)

	recv, err := rawsock.NewPacketReceiver()
	must(err)
	defer recv.Close()
	must(recv.BindToInterface(scopeID))
	must(recv.SetAllMulti(scopeID))
	must(recv.AttachFilterNS())

	dumpLoop(recv, "NS")
}

// runNAMonitor mirrors runNSMonitor for Neighbor Advertisements.
func runNAMonitor(args []string) {
	fs := flag.NewFlagSet("namonitor", flag.ExitOnError)
	ifaceName := fs.String("iface", "", "interface name (required)")
	fs.Parse(args)
	if *ifaceName == "" {
		fmt.Fprintln(os.Stderr, "namonitor: -iface is required")
		os.Exit(2)
	}

	scopeID := mustIfindex(*ifaceName)

	recv, err := rawsock.NewPacketReceiver()
	must(err)
	defer recv.Close()
	must(recv.BindToInterface(scopeID))
	must(recv.AttachFilterNA())

	dumpLoop(recv, "NA")
}

func dumpLoop(recv *rawsock.PacketReceiver, label string) {
	for {
		buf, err := recv.Recv()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: recv: %v\n", label, err)
			os.Exit(1)
		}
		parsed, ok := ndpwire.ParseNSFields(buf)
		if !ok {
			continue
		}
		fmt.Printf("%s src=%s dst=%s target=%s\n", label, parsed.Src, parsed.Dst, parsed.Target)
	}
}

// runNSSender is a standalone dev tool: craft and send one Neighbor
// Solicitation, to provoke a response from a host under test.
func runNSSender(args []string) {
	fs := flag.NewFlagSet("nssender", flag.ExitOnError)
	ifaceName := fs.String("iface", "", "interface name (required)")
	srcStr := fs.String("src", "", "source address (required)")
	targetStr := fs.String("target", "", "solicited target address (required)")
	fs.Parse(args)

	scopeID := mustIfindex(*ifaceName)
	src := mustAddr(*srcStr)
	target := mustAddr(*targetStr)
	dst := addrutil.SolicitedNodeMulticast(target)

	mac := mustMAC(*ifaceName)

	pkt, err := ndpwire.BuildNS(src, dst, target, mac)
	must(err)

	sender, err := rawsock.NewPacketSender()
	must(err)
	defer sender.Close()
	must(sender.SetMulticastHops(255))

	must(sender.SendTo(pkt, rawsock.Dest{Addr: dst, ScopeID: scopeID}))
	fmt.Printf("sent NS target=%s to %s\n", target, dst)
}

// runNASender is a standalone dev tool: craft and send one Neighbor
// Advertisement, to test a downstream host's or proxy's reaction.
func runNASender(args []string) {
	fs := flag.NewFlagSet("nasender", flag.ExitOnError)
	ifaceName := fs.String("iface", "", "interface name (required)")
	dstStr := fs.String("dst", "", "destination address (required)")
	targetStr := fs.String("target", "", "advertised target address (required)")
	fs.Parse(args)

	scopeID := mustIfindex(*ifaceName)
	dst := mustAddr(*dstStr)
	target := mustAddr(*targetStr)
	mac := mustMAC(*ifaceName)

	const routerSolicited = 0x80 | 0x40
	pkt, err := ndpwire.BuildNA(target, dst, target, mac, routerSolicited)
	must(err)

	sender, err := rawsock.NewPacketSender()
	must(err)
	defer sender.Close()
	must(sender.SetUnicastHops(255))

	must(sender.SendTo(pkt, rawsock.Dest{Addr: dst, ScopeID: scopeID}))
	fmt.Printf("sent NA target=%s to %s\n", target, dst)
}

func must(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func mustAddr(s string) netip.Addr {
	a, err := netip.ParseAddr(s)
	must(err)
	return a
}

func mustIfindex(name string) uint32 {
	ifi, err := net.InterfaceByName(name)
	must(err)
	return uint32(ifi.Index)
}

func mustMAC(name string) net.HardwareAddr {
	ifi, err := net.InterfaceByName(name)
	must(err)
	return ifi.HardwareAddr
}
