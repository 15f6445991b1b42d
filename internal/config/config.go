// Package config parses the TOML configuration file (§6) into the
// normalized ProxyConfig records the rest of the core consumes. Parsing
// uses github.com/pelletier/go-toml/v2, the same library
// maksimkurb-keen-pbr — another prefix/policy-routing config tool — uses
// for its own TOML document.
package config

import (
	"fmt"
	"net/netip"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/ndproxy/ndproxy/internal/ndperrors"
)

// Mode is the proxy's operating mode.
type Mode int

const (
	Static Mode = iota
	Forward
)

// AddressMangling is the rewrite method applied to a solicited target
// before probing downstream.
type AddressMangling int

const (
	None AddressMangling = iota
	Netmap
	NPT
)

// ProxyConfig is the normalized, validated per-prefix configuration §3
// describes: invariants (Static ⇒ forwarded_ifaces = ∅; mangling ⇒ dst_pfx
// bit-length ≥ 16 and equal to proxied_pfx's) are enforced by Load, never
// re-checked downstream.
type ProxyConfig struct {
	Name            string
	Mode            Mode
	ProxiedPfx      netip.Prefix
	ProxiedIfaces   []string // "*" retained literally; resolved later against discovered interfaces
	ForwardedIfaces []string
	Mangling        AddressMangling
	DstPfx          netip.Prefix
	NAFlags         byte // Router(0x80)/Solicited(0x40) bits; Override(0x20) is always cleared by the codec
}

// file is the raw TOML document shape: a top-level [ndp] table whose
// children are one proxy each.
type file struct {
	NDP map[string]entry `toml:"ndp"`
}

type entry struct {
	Type            string `toml:"type"`
	ProxiedPrefix   string `toml:"proxied_prefix"`
	ProxiedIfaces   any    `toml:"proxied_ifaces"`
	ForwardedIfaces any    `toml:"forwarded_ifaces"`
	RewriteMethod   string `toml:"rewrite_method"`
	LocalPrefix     string `toml:"local_prefix"`
}

// Load reads and validates the configuration file at path.
func Load(path string) ([]ProxyConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ndperrors.ConfigParseError{Path: path, Err: err}
	}

	var f file
	if err := toml.Unmarshal(raw, &f); err != nil {
		return nil, &ndperrors.ConfigParseError{Path: path, Err: err}
	}

	out := make([]ProxyConfig, 0, len(f.NDP))
	for name, e := range f.NDP {
		cfg, err := normalize(name, e)
		if err != nil {
			return nil, &ndperrors.ConfigParseError{Path: path, Err: fmt.Errorf("[ndp.%s]: %w", name, err)}
		}
		out = append(out, cfg)
	}
	return out, nil
}

func normalize(name string, e entry) (ProxyConfig, error) {
	mode := Static
	if e.Type == "forward" {
		mode = Forward
	}

	proxiedPfx, err := netip.ParsePrefix(e.ProxiedPrefix)
	if err != nil {
		return ProxyConfig{}, &ndperrors.AddrParseError{Input: e.ProxiedPrefix, Err: err}
	}
	proxiedPfx = proxiedPfx.Masked()

	proxiedIfaces, err := stringOrSlice(e.ProxiedIfaces, []string{"*"})
	if err != nil {
		return ProxyConfig{}, err
	}

	var forwardedIfaces []string
	if mode == Forward {
		forwardedIfaces, err = stringOrSlice(e.ForwardedIfaces, []string{"*"})
		if err != nil {
			return ProxyConfig{}, err
		}
	}

	mangling := None
	dstPfx := proxiedPfx
	switch e.RewriteMethod {
	case "":
		// dst_pfx = proxied_pfx when address_mangling = None (§3 invariant)
	case "netmap":
		mangling = Netmap
	case "npt":
		mangling = NPT
	default:
		return ProxyConfig{}, fmt.Errorf("unknown rewrite_method %q", e.RewriteMethod)
	}

	if mangling != None {
		if e.LocalPrefix == "" {
			return ProxyConfig{}, fmt.Errorf("rewrite_method %q requires local_prefix", e.RewriteMethod)
		}
		dstPfx, err = netip.ParsePrefix(e.LocalPrefix)
		if err != nil {
			return ProxyConfig{}, &ndperrors.AddrParseError{Input: e.LocalPrefix, Err: err}
		}
		dstPfx = dstPfx.Masked()
		if dstPfx.Bits() < 16 {
			return ProxyConfig{}, fmt.Errorf("%s requires local_prefix length >= 16, got /%d", e.RewriteMethod, dstPfx.Bits())
		}
		if dstPfx.Bits() != proxiedPfx.Bits() {
			return ProxyConfig{}, fmt.Errorf("%s requires local_prefix length == proxied_prefix length (%d != %d)", e.RewriteMethod, dstPfx.Bits(), proxiedPfx.Bits())
		}
	}

	return ProxyConfig{
		Name:            name,
		Mode:            mode,
		ProxiedPfx:      proxiedPfx,
		ProxiedIfaces:   proxiedIfaces,
		ForwardedIfaces: forwardedIfaces,
		Mangling:        mangling,
		DstPfx:          dstPfx,
	}, nil
}

// stringOrSlice decodes a TOML field that may be either a bare string or an
// array of strings, applying def when the field is absent.
func stringOrSlice(v any, def []string) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return def, nil
	case string:
		return []string{t}, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("expected string or array of strings, got element %T", e)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string or array of strings, got %T", v)
	}
}
