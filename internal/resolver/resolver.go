// Package resolver turns a user supplied host or IP string into the single
// address handed to the scanner.
package resolver

import (
	"context"
	"net"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnresolvable is returned when a target cannot be turned into an address.
var ErrUnresolvable = errors.New("could not resolve target")

// Mode selects how a target string is interpreted.
type Mode string

const (
	// ModeAuto uses a literal IP as-is and looks everything else up.
	ModeAuto Mode = "auto"
	// ModeIP requires a literal IP address.
	ModeIP Mode = "ip"
	// ModeName always performs a DNS lookup.
	ModeName Mode = "name"
)

// ParseMode converts a string to a Mode. Empty means ModeAuto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeIP, ModeName:
		return m, nil
	default:
		return "", errors.Errorf("invalid resolve mode %q (valid: auto, ip, name)", s)
	}
}

// LookupFunc matches (*net.Resolver).LookupIPAddr so tests can inject answers.
type LookupFunc func(ctx context.Context, host string) ([]net.IPAddr, error)

// Resolver resolves targets with a configurable lookup function.
type Resolver struct {
	lookup LookupFunc
}

// New returns a Resolver backed by net.DefaultResolver when lookup is nil.
func New(lookup LookupFunc) *Resolver {
	if lookup == nil {
		lookup = net.DefaultResolver.LookupIPAddr
	}
	return &Resolver{lookup: lookup}
}

// Resolve returns one address for target. IPv4 answers are preferred; the
// first IPv6 answer is used only when no IPv4 address exists.
func (r *Resolver) Resolve(ctx context.Context, target string, mode Mode) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", errors.Wrap(ErrUnresolvable, "empty target")
	}
	// accept "[::1]" style literals
	host := strings.TrimSuffix(strings.TrimPrefix(target, "["), "]")
	ip := net.ParseIP(host)

	switch mode {
	case ModeIP:
		if ip == nil {
			return "", errors.Wrapf(ErrUnresolvable, "%q is not an IP address", target)
		}
		return normalize(ip), nil
	case ModeAuto, "":
		if ip != nil {
			return normalize(ip), nil
		}
	case ModeName:
		if ip != nil {
			return "", errors.Wrapf(ErrUnresolvable, "%q is an IP address, expected a host name", target)
		}
	default:
		return "", errors.Errorf("invalid resolve mode %q", mode)
	}

	addrs, err := r.lookup(ctx, host)
	if err != nil {
		return "", errors.Wrapf(ErrUnresolvable, "lookup %s: %v", host, err)
	}
	var firstV6 net.IP
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4.String(), nil
		}
		if firstV6 == nil {
			firstV6 = a.IP
		}
	}
	if firstV6 != nil {
		return firstV6.String(), nil
	}
	return "", errors.Wrapf(ErrUnresolvable, "no addresses found for %s", host)
}

func normalize(ip net.IP) string {
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	return ip.String()
}
