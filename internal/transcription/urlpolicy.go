package transcription

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
)

// ErrAudioURLNotAllowed is returned for audio URLs outside the fetch policy.
var ErrAudioURLNotAllowed = errors.New("audio URL not allowed")

// URLPolicy restricts which audio URLs are fetched. With AllowedHosts set,
// only those hosts are fetched. Without it, any host is accepted as long as
// every address it resolves to is public.
type URLPolicy struct {
	AllowedHosts []string
}

// Check validates raw against the policy without touching the network.
func (p URLPolicy) Check(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAudioURLNotAllowed, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("%w: scheme %q", ErrAudioURLNotAllowed, u.Scheme)
	}
	if u.User != nil {
		return fmt.Errorf("%w: credentials in URL", ErrAudioURLNotAllowed)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrAudioURLNotAllowed)
	}

	if len(p.AllowedHosts) > 0 {
		for _, allowed := range p.AllowedHosts {
			if strings.EqualFold(host, allowed) {
				return nil
			}
		}
		return fmt.Errorf("%w: host %s", ErrAudioURLNotAllowed, host)
	}

	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("%w: host %s", ErrAudioURLNotAllowed, host)
	}
	if addr, err := netip.ParseAddr(host); err == nil && !publicAddr(addr) {
		return fmt.Errorf("%w: address %s", ErrAudioURLNotAllowed, addr)
	}
	return nil
}

// restrictsAddresses reports whether dialed addresses must be public.
func (p URLPolicy) restrictsAddresses() bool {
	return len(p.AllowedHosts) == 0
}

// dialControl rejects connections to non-public addresses after DNS
// resolution, so a public name pointing at an internal address is refused.
func dialControl(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAudioURLNotAllowed, err)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAudioURLNotAllowed, err)
	}
	if !publicAddr(addr) {
		return fmt.Errorf("%w: address %s", ErrAudioURLNotAllowed, addr)
	}
	return nil
}

func publicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsValid() &&
		!addr.IsLoopback() &&
		!addr.IsPrivate() &&
		!addr.IsLinkLocalUnicast() &&
		!addr.IsLinkLocalMulticast() &&
		!addr.IsInterfaceLocalMulticast() &&
		!addr.IsMulticast() &&
		!addr.IsUnspecified() &&
		!sharedAddressSpace.Contains(addr)
}

// 100.64.0.0/10 is carrier-grade NAT space, not covered by IsPrivate.
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")
