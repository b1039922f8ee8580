package model

/*
* Domain name handling.  Names are kept in their presentation form without
* the trailing dot: "home.lan", not "home.lan.".
 */
import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/miekg/dns"
	"golang.org/x/net/idna"
)

func NormalizeDomain(d string) (string, error) {

	d = strings.TrimSpace(d)
	d = strings.TrimPrefix(d, "~") // routing-only marker used by resolved
	if d == "" || d == "." {
		return "", errors.New("empty domain")
	}

	ascii, err := idna.Lookup.ToASCII(strings.TrimSuffix(d, "."))
	if err != nil {
		return "", fmt.Errorf("domain %q: %w", d, err)
	}

	if _, ok := dns.IsDomainName(ascii); !ok {
		return "", fmt.Errorf("domain %q is not a valid name", d)
	}
	return strings.TrimSuffix(dns.CanonicalName(ascii), "."), nil
}

/*
* Reverse zone for an RFC1918 address, cut at the private block's octet
* boundary: 10.in-addr.arpa, 16..31.172.in-addr.arpa, 168.192.in-addr.arpa.
 */
func ReverseZone(addr netip.Addr) (string, bool) {

	if !addr.Is4() || !addr.IsPrivate() {
		return "", false
	}

	rev, err := dns.ReverseAddr(addr.String())
	if err != nil {
		return "", false
	}
	labels := dns.SplitDomainName(rev) // 4.3.2.1.in-addr.arpa

	keep := 4 // two octets plus in-addr.arpa
	if addr.As4()[0] == 10 {
		keep = 3
	}
	return strings.Join(labels[len(labels)-keep:], "."), true
}
