package inet

import (
	"context"
	"errors"
	"net/netip"
	"strings"
	"testing"

	"github.com/code-ointment/config-dns-daemon/internal/linux"
	"github.com/code-ointment/config-dns-daemon/internal/model"
	"github.com/google/go-cmp/cmp"
	"github.com/vishvananda/netlink"
)

const statusOutput = `Global
       Protocols: +LLMNR +mDNS -DNSOverTLS DNSSEC=no/unsupported
resolv.conf mode: stub

Link 2 (ens160)
    Current Scopes: DNS
         Protocols: +DefaultRoute -LLMNR -mDNS -DNSOverTLS DNSSEC=no/unsupported
Current DNS Server: 192.168.1.1
       DNS Servers: 192.168.1.1
                    192.168.1.2
        DNS Domain: home.lan

Link 5 (tun0)
    Current Scopes: none
         Protocols: -DefaultRoute -LLMNR -mDNS -DNSOverTLS DNSSEC=no/unsupported
     Default Route: no
`

// ---- fakes ----

type fakeRunner struct {
	calls  [][]string
	status string
	fail   string // command verb that fails
}

func (f *fakeRunner) Run(ctx context.Context, cmdLine []string) *linux.RunResult {
	f.calls = append(f.calls, cmdLine)
	if len(cmdLine) > 1 && cmdLine[1] == f.fail {
		return &linux.RunResult{ExitCode: 1, Stderr: "failed"}
	}
	if len(cmdLine) > 1 && cmdLine[1] == "status" {
		return &linux.RunResult{Stdout: f.status}
	}
	return &linux.RunResult{}
}

func (f *fakeRunner) mutations() [][]string {
	out := [][]string{}
	for _, c := range f.calls {
		if c[1] != "status" {
			out = append(out, c)
		}
	}
	return out
}

type fakeLinks struct {
	def   string
	names []string
	addrs map[netip.Addr]string
}

func (f *fakeLinks) DefaultLink() (netlink.Link, error) {
	if f.def == "" {
		return nil, errors.New("no default route")
	}
	return &netlink.Device{LinkAttrs: netlink.LinkAttrs{Name: f.def}}, nil
}

func (f *fakeLinks) LinkExists(name string) bool {
	for _, n := range f.names {
		if n == name {
			return true
		}
	}
	return false
}

func (f *fakeLinks) LinkWithAddr(addr netip.Addr) (string, bool) {
	name, ok := f.addrs[addr]
	return name, ok
}

// ---- tests ----

func TestResolvectlEntry_Parse(t *testing.T) {
	rc := NewResolvectl(&fakeRunner{}, &fakeLinks{})
	rc.parseStatus(statusOutput)

	if rc.ResolvConfMode != "stub" {
		t.Fatalf("expected stub mode, got %q", rc.ResolvConfMode)
	}
	if len(rc.Links) != 2 {
		t.Fatalf("expected 2 links, got %d", len(rc.Links))
	}

	want := &ResolvectlEntry{
		LinkName:         "ens160",
		LinkIndex:        2,
		Scope:            "DNS",
		Protocols:        "+DefaultRoute -LLMNR -mDNS -DNSOverTLS DNSSEC=no/unsupported",
		CurrentDnsServer: "192.168.1.1",
		DnsServers:       "192.168.1.1 192.168.1.2",
		DnsDomains:       "home.lan",
	}
	if diff := cmp.Diff(want, rc.findEntryByIntf("ENS160")); diff != "" {
		t.Fatalf("entry mismatch (-want +got):\n%s", diff)
	}
	if rc.findEntryByIntf("tun0").LinkIndex != 5 {
		t.Fatalf("tun0 not parsed")
	}
}

func TestResolvectl_CommitConfiguresLinks(t *testing.T) {
	runner := &fakeRunner{status: statusOutput}
	rc := NewResolvectl(runner, &fakeLinks{def: "ens160", names: []string{"ens160", "tun0"}})

	cfg := homeConfig()
	cfg.ReverseRoutes["10.in-addr.arpa"] = model.DomainRoute{
		Nameservers: []netip.Addr{netip.MustParseAddr("10.0.0.53")},
		Source:      "tun0",
	}

	if err := rc.Commit(context.Background(), cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := [][]string{
		{"resolvectl", "dns", "ens160", "192.168.1.1"},
		{"resolvectl", "domain", "ens160", "home.lan", "corp.example", "~."},
		{"resolvectl", "dns", "tun0", "10.0.0.53"},
		{"resolvectl", "domain", "tun0", "~corp.example", "~10.in-addr.arpa"},
	}
	if diff := cmp.Diff(want, runner.mutations()); diff != "" {
		t.Fatalf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestResolvectl_SkipsConfiguredLink(t *testing.T) {
	status := strings.Replace(statusOutput, "        DNS Domain: home.lan",
		"        DNS Domain: home.lan ~.", 1)
	status = strings.Replace(status, "                    192.168.1.2\n", "", 1)
	runner := &fakeRunner{status: status}
	rc := NewResolvectl(runner, &fakeLinks{def: "ens160", names: []string{"ens160"}})

	cfg := model.NewEffectiveConfig()
	cfg.GlobalNameservers = []netip.Addr{netip.MustParseAddr("192.168.1.1")}
	cfg.SearchDomains = []string{"home.lan"}

	if err := rc.Commit(context.Background(), cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m := runner.mutations(); len(m) != 0 {
		t.Fatalf("expected no changes, got %v", m)
	}
}

func TestResolvectl_RevertsDroppedLinks(t *testing.T) {
	runner := &fakeRunner{status: statusOutput}
	rc := NewResolvectl(runner, &fakeLinks{def: "ens160", names: []string{"ens160", "tun0"}})

	if err := rc.Commit(context.Background(), homeConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	runner.calls = nil
	cfg := homeConfig()
	delete(cfg.DomainRoutes, "corp.example")
	if err := rc.Commit(context.Background(), cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	last := runner.mutations()[len(runner.mutations())-1]
	if diff := cmp.Diff([]string{"resolvectl", "revert", "tun0"}, last); diff != "" {
		t.Fatalf("expected revert (-want +got):\n%s", diff)
	}
}

func TestResolvectl_FailureRollsBack(t *testing.T) {
	runner := &fakeRunner{status: statusOutput}
	rc := NewResolvectl(runner, &fakeLinks{def: "ens160", names: []string{"ens160"}})

	first := model.NewEffectiveConfig()
	first.GlobalNameservers = []netip.Addr{netip.MustParseAddr("192.168.1.1")}
	if err := rc.Commit(context.Background(), first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	runner.calls = nil
	runner.fail = "domain"
	second := first.Clone()
	second.GlobalNameservers = []netip.Addr{netip.MustParseAddr("192.168.1.254")}
	if err := rc.Commit(context.Background(), second); err == nil {
		t.Fatalf("expected commit failure")
	}

	// dns for the new config, failed domain, then dns again for the old one.
	var dns [][]string
	for _, c := range runner.mutations() {
		if c[1] == "dns" {
			dns = append(dns, c)
		}
	}
	if len(dns) != 2 || dns[1][3] != "192.168.1.1" {
		t.Fatalf("expected rollback to old servers, got %v", dns)
	}
}

func TestResolvectl_RestoreRevertsTouched(t *testing.T) {
	runner := &fakeRunner{status: statusOutput}
	rc := NewResolvectl(runner, &fakeLinks{def: "ens160", names: []string{"ens160"}})

	cfg := homeConfig()
	cfg.DomainRoutes = map[string]model.DomainRoute{}
	if err := rc.Commit(context.Background(), cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	runner.calls = nil

	if err := rc.RestoreConfig(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([][]string{{"resolvectl", "revert", "ens160"}}, runner.mutations()); diff != "" {
		t.Fatalf("restore mismatch (-want +got):\n%s", diff)
	}
}

func TestResolvectl_NoDefaultLink(t *testing.T) {
	rc := NewResolvectl(&fakeRunner{status: statusOutput}, &fakeLinks{})
	if err := rc.Commit(context.Background(), homeConfig()); err == nil {
		t.Fatalf("expected error without a default link")
	}
}

func vpnRoute(source string) *model.EffectiveConfig {
	cfg := homeConfig()
	cfg.DomainRoutes["corp.example"] = model.DomainRoute{
		Nameservers: []netip.Addr{netip.MustParseAddr("10.11.0.53")},
		Source:      source,
		Addresses:   []netip.Prefix{netip.MustParsePrefix("10.11.111.111/22")},
	}
	return cfg
}

func TestResolvectl_RouteFollowsConnectionAddress(t *testing.T) {
	runner := &fakeRunner{status: statusOutput}
	rc := NewResolvectl(runner, &fakeLinks{
		def:   "ens160",
		names: []string{"ens160", "tun0"},
		addrs: map[netip.Addr]string{netip.MustParseAddr("10.11.111.111"): "tun0"},
	})

	if err := rc.Commit(context.Background(), vpnRoute("Red Hat VPN")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := [][]string{
		{"resolvectl", "dns", "ens160", "192.168.1.1"},
		{"resolvectl", "domain", "ens160", "home.lan", "corp.example", "~."},
		{"resolvectl", "dns", "tun0", "10.11.0.53"},
		{"resolvectl", "domain", "tun0", "~corp.example"},
	}
	if diff := cmp.Diff(want, runner.mutations()); diff != "" {
		t.Fatalf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestResolvectl_RouteFollowsProducerLink(t *testing.T) {
	runner := &fakeRunner{status: statusOutput}
	rc := NewResolvectl(runner, &fakeLinks{def: "ens160", names: []string{"ens160", "ens192"}})

	cfg := vpnRoute("Wired connection 2")
	rt := cfg.DomainRoutes["corp.example"]
	rt.Link = "ens192"
	cfg.DomainRoutes["corp.example"] = rt

	if err := rc.Commit(context.Background(), cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	last := runner.mutations()[len(runner.mutations())-1]
	if diff := cmp.Diff([]string{"resolvectl", "domain", "ens192", "~corp.example"}, last); diff != "" {
		t.Fatalf("route not on producer link (-want +got):\n%s", diff)
	}
}

func TestResolvectl_UnresolvedRouteFails(t *testing.T) {
	runner := &fakeRunner{status: statusOutput}
	rc := NewResolvectl(runner, &fakeLinks{def: "ens160", names: []string{"ens160", "tun0"}})

	err := rc.Commit(context.Background(), vpnRoute("Red Hat VPN"))
	if err == nil || !strings.Contains(err.Error(), "Red Hat VPN") {
		t.Fatalf("expected failure naming the connection, got %v", err)
	}
	if m := runner.mutations(); len(m) != 0 {
		t.Fatalf("links changed for an unroutable config: %v", m)
	}
}
