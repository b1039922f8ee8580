package inet

/*
* systemd-resolved backend.  resolved has no global setting reachable from
* resolvectl, so global nameservers go on the default link together with
* the "~." routing domain; each domain route goes on the link of the
* connection that announced it.
 */
import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"slices"
	"strings"
	"sync"

	"github.com/code-ointment/config-dns-daemon/internal/consts"
	"github.com/code-ointment/config-dns-daemon/internal/linux"
	"github.com/code-ointment/config-dns-daemon/internal/model"
	"github.com/vishvananda/netlink"
)

type LinkLookup interface {
	DefaultLink() (netlink.Link, error)
	LinkExists(name string) bool
	LinkWithAddr(addr netip.Addr) (string, bool)
}

type Resolvectl struct {
	GlobalProtocols string
	ResolvConfMode  string

	Links []*ResolvectlEntry

	mutex   sync.Mutex
	runner  linux.Runner
	links   LinkLookup
	touched map[string]bool // links this daemon has configured
	applied *model.EffectiveConfig
}

type linkSettings struct {
	servers []string
	domains []string
}

func NewResolvectl(runner linux.Runner, links LinkLookup) *Resolvectl {

	rc := Resolvectl{
		runner:  runner,
		links:   links,
		touched: map[string]bool{},
	}
	return &rc
}

func (rc *Resolvectl) Name() string {
	return "resolvectl"
}

func (rc *Resolvectl) ReadConfig(ctx context.Context) error {

	result := rc.runner.Run(ctx, []string{"resolvectl", "status"})
	if !result.Ok() {
		return fmt.Errorf("resolvectl status: exit %d: %v", result.ExitCode, result.Err)
	}
	rc.parseStatus(result.Stdout)
	return nil
}

func (rc *Resolvectl) parseStatus(out string) {

	rc.Links = nil
	scanner := bufio.NewScanner(strings.NewReader(out))

	for scanner.Scan() {

		line := strings.TrimSpace(scanner.Text())
		if line == "Global" {
			rc.parseGlobal(scanner)
			continue
		}

		if strings.HasPrefix(line, "Link ") {
			if entry := NewResolvectlEntry(line, scanner); entry != nil {
				rc.Links = append(rc.Links, entry)
			}
		}
	}
}

/*
* Parse global entry
 */
func (rc *Resolvectl) parseGlobal(scanner *bufio.Scanner) {

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			return
		}
		if strings.HasPrefix(line, "Protocols") {
			rc.GlobalProtocols = statusValue(line)
			continue
		}
		if strings.HasPrefix(line, "resolv.conf mode") {
			rc.ResolvConfMode = statusValue(line)
		}
	}
}

/*
* Lookup the entry associated with the interface, otherwise return nil
 */
func (rc *Resolvectl) findEntryByIntf(intf string) *ResolvectlEntry {

	for _, entry := range rc.Links {
		if strings.EqualFold(intf, entry.LinkName) {
			return entry
		}
	}
	return nil
}

/*
* Work out what every link should carry.
 */
func (rc *Resolvectl) plan(cfg *model.EffectiveConfig) (map[string]*linkSettings, error) {

	l, err := rc.links.DefaultLink()
	if err != nil {
		return nil, err
	}
	defLink := l.Attrs().Name

	desired := map[string]*linkSettings{
		defLink: {
			servers: addrStrings(cfg.GlobalNameservers),
			domains: append(slices.Clone(cfg.SearchDomains), consts.GlobalDnsRoute),
		},
	}

	addRoute := func(suffix string, r model.DomainRoute) error {
		link, ok := rc.routeLink(r)
		if !ok {
			return fmt.Errorf("route %s: no link found for connection %q", suffix, r.Source)
		}
		if link == defLink {
			slog.Warn("route source shares the default link, not routed",
				"domain", suffix, "source", r.Source, "link", link)
			return nil
		}
		ls, ok := desired[link]
		if !ok {
			ls = &linkSettings{servers: addrStrings(r.Nameservers)}
			desired[link] = ls
		}
		ls.domains = append(ls.domains, "~"+suffix)
		return nil
	}

	for _, d := range cfg.RouteDomains() {
		if err := addRoute(d, cfg.DomainRoutes[d]); err != nil {
			return nil, err
		}
	}
	for _, z := range cfg.ReverseZones() {
		if err := addRoute(z, cfg.ReverseRoutes[z]); err != nil {
			return nil, err
		}
	}
	return desired, nil
}

/*
* The kernel link behind a route: the link the producer named, the
* connection id when it is a link name, else the link holding one of the
* connection's addresses.
 */
func (rc *Resolvectl) routeLink(r model.DomainRoute) (string, bool) {

	for _, name := range []string{r.Link, r.Source} {
		if rc.links.LinkExists(name) {
			return name, true
		}
	}
	for _, p := range r.Addresses {
		if name, ok := rc.links.LinkWithAddr(p.Addr()); ok {
			return name, true
		}
	}
	return "", false
}

/*
* Commit changes.  resolved takes one link setting per call, so a failure
* half way through rolls the links back to the last committed config.
 */
func (rc *Resolvectl) Commit(ctx context.Context, cfg *model.EffectiveConfig) error {

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	err := rc.commit(ctx, cfg)
	if err == nil {
		rc.applied = cfg.Clone()
		return nil
	}

	if rc.applied != nil {
		slog.Warn("rolling back resolved links", "error", err)
		if rbErr := rc.commit(context.Background(), rc.applied); rbErr != nil {
			slog.Error("rollback failed", "error", rbErr)
		}
	}
	return err
}

func (rc *Resolvectl) commit(ctx context.Context, cfg *model.EffectiveConfig) error {

	desired, err := rc.plan(cfg)
	if err != nil {
		return err
	}

	if err := rc.ReadConfig(ctx); err != nil {
		return err
	}

	names := make([]string, 0, len(desired))
	for n := range desired {
		names = append(names, n)
	}
	slices.Sort(names)

	for _, link := range names {
		ls := desired[link]
		entry := rc.findEntryByIntf(link)
		if entry != nil && sameFields(entry.DnsServers, ls.servers) &&
			sameFields(entry.DnsDomains, ls.domains) {
			slog.Debug("link already configured", "link", link)
			rc.touched[link] = true
			continue
		}

		if err := rc.run(ctx, linkCommand("dns", link, ls.servers)); err != nil {
			return err
		}
		rc.touched[link] = true
		if err := rc.run(ctx, linkCommand("domain", link, ls.domains)); err != nil {
			return err
		}
		slog.Info("link configured", "link", link,
			"servers", ls.servers, "domains", ls.domains)
	}

	// Links that no longer carry any route go back to their own settings.
	for link := range rc.touched {
		if _, ok := desired[link]; ok {
			continue
		}
		if err := rc.run(ctx, []string{"resolvectl", "revert", link}); err != nil {
			return err
		}
		delete(rc.touched, link)
	}
	return nil
}

// An empty string argument clears the setting; no argument would print it.
func linkCommand(verb string, link string, values []string) []string {

	vec := []string{"resolvectl", verb, link}
	if len(values) == 0 {
		return append(vec, "")
	}
	return append(vec, values...)
}

func (rc *Resolvectl) run(ctx context.Context, vec []string) error {

	result := rc.runner.Run(ctx, vec)
	if !result.Ok() {
		slog.Warn("resolvectl failed", "args", vec,
			"error", result.Err, "exit code", result.ExitCode, "stderr", result.Stderr)
		return fmt.Errorf("%s: exit %d: %v", strings.Join(vec, " "), result.ExitCode, result.Err)
	}
	return nil
}

/*
* resolved keeps the per-link settings the network manager pushed; all
* that needs remembering is which links this daemon overrides.
 */
func (rc *Resolvectl) BackupConfig() error {

	if err := rc.ReadConfig(context.Background()); err != nil {
		return err
	}
	slog.Info("resolved state", "links", len(rc.Links), "resolv.conf mode", rc.ResolvConfMode)
	return nil
}

// Restore previously backed up configuration
func (rc *Resolvectl) RestoreConfig() error {

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	var firstErr error
	for link := range rc.touched {
		if err := rc.run(context.Background(), []string{"resolvectl", "revert", link}); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(rc.touched, link)
	}
	rc.applied = nil
	return firstErr
}
