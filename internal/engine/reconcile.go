package engine

import (
	"net/netip"

	"github.com/code-ointment/config-dns-daemon/internal/model"
)

type resolution struct {
	Config   *model.EffectiveConfig
	Claimers []string // ids claiming the default route, oldest first
	Fallback bool     // nobody claimed; the default was picked by recency
}

/*
* Fold the producer table into one configuration.  Producers are visited
* oldest submission first, so anything later overwrites:
*   - the last default claimer wins, the rest count as non-default
*   - with no claimer, the last connection with nameservers is the default
*   - the last non-default connection announcing a domain owns its route
*
* Search domains keep the default connection's domains first.
 */
func resolve(producers []*Producer, reverseZones bool) *resolution {

	res := &resolution{Config: model.NewEffectiveConfig()}
	cfg := res.Config

	var def *model.Connection
	for _, p := range producers {
		for i := range p.Connections {
			c := &p.Connections[i]
			if c.Default {
				res.Claimers = append(res.Claimers, c.ID)
				def = c
			}
		}
	}

	if def == nil {
		def = lastWithNameservers(producers)
		res.Fallback = def != nil
	}

	seen := map[string]bool{}
	addSearch := func(d string) {
		if !seen[d] {
			seen[d] = true
			cfg.SearchDomains = append(cfg.SearchDomains, d)
		}
	}

	if def != nil {
		cfg.DefaultConnection = def.ID
		cfg.GlobalNameservers = append(cfg.GlobalNameservers, def.Nameservers...)
		for _, d := range def.Domains {
			addSearch(d)
		}
	}

	for _, p := range producers {
		for i := range p.Connections {

			c := &p.Connections[i]
			if c == def {
				continue
			}

			for _, d := range c.Domains {
				addSearch(d)
				if len(c.Nameservers) > 0 {
					cfg.DomainRoutes[d] = route(c)
				}
			}

			if !reverseZones || len(c.Nameservers) == 0 {
				continue
			}
			for _, a := range c.Addresses {
				if zone, ok := model.ReverseZone(a.Addr()); ok {
					cfg.ReverseRoutes[zone] = route(c)
				}
			}
		}
	}
	return res
}

func lastWithNameservers(producers []*Producer) *model.Connection {

	var last *model.Connection
	for _, p := range producers {
		for i := range p.Connections {
			if len(p.Connections[i].Nameservers) > 0 {
				last = &p.Connections[i]
			}
		}
	}
	return last
}

func route(c *model.Connection) model.DomainRoute {
	return model.DomainRoute{
		Nameservers: append([]netip.Addr{}, c.Nameservers...),
		Source:      c.ID,
		Link:        c.Interface,
		Medium:      c.Medium.String(),
		Addresses:   append([]netip.Prefix{}, c.Addresses...),
	}
}
