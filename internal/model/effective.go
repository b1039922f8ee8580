package model

import (
	"maps"
	"net/netip"
	"slices"
)

// DomainRoute sends queries under one suffix to the nameservers of the
// connection that announced it.
type DomainRoute struct {
	Nameservers []netip.Addr   `json:"nameservers"`
	Source      string         `json:"source"` // connection id
	Link        string         `json:"link,omitempty"`
	Medium      string         `json:"medium,omitempty"`
	Addresses   []netip.Prefix `json:"addresses,omitempty"` // locate the link when Link is unset
}

// EffectiveConfig is the single DNS configuration the host should run with.
type EffectiveConfig struct {
	GlobalNameservers []netip.Addr           `json:"global_nameservers"`
	DefaultConnection string                 `json:"default_connection,omitempty"`
	DomainRoutes      map[string]DomainRoute `json:"domain_routes"`
	ReverseRoutes     map[string]DomainRoute `json:"reverse_routes,omitempty"`
	SearchDomains     []string               `json:"search_domains"`
}

func NewEffectiveConfig() *EffectiveConfig {
	return &EffectiveConfig{
		GlobalNameservers: []netip.Addr{},
		DomainRoutes:      map[string]DomainRoute{},
		ReverseRoutes:     map[string]DomainRoute{},
		SearchDomains:     []string{},
	}
}

/*
* Equal reports whether applying rhs after lhs would be a no-op.
* Nameserver and search order are significant.
 */
func (lhs *EffectiveConfig) Equal(rhs *EffectiveConfig) bool {

	if lhs == nil || rhs == nil {
		return lhs == rhs
	}
	if lhs.DefaultConnection != rhs.DefaultConnection {
		return false
	}
	if !slices.Equal(lhs.GlobalNameservers, rhs.GlobalNameservers) ||
		!slices.Equal(lhs.SearchDomains, rhs.SearchDomains) {
		return false
	}
	return routesEqual(lhs.DomainRoutes, rhs.DomainRoutes) &&
		routesEqual(lhs.ReverseRoutes, rhs.ReverseRoutes)
}

func routesEqual(a, b map[string]DomainRoute) bool {
	return maps.EqualFunc(a, b, func(x, y DomainRoute) bool {
		return x.Source == y.Source && x.Link == y.Link && x.Medium == y.Medium &&
			slices.Equal(x.Nameservers, y.Nameservers) &&
			slices.Equal(x.Addresses, y.Addresses)
	})
}

func (c *EffectiveConfig) Clone() *EffectiveConfig {

	if c == nil {
		return nil
	}
	out := &EffectiveConfig{
		GlobalNameservers: slices.Clone(c.GlobalNameservers),
		DefaultConnection: c.DefaultConnection,
		DomainRoutes:      cloneRoutes(c.DomainRoutes),
		ReverseRoutes:     cloneRoutes(c.ReverseRoutes),
		SearchDomains:     slices.Clone(c.SearchDomains),
	}
	return out
}

func cloneRoutes(in map[string]DomainRoute) map[string]DomainRoute {
	out := make(map[string]DomainRoute, len(in))
	for k, v := range in {
		v.Nameservers = slices.Clone(v.Nameservers)
		v.Addresses = slices.Clone(v.Addresses)
		out[k] = v
	}
	return out
}

// RouteDomains returns the routed suffixes sorted, for stable rendering.
func (c *EffectiveConfig) RouteDomains() []string {
	return sortedKeys(c.DomainRoutes)
}

func (c *EffectiveConfig) ReverseZones() []string {
	return sortedKeys(c.ReverseRoutes)
}

func sortedKeys(m map[string]DomainRoute) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
