package model

/*
* Wire and validated forms of a connection snapshot.  The wire form is what
* producers send; Connection is what the reconciler works with.
 */
import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/code-ointment/config-dns-daemon/internal/dnserr"
)

type ConnectionSnapshot struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Default     bool     `json:"default"`
	Addresses   []string `json:"addresses"`   // "ip/prefixlen"
	Nameservers []string `json:"nameservers"` // preference order
	Domains     []string `json:"domains"`
	Interface   string   `json:"interface,omitempty"` // kernel link, when the producer knows it
}

type Connection struct {
	ID          string
	Type        string
	Medium      Medium
	Default     bool
	Addresses   []netip.Prefix
	Nameservers []netip.Addr
	Domains     []string // normalised, deduplicated, first occurrence order
	Interface   string
}

/*
* Parse one producer message.  Anything that is not a JSON array of
* snapshot objects is a MalformedPayload.
 */
func ParseBatch(data []byte) ([]ConnectionSnapshot, error) {

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, dnserr.New(dnserr.KindMalformedPayload,
			errors.New("payload is not a JSON array"))
	}

	batch := []ConnectionSnapshot{}
	if err := json.Unmarshal(trimmed, &batch); err != nil {
		return nil, dnserr.New(dnserr.KindMalformedPayload, err)
	}
	return batch, nil
}

func EncodeBatch(batch []ConnectionSnapshot) ([]byte, error) {
	if batch == nil {
		batch = []ConnectionSnapshot{}
	}
	return json.Marshal(batch)
}

/*
* Validate every snapshot.  The first violation rejects the whole batch.
* Ids are unique within a batch.
 */
func ValidateBatch(batch []ConnectionSnapshot) ([]Connection, error) {

	conns := make([]Connection, 0, len(batch))
	ids := map[string]bool{}
	for i := range batch {
		c, err := batch[i].Validate(i)
		if err != nil {
			return nil, err
		}
		if ids[c.ID] {
			return nil, dnserr.InvalidSnapshot(i, "id", fmt.Errorf("duplicate id %q", c.ID))
		}
		ids[c.ID] = true
		conns = append(conns, c)
	}
	return conns, nil
}

func (s *ConnectionSnapshot) Validate(index int) (Connection, error) {

	c := Connection{
		ID:        strings.TrimSpace(s.ID),
		Type:      s.Type,
		Medium:    ParseMedium(s.Type),
		Default:   s.Default,
		Interface: strings.TrimSpace(s.Interface),
	}

	if c.ID == "" {
		return Connection{}, dnserr.InvalidSnapshot(index, "id", errors.New("empty id"))
	}

	for _, a := range s.Addresses {
		p, err := netip.ParsePrefix(strings.TrimSpace(a))
		if err != nil {
			return Connection{}, dnserr.InvalidSnapshot(index, "addresses", err)
		}
		if !p.Addr().Is4() {
			return Connection{}, dnserr.InvalidSnapshot(index, "addresses",
				fmt.Errorf("%q is not an IPv4 prefix", a))
		}
		c.Addresses = append(c.Addresses, p)
	}

	for _, n := range s.Nameservers {
		ip, err := netip.ParseAddr(strings.TrimSpace(n))
		if err != nil {
			return Connection{}, dnserr.InvalidSnapshot(index, "nameservers", err)
		}
		if !ip.Is4() {
			return Connection{}, dnserr.InvalidSnapshot(index, "nameservers",
				fmt.Errorf("%q is not an IPv4 address", n))
		}
		c.Nameservers = append(c.Nameservers, ip)
	}

	seen := map[string]bool{}
	for _, d := range s.Domains {
		nd, err := NormalizeDomain(d)
		if err != nil {
			return Connection{}, dnserr.InvalidSnapshot(index, "domains", err)
		}
		if seen[nd] {
			continue
		}
		seen[nd] = true
		c.Domains = append(c.Domains, nd)
	}

	return c, nil
}

// Snapshot converts back to the wire form.
func (c *Connection) Snapshot() ConnectionSnapshot {

	s := ConnectionSnapshot{
		ID:          c.ID,
		Type:        c.Type,
		Default:     c.Default,
		Addresses:   []string{},
		Nameservers: []string{},
		Domains:     append([]string{}, c.Domains...),
		Interface:   c.Interface,
	}
	for _, p := range c.Addresses {
		s.Addresses = append(s.Addresses, p.String())
	}
	for _, ip := range c.Nameservers {
		s.Nameservers = append(s.Nameservers, ip.String())
	}
	return s
}
