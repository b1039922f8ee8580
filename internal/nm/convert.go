package nm

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"strings"

	"github.com/godbus/dbus/v5"
)

/*
* NetworkManager's legacy "au" properties carry IPv4 addresses as uint32 in
* network byte order read as a host (little endian) integer.
 */
func uint32ToAddr(u uint32) netip.Addr {

	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], u)
	return netip.AddrFrom4(b)
}

/*
* AddressData entries: {"address": "192.168.1.10", "prefix": 24}.
 */
func addressData(entries []map[string]dbus.Variant) []string {

	out := []string{}
	for _, e := range entries {
		addr, ok := e["address"].Value().(string)
		if !ok {
			continue
		}
		prefix, ok := e["prefix"].Value().(uint32)
		if !ok {
			continue
		}
		out = append(out, fmt.Sprintf("%s/%d", addr, prefix))
	}
	return out
}

func nameserverData(entries []map[string]dbus.Variant) []string {

	out := []string{}
	for _, e := range entries {
		if addr, ok := e["address"].Value().(string); ok {
			out = append(out, addr)
		}
	}
	return out
}

// Addresses (aau): [address, prefix, gateway] triples.
func legacyAddresses(entries [][]uint32) []string {

	out := []string{}
	for _, e := range entries {
		if len(e) < 2 {
			continue
		}
		out = append(out, fmt.Sprintf("%s/%d", uint32ToAddr(e[0]), e[1]))
	}
	return out
}

func legacyNameservers(entries []uint32) []string {

	out := []string{}
	for _, u := range entries {
		out = append(out, uint32ToAddr(u).String())
	}
	return out
}

/*
* Union of configured and search domains, first occurrence order.
 */
func mergeDomains(lists ...[]string) []string {

	seen := map[string]bool{}
	out := []string{}
	for _, l := range lists {
		for _, d := range l {
			d = strings.TrimSpace(d)
			if d == "" || seen[d] {
				continue
			}
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}
