package inet

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"slices"
	"strings"

	"github.com/code-ointment/config-dns-daemon/internal/consts"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

/*
* Looks links up on demand; nothing is cached, so there is no monitor
* goroutine to keep in sync with the kernel.
 */
type InterfaceManager struct {
	excludeNames []string
	excludeTypes []string

	linkByName  func(name string) (netlink.Link, error)
	linkByIndex func(index int) (netlink.Link, error)
	routeGet    func(dst net.IP) ([]netlink.Route, error)
	addrList    func() ([]netlink.Addr, error)
}

func NewInterfaceManager(excludeNames []string, excludeTypes []string) *InterfaceManager {

	ifm := InterfaceManager{
		excludeNames: excludeNames,
		excludeTypes: excludeTypes,
		linkByName:   netlink.LinkByName,
		linkByIndex:  netlink.LinkByIndex,
		routeGet:     netlink.RouteGet,
		addrList: func() ([]netlink.Addr, error) {
			return netlink.AddrList(nil, netlink.FAMILY_V4)
		},
	}
	return &ifm
}

/*
* Check for interfaces we are not using for our purpose.
 */
func (ifm *InterfaceManager) Classify(l netlink.Link) consts.LinkClass {

	lattrs := l.Attrs()

	for _, n := range ifm.excludeNames {
		if strings.HasPrefix(lattrs.Name, n) {
			return consts.VIRTUAL
		}
	}

	if slices.Contains(ifm.excludeTypes, l.Type()) {
		return consts.VIRTUAL
	}

	if lattrs.RawFlags&unix.IFF_LOOPBACK == unix.IFF_LOOPBACK {
		slog.Debug("skipping loopback interface", "name", lattrs.Name)
		return consts.UNUSED
	}

	if lattrs.RawFlags&unix.IFF_POINTOPOINT == unix.IFF_POINTOPOINT {
		return consts.TUNNEL
	}
	return consts.STANDARD
}

/*
* A connection id that names a virtual link (bridge to VMs, container
* veth, ...) is never a default-route candidate.  Ids that are not link
* names, e.g. "Wired connection 1", are not virtual by this test.
 */
func (ifm *InterfaceManager) IsVirtual(name string) bool {

	l, err := ifm.linkByName(name)
	if err != nil {
		return false
	}
	return ifm.Classify(l) == consts.VIRTUAL
}

func (ifm *InterfaceManager) LinkExists(name string) bool {

	if name == "" {
		return false
	}
	_, err := ifm.linkByName(name)
	return err == nil
}

/*
* The link carrying the route to a public address.
 */
func (ifm *InterfaceManager) DefaultLink() (netlink.Link, error) {

	routes, err := ifm.routeGet(net.ParseIP("8.8.8.8"))
	if err != nil {
		return nil, fmt.Errorf("get default link: %w", err)
	}

	for _, r := range routes {
		l, err := ifm.linkByIndex(r.LinkIndex)
		if err != nil {
			slog.Warn("no such interface", "index", r.LinkIndex, "error", err)
			continue
		}
		return l, nil
	}
	return nil, errors.New("no default route")
}

/*
* The link holding addr.  Connection ids from a network manager are
* profile names; the address the profile configured finds its device.
 */
func (ifm *InterfaceManager) LinkWithAddr(addr netip.Addr) (string, bool) {

	addrs, err := ifm.addrList()
	if err != nil {
		slog.Warn("list addresses", "error", err)
		return "", false
	}

	ip := net.IP(addr.AsSlice())
	for _, a := range addrs {
		if a.IPNet == nil || !a.IP.Equal(ip) {
			continue
		}
		l, err := ifm.linkByIndex(a.LinkIndex)
		if err != nil {
			slog.Warn("no such interface", "index", a.LinkIndex, "error", err)
			continue
		}
		return l.Attrs().Name, true
	}
	return "", false
}
