package nm

/*
* Reads active connections from NetworkManager over the system bus and
* turns them into snapshots for the daemon.
 */
import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/code-ointment/config-dns-daemon/internal/model"
	"github.com/godbus/dbus/v5"
)

const (
	busName         = "org.freedesktop.NetworkManager"
	rootPath        = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	ifaceManager    = "org.freedesktop.NetworkManager"
	ifaceActive     = "org.freedesktop.NetworkManager.Connection.Active"
	ifaceIP4Config  = "org.freedesktop.NetworkManager.IP4Config"
	ifaceDevice     = "org.freedesktop.NetworkManager.Device"
	noConfiguration = dbus.ObjectPath("/")
)

// PropertyReader fetches one D-Bus property.
type PropertyReader interface {
	Get(ctx context.Context, path dbus.ObjectPath, iface string, prop string) (dbus.Variant, error)
}

type busReader struct {
	conn *dbus.Conn
}

func (b *busReader) Get(ctx context.Context, path dbus.ObjectPath, iface string, prop string) (dbus.Variant, error) {

	var v dbus.Variant
	err := b.conn.Object(busName, path).
		CallWithContext(ctx, "org.freedesktop.DBus.Properties.Get", 0, iface, prop).
		Store(&v)
	return v, err
}

type Client struct {
	conn  *dbus.Conn
	props PropertyReader
}

func Connect() (*Client, error) {

	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("system bus: %w", err)
	}
	return &Client{conn: conn, props: &busReader{conn: conn}}, nil
}

// NewClient reads through props; used with a fake bus in tests.
func NewClient(props PropertyReader) *Client {
	return &Client{props: props}
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

/*
* Snapshot every active connection with an IPv4 configuration, skipping
* ids that contain one of exclude.  A connection that disappears while
* being read is skipped.
 */
func (c *Client) Snapshots(ctx context.Context, exclude []string) ([]model.ConnectionSnapshot, error) {

	v, err := c.props.Get(ctx, rootPath, ifaceManager, "ActiveConnections")
	if err != nil {
		return nil, fmt.Errorf("active connections: %w", err)
	}
	paths, ok := v.Value().([]dbus.ObjectPath)
	if !ok {
		return nil, fmt.Errorf("active connections: unexpected type %s", v.Signature())
	}

	batch := []model.ConnectionSnapshot{}
	for _, p := range paths {

		snap, ok, err := c.snapshot(ctx, p)
		if err != nil {
			slog.Debug("skipping connection", "path", p, "error", err)
			continue
		}
		if !ok {
			continue
		}
		if excluded(snap.ID, exclude) {
			slog.Debug("excluding connection", "id", snap.ID)
			continue
		}
		batch = append(batch, snap)
	}
	return batch, nil
}

func excluded(id string, patterns []string) bool {

	for _, p := range patterns {
		if strings.Contains(id, p) {
			return true
		}
	}
	return false
}

func (c *Client) snapshot(ctx context.Context, path dbus.ObjectPath) (model.ConnectionSnapshot, bool, error) {

	snap := model.ConnectionSnapshot{}

	if err := c.get(ctx, path, ifaceActive, "Id", &snap.ID); err != nil {
		return snap, false, err
	}
	if err := c.get(ctx, path, ifaceActive, "Type", &snap.Type); err != nil {
		return snap, false, err
	}
	if err := c.get(ctx, path, ifaceActive, "Default", &snap.Default); err != nil {
		return snap, false, err
	}

	var cfgPath dbus.ObjectPath
	if err := c.get(ctx, path, ifaceActive, "Ip4Config", &cfgPath); err != nil {
		return snap, false, err
	}
	if cfgPath == noConfiguration || !cfgPath.IsValid() {
		slog.Debug("no ipv4 configuration", "id", snap.ID)
		return snap, false, nil
	}

	if err := c.ip4Config(ctx, cfgPath, &snap); err != nil {
		return snap, false, err
	}
	snap.Interface = c.deviceInterface(ctx, path)
	return snap, true, nil
}

/*
* Kernel link of the connection's first device.  IpInterface differs from
* Interface for ppp and modem devices.  Empty when unknown; the daemon then
* finds the link by address.
 */
func (c *Client) deviceInterface(ctx context.Context, path dbus.ObjectPath) string {

	var devices []dbus.ObjectPath
	if err := c.get(ctx, path, ifaceActive, "Devices", &devices); err != nil || len(devices) == 0 {
		return ""
	}

	for _, prop := range []string{"IpInterface", "Interface"} {
		var name string
		if err := c.get(ctx, devices[0], ifaceDevice, prop, &name); err == nil && name != "" {
			return name
		}
	}
	return ""
}

/*
* Prefer the structured AddressData/NameserverData properties and fall
* back to the deprecated integer arrays on older NetworkManager.
 */
func (c *Client) ip4Config(ctx context.Context, path dbus.ObjectPath, snap *model.ConnectionSnapshot) error {

	var addrData []map[string]dbus.Variant
	if err := c.get(ctx, path, ifaceIP4Config, "AddressData", &addrData); err == nil {
		snap.Addresses = addressData(addrData)
	} else {
		var legacy [][]uint32
		if err := c.get(ctx, path, ifaceIP4Config, "Addresses", &legacy); err != nil {
			return err
		}
		snap.Addresses = legacyAddresses(legacy)
	}

	var nsData []map[string]dbus.Variant
	if err := c.get(ctx, path, ifaceIP4Config, "NameserverData", &nsData); err == nil {
		snap.Nameservers = nameserverData(nsData)
	} else {
		var legacy []uint32
		if err := c.get(ctx, path, ifaceIP4Config, "Nameservers", &legacy); err != nil {
			return err
		}
		snap.Nameservers = legacyNameservers(legacy)
	}

	var domains, searches []string
	if err := c.get(ctx, path, ifaceIP4Config, "Domains", &domains); err != nil {
		return err
	}
	if err := c.get(ctx, path, ifaceIP4Config, "Searches", &searches); err != nil {
		return err
	}
	snap.Domains = mergeDomains(domains, searches)
	return nil
}

func (c *Client) get(ctx context.Context, path dbus.ObjectPath, iface string, prop string, out any) error {

	v, err := c.props.Get(ctx, path, iface, prop)
	if err != nil {
		return fmt.Errorf("%s.%s: %w", iface, prop, err)
	}
	if err := v.Store(out); err != nil {
		return fmt.Errorf("%s.%s: %w", iface, prop, err)
	}
	return nil
}
