package consts

import "time"

const (
	ControlSocket  string = "/var/run/config-dns-daemon/control"
	ConfigFile     string = "/etc/config-dns-daemon/config.yaml"
	ResolvConf     string = "/etc/resolv.conf"
	NsswitchConf   string = "/etc/nsswitch.conf"
	BackupDir      string = "/var/tmp/config-dns-daemon"
	ResolvBackup   string = BackupDir + "/resolv.conf.backup"
	KnotControl    string = "/run/knot-resolver/control@1"
	GlobalDnsRoute string = "~."
)

const (
	MaxMessageSize int           = 1 << 20 // 1 MiB
	ReadTimeout    time.Duration = 5 * time.Second
	DialTimeout    time.Duration = 5 * time.Second
	KnotTimeout    time.Duration = 5 * time.Second
	Workers        int           = 4
	SocketMode     uint32        = 0660
	MaxNameServers int           = 3 // resolv.conf limit, see man resolv.conf
)

// Wire tokens.
const (
	Ack         string = "Success"
	StatusQuery string = "status"
	ErrorPrefix string = "Error: "
)

// Connections whose id contains one of these are never default-route
// candidates and never contribute routes.
var ExcludeNames = []string{"virbr", "docker"}

// Netlink link types treated as virtual.
var ExcludeLinkTypes = []string{"veth"}

type LinkClass int

const (
	TUNNEL LinkClass = iota + 1
	STANDARD
	VIRTUAL
	UNUSED
)
