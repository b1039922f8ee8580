package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/code-ointment/config-dns-daemon/internal/consts"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Socket         string        `yaml:"socket"`
	SocketMode     uint32        `yaml:"socket_mode"`
	MaxMessageSize int           `yaml:"max_message_size"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	Workers        int           `yaml:"workers"`

	Exclude ExcludeConfig `yaml:"exclude"`

	Backend    string           `yaml:"backend"`
	ResolvConf ResolvConfConfig `yaml:"resolvconf"`
	Knot       KnotConfig       `yaml:"knot"`

	ReverseZones  bool   `yaml:"reverse_zones"`
	RestoreOnExit bool   `yaml:"restore_on_exit"`
	LogLevel      string `yaml:"log_level"`
}

// ---- EXCLUSION ----

type ExcludeConfig struct {
	Names     []string `yaml:"names"`      // substring match on connection id
	LinkTypes []string `yaml:"link_types"` // netlink link types, e.g. veth
}

// ---- BACKENDS ----

type ResolvConfConfig struct {
	Path   string `yaml:"path"`
	Backup string `yaml:"backup"`
}

type KnotConfig struct {
	Socket  string        `yaml:"socket"`
	Timeout time.Duration `yaml:"timeout"`
}

func Default() *Config {
	return &Config{
		Socket:         consts.ControlSocket,
		SocketMode:     consts.SocketMode,
		MaxMessageSize: consts.MaxMessageSize,
		ReadTimeout:    consts.ReadTimeout,
		Workers:        consts.Workers,
		Exclude: ExcludeConfig{
			Names:     append([]string{}, consts.ExcludeNames...),
			LinkTypes: append([]string{}, consts.ExcludeLinkTypes...),
		},
		Backend: "auto",
		ResolvConf: ResolvConfConfig{
			Path:   consts.ResolvConf,
			Backup: consts.ResolvBackup,
		},
		Knot: KnotConfig{
			Socket:  consts.KnotControl,
			Timeout: consts.KnotTimeout,
		},
		ReverseZones:  true,
		RestoreOnExit: true,
		LogLevel:      "INFO",
	}
}

/*
* Load reads path over the defaults.  A missing file is not an error: the
* daemon runs on defaults.
 */
func Load(path string) (*Config, error) {

	cfg := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
