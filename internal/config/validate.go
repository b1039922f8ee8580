package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

var backends = map[string]bool{
	"auto":       true,
	"resolvconf": true,
	"resolvectl": true,
	"knot":       true,
}

// Validate checks configuration correctness.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {

	if cfg == nil {
		return fmt.Errorf("no configuration")
	}

	if !filepath.IsAbs(cfg.Socket) {
		return fmt.Errorf("socket %q: must be an absolute path", cfg.Socket)
	}
	if cfg.SocketMode == 0 || cfg.SocketMode > 0777 {
		return fmt.Errorf("socket_mode %o: out of range", cfg.SocketMode)
	}
	if cfg.MaxMessageSize <= 0 {
		return fmt.Errorf("max_message_size must be positive, got %d", cfg.MaxMessageSize)
	}
	if cfg.ReadTimeout <= 0 {
		return fmt.Errorf("read_timeout must be positive, got %s", cfg.ReadTimeout)
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", cfg.Workers)
	}

	for _, n := range cfg.Exclude.Names {
		if strings.TrimSpace(n) == "" {
			return fmt.Errorf("exclude.names: empty pattern would exclude every connection")
		}
	}

	if !backends[cfg.Backend] {
		return fmt.Errorf("backend %q: unknown", cfg.Backend)
	}

	switch cfg.Backend {
	case "resolvconf":
		if cfg.ResolvConf.Path == "" {
			return fmt.Errorf("resolvconf.path is required")
		}
	case "knot":
		if cfg.Knot.Socket == "" {
			return fmt.Errorf("knot.socket is required")
		}
		if cfg.Knot.Timeout <= 0 {
			return fmt.Errorf("knot.timeout must be positive")
		}
	}

	switch strings.ToUpper(cfg.LogLevel) {
	case "", "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("log_level %q: unknown", cfg.LogLevel)
	}
	return nil
}
