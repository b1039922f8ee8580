package inet

/*
* Handle updating a typical /etc/resolv.conf configuration.  resolv.conf
* has no notion of per-domain routing, so routes are written as comments
* and only the global nameservers and search list take effect.
 */
import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/code-ointment/config-dns-daemon/internal/consts"
	"github.com/code-ointment/config-dns-daemon/internal/model"
)

const resolvHeader = "# Generated by config-dns-daemon. Do not edit.\n"

type ResolveConf struct {
	mutex  sync.Mutex
	path   string
	backup string
}

func NewResolveConf(path string, backup string) *ResolveConf {
	return &ResolveConf{path: path, backup: backup}
}

func (rc *ResolveConf) Name() string {
	return "resolvconf"
}

/*
* Render the file contents for cfg.
 */
func (rc *ResolveConf) Render(cfg *model.EffectiveConfig) []byte {

	var b bytes.Buffer
	b.WriteString(resolvHeader)

	if cfg.DefaultConnection != "" {
		fmt.Fprintf(&b, "# default connection: %s\n", cfg.DefaultConnection)
	}
	for _, d := range cfg.RouteDomains() {
		r := cfg.DomainRoutes[d]
		fmt.Fprintf(&b, "# route %s -> %s (%s)\n", d,
			strings.Join(addrStrings(r.Nameservers), " "), r.Source)
	}

	if len(cfg.SearchDomains) > 0 {
		fmt.Fprintf(&b, "search %s\n", strings.Join(cfg.SearchDomains, " "))
	}

	servers := cfg.GlobalNameservers
	if len(servers) > consts.MaxNameServers {
		slog.Warn("resolv.conf takes 3 nameservers at most, truncating",
			"nameservers", len(servers))
		servers = servers[:consts.MaxNameServers]
	}
	for _, ns := range servers {
		fmt.Fprintf(&b, "nameserver %s\n", ns)
	}
	return b.Bytes()
}

/*
* Replace the file atomically.  Unchanged content is not rewritten.
 */
func (rc *ResolveConf) Commit(ctx context.Context, cfg *model.EffectiveConfig) error {

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	content := rc.Render(cfg)
	current, err := os.ReadFile(rc.path)
	if err == nil && bytes.Equal(current, content) {
		slog.Debug("resolv.conf unchanged", "path", rc.path)
		return nil
	}

	if len(cfg.GlobalNameservers) == 0 {
		slog.Warn("no global nameservers, resolv.conf will fall back to localhost")
	}

	if err := writeFileAtomic(rc.path, content, 0644); err != nil {
		return fmt.Errorf("write %s: %w", rc.path, err)
	}
	slog.Info("resolv.conf updated", "path", rc.path,
		"nameservers", len(cfg.GlobalNameservers), "search", cfg.SearchDomains)
	return nil
}

/*
* Keep the pre-daemon file once.  A backup left by a previous run is the
* older, and therefore the right, one to keep.
 */
func (rc *ResolveConf) BackupConfig() error {

	if _, err := os.Stat(rc.backup); err == nil {
		slog.Warn("dns config already backed up", "backup", rc.backup)
		return nil
	}

	content, err := os.ReadFile(rc.path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("nothing to back up", "path", rc.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", rc.path, err)
	}

	if err := os.MkdirAll(filepath.Dir(rc.backup), 0700); err != nil {
		return fmt.Errorf("backup dir: %w", err)
	}
	return writeFileAtomic(rc.backup, content, 0600)
}

/*
* Converse of backup.
 */
func (rc *ResolveConf) RestoreConfig() error {

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	content, err := os.ReadFile(rc.backup)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("no backup available", "backup", rc.backup)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}

	if err := writeFileAtomic(rc.path, content, 0644); err != nil {
		return fmt.Errorf("restore %s: %w", rc.path, err)
	}
	return os.Remove(rc.backup)
}

/*
* Write to a temporary file in the target's directory and rename it over
* the target, so readers see either the old or the new file.
 */
func writeFileAtomic(path string, content []byte, perm os.FileMode) error {

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	cleanup := func(err error) error {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}

	if _, err := tmp.Write(content); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
