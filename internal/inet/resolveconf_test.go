package inet

import (
	"context"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/code-ointment/config-dns-daemon/internal/model"
)

func homeConfig() *model.EffectiveConfig {
	cfg := model.NewEffectiveConfig()
	cfg.DefaultConnection = "eth0"
	cfg.GlobalNameservers = []netip.Addr{netip.MustParseAddr("192.168.1.1")}
	cfg.SearchDomains = []string{"home.lan", "corp.example"}
	cfg.DomainRoutes["corp.example"] = model.DomainRoute{
		Nameservers: []netip.Addr{netip.MustParseAddr("10.0.0.53")},
		Source:      "tun0",
	}
	return cfg
}

func TestResolveConf_Render(t *testing.T) {
	rc := NewResolveConf("/dev/null", "/dev/null")

	got := string(rc.Render(homeConfig()))
	want := resolvHeader +
		"# default connection: eth0\n" +
		"# route corp.example -> 10.0.0.53 (tun0)\n" +
		"search home.lan corp.example\n" +
		"nameserver 192.168.1.1\n"
	if got != want {
		t.Fatalf("render mismatch:\n%s\nwant:\n%s", got, want)
	}
}

func TestResolveConf_RenderTruncatesNameservers(t *testing.T) {
	cfg := model.NewEffectiveConfig()
	for _, ns := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4"} {
		cfg.GlobalNameservers = append(cfg.GlobalNameservers, netip.MustParseAddr(ns))
	}

	got := string(NewResolveConf("", "").Render(cfg))
	if strings.Count(got, "nameserver ") != 3 || strings.Contains(got, "10.0.0.4") {
		t.Fatalf("expected 3 nameservers, got:\n%s", got)
	}
}

func TestResolveConf_CommitIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resolv.conf")
	rc := NewResolveConf(path, filepath.Join(dir, "backup"))

	if err := rc.Commit(context.Background(), homeConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st1, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	if err := rc.Commit(context.Background(), homeConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st2, _ := os.Stat(path)
	if !os.SameFile(st1, st2) {
		t.Fatalf("identical config rewrote the file")
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("temporary files left behind: %v", entries)
	}
}

func TestResolveConf_FailureLeavesOldFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resolv.conf")
	if err := os.WriteFile(path, []byte("nameserver 9.9.9.9\n"), 0644); err != nil {
		t.Fatal(err)
	}

	// Rename target is a non-empty directory: the write cannot land.
	blocked := filepath.Join(dir, "blocked")
	os.MkdirAll(filepath.Join(blocked, "x"), 0755)
	rc := NewResolveConf(blocked, filepath.Join(dir, "backup"))
	if err := rc.Commit(context.Background(), homeConfig()); err == nil {
		t.Fatalf("expected commit error")
	}

	rc = NewResolveConf(filepath.Join(dir, "missing", "resolv.conf"), "")
	if err := rc.Commit(context.Background(), homeConfig()); err == nil {
		t.Fatalf("expected commit error for missing directory")
	}

	b, _ := os.ReadFile(path)
	if string(b) != "nameserver 9.9.9.9\n" {
		t.Fatalf("original file modified: %q", b)
	}
}

func TestResolveConf_BackupRestore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "resolv.conf")
	backup := filepath.Join(dir, "bk", "resolv.conf.backup")
	original := "nameserver 9.9.9.9\n"
	os.WriteFile(path, []byte(original), 0644)

	rc := NewResolveConf(path, backup)
	if err := rc.BackupConfig(); err != nil {
		t.Fatalf("backup: %v", err)
	}
	if err := rc.Commit(context.Background(), homeConfig()); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// A second backup must not overwrite the pre-daemon copy.
	if err := rc.BackupConfig(); err != nil {
		t.Fatalf("backup: %v", err)
	}

	if err := rc.RestoreConfig(); err != nil {
		t.Fatalf("restore: %v", err)
	}
	b, _ := os.ReadFile(path)
	if string(b) != original {
		t.Fatalf("expected original restored, got %q", b)
	}
	if _, err := os.Stat(backup); !os.IsNotExist(err) {
		t.Fatalf("backup not removed after restore")
	}
}

func TestResolveConf_CanceledContext(t *testing.T) {
	dir := t.TempDir()
	rc := NewResolveConf(filepath.Join(dir, "resolv.conf"), "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rc.Commit(ctx, homeConfig()); err == nil {
		t.Fatalf("expected canceled commit to fail")
	}
	if _, err := os.Stat(filepath.Join(dir, "resolv.conf")); !os.IsNotExist(err) {
		t.Fatalf("canceled commit wrote the file")
	}
}
