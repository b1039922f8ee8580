package applier

import (
	"context"
	"errors"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/code-ointment/config-dns-daemon/internal/dnserr"
	"github.com/code-ointment/config-dns-daemon/internal/inet"
	"github.com/code-ointment/config-dns-daemon/internal/model"
)

type fakeBackend struct {
	commits  int
	restores int
	fail     error
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Commit(ctx context.Context, cfg *model.EffectiveConfig) error {
	if f.fail != nil {
		return f.fail
	}
	f.commits++
	return nil
}

func (f *fakeBackend) BackupConfig() error { return nil }

func (f *fakeBackend) RestoreConfig() error {
	f.restores++
	return nil
}

func sampleConfig() *model.EffectiveConfig {
	cfg := model.NewEffectiveConfig()
	cfg.DefaultConnection = "eth0"
	cfg.GlobalNameservers = []netip.Addr{netip.MustParseAddr("192.168.1.1")}
	cfg.SearchDomains = []string{"home.lan"}
	return cfg
}

func TestApply_Idempotent(t *testing.T) {
	fb := &fakeBackend{}
	a := NewApplier(fb)

	for i := 0; i < 3; i++ {
		if err := a.Apply(context.Background(), sampleConfig()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if fb.commits != 1 {
		t.Fatalf("expected one commit, got %d", fb.commits)
	}

	changed := sampleConfig()
	changed.SearchDomains = append(changed.SearchDomains, "corp.example")
	if err := a.Apply(context.Background(), changed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fb.commits != 2 {
		t.Fatalf("expected changed config committed, got %d", fb.commits)
	}
}

func TestApply_FailureIsApplyIo(t *testing.T) {
	fb := &fakeBackend{fail: errors.New("read-only file system")}
	a := NewApplier(fb)

	err := a.Apply(context.Background(), sampleConfig())
	if dnserr.KindOf(err) != dnserr.KindApplyIo {
		t.Fatalf("expected ApplyError::Io, got %v", err)
	}

	// a failed apply is retried on the next identical request
	fb.fail = nil
	if err := a.Apply(context.Background(), sampleConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fb.commits != 1 {
		t.Fatalf("expected retry to commit, got %d", fb.commits)
	}
}

func TestApply_Canceled(t *testing.T) {
	fb := &fakeBackend{}
	a := NewApplier(fb)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Apply(ctx, sampleConfig()); dnserr.KindOf(err) != dnserr.KindCanceled {
		t.Fatalf("expected Canceled, got %v", err)
	}
	if fb.commits != 0 {
		t.Fatalf("canceled apply reached the backend")
	}
}

func TestRestore_ForcesNextWrite(t *testing.T) {
	fb := &fakeBackend{}
	a := NewApplier(fb)

	a.Apply(context.Background(), sampleConfig())
	if err := a.Restore(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a.Apply(context.Background(), sampleConfig())

	if fb.restores != 1 || fb.commits != 2 {
		t.Fatalf("expected rewrite after restore, got commits=%d restores=%d",
			fb.commits, fb.restores)
	}
}

func TestApply_ResolvConfFailureLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()

	// a directory in place of the file makes the final rename fail
	target := filepath.Join(dir, "resolv.conf")
	if err := os.MkdirAll(filepath.Join(target, "keep"), 0755); err != nil {
		t.Fatal(err)
	}

	a := NewApplier(inet.NewResolveConf(target, filepath.Join(dir, "backup")))
	if err := a.Apply(context.Background(), sampleConfig()); dnserr.KindOf(err) != dnserr.KindApplyIo {
		t.Fatalf("expected ApplyError::Io, got %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "resolv.conf" {
		t.Fatalf("temporary file left behind: %v", entries)
	}
	if _, err := os.Stat(filepath.Join(target, "keep")); err != nil {
		t.Fatalf("prior content touched: %v", err)
	}
}
