package inet

import (
	"bufio"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/code-ointment/config-dns-daemon/internal/model"
)

// fakeKresd answers policy.rules with a fixed rule list and every other
// command with an empty reply.
type fakeKresd struct {
	mutex    sync.Mutex
	commands []string
	rules    string
}

func startKresd(t *testing.T, rules string) (*fakeKresd, string) {
	t.Helper()

	dir, err := os.MkdirTemp("", "kres")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "control")

	l, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })

	k := &fakeKresd{rules: rules}
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go k.serve(conn)
		}
	}()
	return k, path
}

func (k *fakeKresd) serve(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		k.mutex.Lock()
		k.commands = append(k.commands, line)
		k.mutex.Unlock()

		if line == "policy.rules" {
			conn.Write([]byte(k.rules + "\n"))
			continue
		}
		conn.Write([]byte("\n"))
	}
}

func (k *fakeKresd) seen() []string {
	k.mutex.Lock()
	defer k.mutex.Unlock()
	return append([]string{}, k.commands...)
}

func TestKnot_Chunk(t *testing.T) {
	k := NewKnot("", time.Second)

	got := k.Chunk(homeConfig(), []int{3, 7})
	want := "policy.del(7); policy.del(3); " +
		"--[[ tun0 ]] policy.add(policy.suffix(policy.STUB({'10.0.0.53'}), {todname('corp.example')})); " +
		"policy.add(policy.all(policy.FORWARD({'192.168.1.1'})))"
	if got != want {
		t.Fatalf("chunk mismatch:\n got: %s\nwant: %s", got, want)
	}
}

func TestKnot_ChunkNamesConnection(t *testing.T) {
	cfg := homeConfig()
	rt := cfg.DomainRoutes["corp.example"]
	rt.Source = "Corp ]]VPN\n"
	rt.Medium = "vpn"
	cfg.DomainRoutes["corp.example"] = rt

	got := NewKnot("", time.Second).Chunk(cfg, nil)
	if !strings.HasPrefix(got, "--[[ vpn Corp VPN  ]] policy.add(policy.suffix(") {
		t.Fatalf("rule comment missing or unescaped: %s", got)
	}
}

func TestKnot_CommitReplacesRules(t *testing.T) {
	kres, path := startKresd(t, "[id] => 4\n[id] => 9\n")
	k := NewKnot(path, 2*time.Second)

	if err := k.Commit(context.Background(), homeConfig()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cmds := kres.seen()
	if len(cmds) != 2 || cmds[0] != "policy.rules" {
		t.Fatalf("unexpected commands %v", cmds)
	}
	if !strings.HasPrefix(cmds[1], "policy.del(9); policy.del(4); ") {
		t.Fatalf("old rules not removed newest first: %s", cmds[1])
	}
	if !strings.Contains(cmds[1], "todname('corp.example')") {
		t.Fatalf("route rule missing: %s", cmds[1])
	}
}

func TestKnot_RestoreDeletesRules(t *testing.T) {
	kres, path := startKresd(t, "[id] => 1\n")
	k := NewKnot(path, 2*time.Second)

	if err := k.RestoreConfig(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cmds := kres.seen()
	if len(cmds) != 2 || cmds[1] != "policy.del(1)" {
		t.Fatalf("unexpected commands %v", cmds)
	}
}

func TestKnot_Unreachable(t *testing.T) {
	k := NewKnot(filepath.Join(t.TempDir(), "absent"), 100*time.Millisecond)
	if err := k.Commit(context.Background(), model.NewEffectiveConfig()); err == nil {
		t.Fatalf("expected dial error")
	}
}
