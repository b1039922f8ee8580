package inet

/*
* Pick the DNS backend the daemon writes to.
 */
import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/code-ointment/config-dns-daemon/internal/linux"
)

const (
	BackendAuto       = "auto"
	BackendResolvConf = "resolvconf"
	BackendResolvectl = "resolvectl"
	BackendKnot       = "knot"
)

type ResolverConfigFactory struct {
	NsswitchPath string
	ResolvPath   string
	ResolvBackup string
	KnotSocket   string
	KnotTimeout  time.Duration

	Runner linux.Runner
	Links  LinkLookup
}

/*
* Per /etc/vpnc/vpnc-script
 */
func (rf *ResolverConfigFactory) isSystemdResolv() bool {

	fd, err := os.Open(rf.NsswitchPath)
	if err != nil {
		slog.Warn("can't open nsswitch.conf", "path", rf.NsswitchPath, "error", err)
		return false
	}
	defer fd.Close()

	scanner := bufio.NewScanner(fd)
	for scanner.Scan() {
		line := scanner.Text()

		if !strings.HasPrefix(line, "hosts") {
			continue
		}

		// systemd-resolve
		if strings.Contains(line, "resolve") {
			return rf.checkSystemdResolveStatus()
		}

		// nss-dns with systemd-resolve
		if strings.Contains(line, "dns") {
			dest, err := os.Readlink(rf.ResolvPath)
			if err != nil {
				slog.Debug("resolv.conf is not a link", "error", err)
				return false
			}
			if strings.HasSuffix(dest, "stub-resolv.conf") {
				return rf.checkSystemdResolveStatus()
			}
		}
	}
	return false
}

/*
* Make sure we can communicate with systemd-resolve
 */
func (rf *ResolverConfigFactory) checkSystemdResolveStatus() bool {

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if rf.Runner.Run(ctx, []string{"resolvectl", "status"}).Ok() {
		return true
	}
	return rf.Runner.Run(ctx, []string{"systemd-resolve", "--status"}).Ok()
}

func (rf *ResolverConfigFactory) GetDNSConfig(backend string) (DnsConfig, error) {

	if backend == BackendAuto {
		backend = BackendResolvConf
		if rf.isSystemdResolv() {
			backend = BackendResolvectl
		}
		slog.Info("backend detected", "backend", backend)
	}

	switch backend {
	case BackendResolvConf:
		return NewResolveConf(rf.ResolvPath, rf.ResolvBackup), nil
	case BackendResolvectl:
		return NewResolvectl(rf.Runner, rf.Links), nil
	case BackendKnot:
		return NewKnot(rf.KnotSocket, rf.KnotTimeout), nil
	}
	return nil, fmt.Errorf("unknown dns backend %q", backend)
}
