package applier

/*
* Serialises configuration changes onto one resolver backend.  Applying the
* configuration that is already active does nothing.
 */
import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/code-ointment/config-dns-daemon/internal/dnserr"
	"github.com/code-ointment/config-dns-daemon/internal/inet"
	"github.com/code-ointment/config-dns-daemon/internal/model"
)

type Applier struct {
	mutex   sync.Mutex
	backend inet.DnsConfig
	last    *model.EffectiveConfig
}

func NewApplier(backend inet.DnsConfig) *Applier {
	return &Applier{backend: backend}
}

func (a *Applier) Backend() string {
	return a.backend.Name()
}

/*
* Write cfg through the backend.  Backend failures come back as
* ApplyError::Io; the backend guarantees the prior configuration survives.
 */
func (a *Applier) Apply(ctx context.Context, cfg *model.EffectiveConfig) error {

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.last != nil && a.last.Equal(cfg) {
		slog.Debug("configuration unchanged", "backend", a.backend.Name())
		return nil
	}

	if err := ctx.Err(); err != nil {
		return dnserr.New(dnserr.KindCanceled, err)
	}

	if err := a.backend.Commit(ctx, cfg); err != nil {
		return dnserr.New(dnserr.KindApplyIo,
			fmt.Errorf("%s: %w", a.backend.Name(), err))
	}

	a.last = cfg.Clone()
	slog.Debug("configuration committed", "backend", a.backend.Name(),
		"nameservers", len(cfg.GlobalNameservers),
		"search", len(cfg.SearchDomains))
	return nil
}

func (a *Applier) Backup() error {

	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.backend.BackupConfig()
}

/*
* Put the host's own configuration back.  The next Apply always writes.
 */
func (a *Applier) Restore() error {

	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.last = nil
	if err := a.backend.RestoreConfig(); err != nil {
		return dnserr.New(dnserr.KindApplyIo,
			fmt.Errorf("%s restore: %w", a.backend.Name(), err))
	}
	return nil
}
