package inet

/*
* Define an interface used to control DNS config.
* Save the host's config with BackupConfig(), push reconciled state with
* Commit(), put the host back with RestoreConfig() on the way out.
 */
import (
	"context"

	"github.com/code-ointment/config-dns-daemon/internal/model"
)

type DnsConfig interface {
	// Backend name as used in the config file
	Name() string
	// Commit writes cfg to the host.  On error the previously active
	// configuration must still be in place.
	Commit(ctx context.Context, cfg *model.EffectiveConfig) error
	// Backup the current configuration
	BackupConfig() error
	// Restore previously backed up configuration
	RestoreConfig() error
}
