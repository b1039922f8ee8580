package nm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"
)

// NetworkManager emits a burst of signals per change; wait for it to settle.
const settle = 1500 * time.Millisecond

/*
* Call fn after every settled burst of NetworkManager signals and at least
* once per interval, until ctx is done.  fn errors are logged; the next
* change or tick retries.
 */
func (c *Client) Watch(ctx context.Context, interval time.Duration, fn func(context.Context) error) error {

	if c.conn == nil {
		return fmt.Errorf("watch needs a bus connection")
	}

	if err := c.conn.AddMatchSignalContext(ctx,
		dbus.WithMatchSender(busName),
		dbus.WithMatchInterface(ifaceManager)); err != nil {
		return fmt.Errorf("add match: %w", err)
	}

	signals := make(chan *dbus.Signal, 16)
	c.conn.Signal(signals)
	defer c.conn.RemoveSignal(signals)

	return watchLoop(ctx, signals, interval, settle, fn)
}

func watchLoop(
	ctx context.Context,
	signals <-chan *dbus.Signal,
	interval time.Duration,
	settle time.Duration,
	fn func(context.Context) error) error {

	if interval <= 0 {
		return fmt.Errorf("watch interval must be positive, got %s", interval)
	}

	run := func(reason string) {
		slog.Debug("sending snapshots", "reason", reason)
		if err := fn(ctx); err != nil {
			slog.Error("send failed", "reason", reason, "error", err)
		}
	}

	run("startup")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	debounce := time.NewTimer(settle)
	debounce.Stop()
	pending := false

	for {
		select {
		case <-ctx.Done():
			return nil

		case sig, ok := <-signals:
			if !ok {
				return fmt.Errorf("bus connection closed")
			}
			slog.Debug("networkmanager signal", "name", sig.Name)
			if pending && !debounce.Stop() {
				<-debounce.C
			}
			debounce.Reset(settle)
			pending = true

		case <-debounce.C:
			pending = false
			run("change")

		case <-ticker.C:
			run("interval")
		}
	}
}
