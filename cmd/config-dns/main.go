package main

/*
* Producer: reads NetworkManager's active connections and hands them to
* config-dns-daemon.
 */
import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/code-ointment/config-dns-daemon/internal/control"
	"github.com/code-ointment/config-dns-daemon/internal/dnserr"
	"github.com/code-ointment/config-dns-daemon/internal/model"
	"github.com/code-ointment/config-dns-daemon/internal/nm"
)

func status(ctx context.Context, client *control.Client) error {

	cfg, err := client.Status(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}

func dump(batch []model.ConnectionSnapshot) error {

	out, err := model.EncodeBatch(batch)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(os.Stdout, string(out))
	return err
}

func main() {

	args := GetArgs()
	logLevel.Set(args.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := control.NewClient(args.Socket, args.Timeout)

	if args.Status {
		if err := status(ctx, client); err != nil {
			slog.Error("status failed", "kind", dnserr.KindOf(err), "error", err)
			os.Exit(1)
		}
		return
	}

	bus, err := nm.Connect()
	if err != nil {
		slog.Error("networkmanager unavailable", "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	send := func(ctx context.Context) error {
		batch, err := bus.Snapshots(ctx, args.Exclude)
		if err != nil {
			return err
		}
		if args.Dump {
			return dump(batch)
		}
		if err := client.Send(ctx, batch); err != nil {
			return err
		}
		slog.Info("snapshots accepted", "connections", len(batch))
		return nil
	}

	if args.Watch {
		if err := bus.Watch(ctx, args.Interval, send); err != nil {
			slog.Error("watch failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := send(ctx); err != nil {
		slog.Error("send failed", "kind", dnserr.KindOf(err), "error", err)
		os.Exit(1)
	}
}
