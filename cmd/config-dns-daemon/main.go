package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/code-ointment/config-dns-daemon/internal/applier"
	"github.com/code-ointment/config-dns-daemon/internal/config"
	"github.com/code-ointment/config-dns-daemon/internal/consts"
	"github.com/code-ointment/config-dns-daemon/internal/control"
	"github.com/code-ointment/config-dns-daemon/internal/engine"
	"github.com/code-ointment/config-dns-daemon/internal/inet"
	"github.com/code-ointment/config-dns-daemon/internal/linux"
)

/*
* Wait for an exit signal, then stop the listener.
 */
func sigWait(cancel context.CancelFunc) {

	intChan := make(chan os.Signal, 1)
	signal.Notify(intChan, os.Interrupt, syscall.SIGTERM)
	sig := <-intChan
	slog.Info("exiting", "signal", sig)
	cancel()
}

/*
* Dump stack similarly to java when a  QUIT is recieved.
 */
func sigQuit() {

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGQUIT)
	buf := make([]byte, 1<<20)
	for {
		<-sigs
		stacklen := runtime.Stack(buf, true)
		fmt.Printf("=== received SIGQUIT ===\n*** goroutine dump...\n%s\n*** end\n", buf[:stacklen])
	}
}

func loadConfig(args *Args) (*config.Config, error) {

	cfg, err := config.Load(args.ConfigPath)
	if err != nil {
		return nil, err
	}
	if args.Socket != "" {
		cfg.Socket = args.Socket
	}
	if args.LogLevel != "" {
		cfg.LogLevel = args.LogLevel
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", args.ConfigPath, err)
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {

	ifm := inet.NewInterfaceManager(cfg.Exclude.Names, cfg.Exclude.LinkTypes)

	factory := inet.ResolverConfigFactory{
		NsswitchPath: consts.NsswitchConf,
		ResolvPath:   cfg.ResolvConf.Path,
		ResolvBackup: cfg.ResolvConf.Backup,
		KnotSocket:   cfg.Knot.Socket,
		KnotTimeout:  cfg.Knot.Timeout,
		Runner:       linux.ExecRunner{},
		Links:        ifm,
	}
	backend, err := factory.GetDNSConfig(cfg.Backend)
	if err != nil {
		return err
	}

	app := applier.NewApplier(backend)
	if err := app.Backup(); err != nil {
		slog.Warn("dns config backup failed", "backend", app.Backend(), "error", err)
	}
	if cfg.RestoreOnExit {
		defer func() {
			if err := app.Restore(); err != nil {
				slog.Error("dns config restore failed", "backend", app.Backend(), "error", err)
			}
		}()
	}

	rec := engine.NewReconciler(app, engine.Options{
		ExcludeNames: cfg.Exclude.Names,
		Links:        ifm,
		ReverseZones: cfg.ReverseZones,
	})

	ln := control.NewListener(control.ListenerConfig{
		Path:           cfg.Socket,
		Mode:           os.FileMode(cfg.SocketMode),
		MaxMessageSize: cfg.MaxMessageSize,
		ReadTimeout:    cfg.ReadTimeout,
		Workers:        cfg.Workers,
	}, rec)

	slog.Info("starting", "backend", app.Backend(), "socket", cfg.Socket,
		"workers", cfg.Workers, "reverse_zones", cfg.ReverseZones)
	return ln.ListenAndServe(ctx)
}

func main() {

	go sigQuit()

	args := GetArgs()
	if args.LogLevel != "" {
		logLevel.Set(parseLevel(args.LogLevel))
	}

	cfg, err := loadConfig(args)
	if err != nil {
		slog.Error("bad configuration", "error", err)
		os.Exit(2)
	}
	logLevel.Set(parseLevel(cfg.LogLevel))

	ctx, cancel := context.WithCancel(context.Background())
	go sigWait(cancel)

	if err := run(ctx, cfg); err != nil {
		slog.Error("daemon failed", "error", err)
		os.Exit(1)
	}
}
