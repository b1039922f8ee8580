package main

/*
* Holder for command line arguments.
 */
import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/code-ointment/config-dns-daemon/internal/consts"
)

type Args struct {
	Socket   string
	Dump     bool
	Status   bool
	Watch    bool
	Interval time.Duration
	Timeout  time.Duration
	Exclude  []string
	LogLevel slog.Level
}

var cmdLineArgs *Args
var cmdLineLock sync.Mutex

func GetArgs() *Args {
	cmdLineLock.Lock()
	defer cmdLineLock.Unlock()

	if cmdLineArgs == nil {
		cmdLineArgs = &Args{}
		cmdLineArgs.init()
	}
	return cmdLineArgs
}

func (a *Args) init() {

	var levelStr string
	var exclude string

	flag.StringVar(&a.Socket, "socket", consts.ControlSocket, "daemon control socket")
	flag.BoolVar(&a.Dump, "dump", false, "print the snapshot batch as JSON instead of sending it")
	flag.BoolVar(&a.Status, "status", false, "print the daemon's active configuration")
	flag.BoolVar(&a.Watch, "watch", false, "resend on every NetworkManager change")
	flag.DurationVar(&a.Interval, "interval", time.Minute, "resend period in watch mode")
	flag.DurationVar(&a.Timeout, "timeout", consts.DialTimeout, "daemon round trip timeout")
	flag.StringVar(&exclude, "exclude", strings.Join(consts.ExcludeNames, ","),
		"comma separated connection id patterns to skip")
	flag.StringVar(&levelStr, "log", "WARN", "logging level [ DEBUG,INFO,WARN ]")

	flag.Parse()
	a.LogLevel = a.parseLevel(levelStr)
	a.Exclude = splitList(exclude)

	if err := a.validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}
}

func (a *Args) validate() error {

	if a.Interval <= 0 {
		return fmt.Errorf("-interval must be positive, got %s", a.Interval)
	}
	if a.Timeout <= 0 {
		return fmt.Errorf("-timeout must be positive, got %s", a.Timeout)
	}
	return nil
}

func splitList(s string) []string {

	out := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (a *Args) parseLevel(levelStr string) slog.Level {

	switch strings.ToUpper(levelStr) {
	case "INFO":
		return slog.LevelInfo
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	}
	return slog.LevelInfo
}
