package main

/*
* Holder for command line arguments.
 */
import (
	"flag"
	"log/slog"
	"strings"
	"sync"

	"github.com/code-ointment/config-dns-daemon/internal/consts"
)

type Args struct {
	ConfigPath string
	Socket     string // overrides the config file when set
	LogLevel   string // overrides the config file when set
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

	flag.StringVar(&a.ConfigPath, "config", consts.ConfigFile, "configuration file")
	flag.StringVar(&a.Socket, "socket", "", "control socket path")
	flag.StringVar(&a.LogLevel, "log", "", "logging level [ DEBUG,INFO,WARN ]")

	flag.Parse()
}

func parseLevel(levelStr string) slog.Level {

	switch strings.ToUpper(levelStr) {
	case "INFO":
		return slog.LevelInfo
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	}
	return slog.LevelInfo
}
