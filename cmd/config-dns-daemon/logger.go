package main

import (
	"log/slog"
	"os"
	"path/filepath"
)

var logLevel = new(slog.LevelVar)

/*
* Configure log at module load time.  The level is adjusted once flags and
* the config file are read.
 */
func init() {

	opts := slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				src, _ := a.Value.Any().(*slog.Source)
				if src != nil {
					src.File = filepath.Base(src.File)
				}
			}
			return a
		}}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &opts))
	slog.SetDefault(logger)
}
