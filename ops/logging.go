// Package ops configures process logging.
package ops

import (
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// InitLogging routes logrus output to stderr and a rotating log file
// under dir. The rotation policy matches the historical consumer:
// 20 MiB per file, three backups.
func InitLogging(dir, name, level, format string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	var rotated = &lumberjack.Logger{
		Filename:   filepath.Join(dir, name+".log"),
		MaxSize:    20, // MiB
		MaxBackups: 3,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotated))

	if format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	}

	if lvl, err := log.ParseLevel(level); err == nil {
		log.SetLevel(lvl)
	}
	return nil
}
