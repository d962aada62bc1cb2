// Package logs builds the logrus loggers used across tuimer.
package logs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

// formatter prefixes each message with the logger owner.
type formatter struct {
	owner string
	lf    log.Formatter
}

// Format satisfies the log.Formatter interface.
func (f *formatter) Format(e *log.Entry) ([]byte, error) {
	e.Message = fmt.Sprintf("[%s] %s", f.owner, e.Message)
	return f.lf.Format(e)
}

// NewLogger returns a logger writing to w at the given level ("info" if empty).
func NewLogger(owner string, w io.Writer, level string) (*log.Logger, error) {
	lvl := log.InfoLevel
	if level != "" {
		parsed, err := log.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}
	logger := log.New()
	logger.SetOutput(w)
	logger.SetLevel(lvl)
	_, isFile := w.(*os.File)
	logger.SetFormatter(&formatter{
		owner: owner,
		lf: &log.TextFormatter{
			DisableColors:   isFile && w != os.Stderr,
			FullTimestamp:   true,
			TimestampFormat: time.StampMilli,
		},
	})
	return logger, nil
}

// OpenFile opens path for appending, creating parent directories.
func OpenFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}
