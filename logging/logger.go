// Package logging provides pre-configured, per-component logrus loggers for
// opsync. Configuration comes from the "logging" section of opsync.yml with
// OPSYNC_LOG_LEVEL / OPSYNC_LOG_CALLER env overrides.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/patchforge/opsync/config"
	"github.com/patchforge/opsync/pkg/paths"
)

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex
)

// NewLogger creates and returns a pre-configured logger for a specific
// component. It uses a singleton pattern per component to avoid
// re-initializing.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}

	logger := logrus.New()

	var logCfg Config
	if cfg, err := config.LoadDefault(); err == nil {
		if err := cfg.UnmarshalExtension("logging", &logCfg); err != nil {
			logrus.Warnf("Failed to parse 'logging' config: %v", err)
		}
	}

	levelStr := "info"
	if os.Getenv("OPSYNC_LOG_LEVEL") != "" {
		levelStr = os.Getenv("OPSYNC_LOG_LEVEL")
	} else if logCfg.Level != "" {
		levelStr = logCfg.Level
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if os.Getenv("OPSYNC_LOG_CALLER") == "true" || logCfg.ReportCaller {
		logger.SetReportCaller(true)
	}

	switch logCfg.Format.Preset {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "simple":
		logger.SetFormatter(&TextFormatter{Config: FormatConfig{
			DisableTimestamp: true,
			DisableComponent: true,
		}})
	default:
		logger.SetFormatter(&TextFormatter{Config: logCfg.Format})
	}

	var writers []io.Writer

	if file := openLogFile(logger, component, logCfg); file != nil {
		writers = append(writers, file)
	}

	if shouldLogToStderr(logger, logCfg) {
		writers = append(writers, os.Stderr)
	}

	switch len(writers) {
	case 0:
		// Interactive terminal without debug: stay silent rather than
		// interleaving structured logs with command output.
		logger.SetOutput(io.Discard)
	case 1:
		logger.SetOutput(writers[0])
	default:
		logger.SetOutput(io.MultiWriter(writers...))
	}

	entry := logger.WithField("component", component)
	loggers[component] = entry
	return entry
}

// LogFilePath returns the file a component's logger writes to today.
func LogFilePath(component string) string {
	dir := paths.LogDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%s.log", component, time.Now().Format("2006-01-02")))
}

func openLogFile(logger *logrus.Logger, component string, logCfg Config) io.Writer {
	var path string
	if logCfg.File.Enabled && logCfg.File.Path != "" {
		path = expandPath(logCfg.File.Path)
	} else {
		path = LogFilePath(component)
	}
	if path == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		if logCfg.File.Enabled {
			logger.Warnf("Failed to create log directory %s: %v", filepath.Dir(path), err)
		}
		return nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		if logCfg.File.Enabled {
			logger.Warnf("Failed to open log file %s: %v", path, err)
		}
		return nil
	}
	return file
}

func shouldLogToStderr(logger *logrus.Logger, logCfg Config) bool {
	mode := logCfg.Format.StructuredToStderr
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "always":
		return true
	case "never":
		return false
	default:
		// "auto": stderr only when debugging or when output is piped/CI.
		isDebug := os.Getenv("OPSYNC_DEBUG") == "1" || logger.GetLevel() == logrus.DebugLevel
		isInteractive := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
		return isDebug || !isInteractive
	}
}

// expandPath expands tilde in file paths
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
