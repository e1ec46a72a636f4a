package daemon

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// maxLogSize is the size past which a log file is truncated at startup.
const maxLogSize = 50 * 1024 * 1024

func init() {
	// discard until SetupLogging enables output
	log.SetOutput(io.Discard)
}

// ParseLogLevel maps a level name to a logrus level. "none" and the empty
// string report false.
func ParseLogLevel(level string) (log.Level, bool, error) {
	switch strings.ToLower(level) {
	case "", "none", "off":
		return log.PanicLevel, false, nil
	case "trace":
		return log.TraceLevel, true, nil
	case "debug":
		return log.DebugLevel, true, nil
	case "info":
		return log.InfoLevel, true, nil
	case "warn", "warning":
		return log.WarnLevel, true, nil
	default:
		return log.PanicLevel, false, fmt.Errorf("unknown log level %q", level)
	}
}

// SetupLogging points logrus at logFile (stderr when empty) at the given
// level. Level "none" discards all output. The returned closer releases
// the log file.
func SetupLogging(level, logFile string) (io.Closer, error) {
	lvl, enabled, err := ParseLogLevel(level)
	if err != nil {
		return nil, err
	}
	if !enabled {
		log.SetOutput(io.Discard)
		log.SetLevel(log.PanicLevel)
		return io.NopCloser(nil), nil
	}

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(lvl)
	if logFile == "" {
		log.SetOutput(os.Stderr)
		return io.NopCloser(nil), nil
	}

	if err := truncateLogFile(logFile, maxLogSize); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to truncate log file: %v\n", err)
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	log.SetOutput(f)
	return f, nil
}

// truncateLogFile keeps roughly the last half of logPath once it exceeds
// maxSize bytes, cutting at a line boundary.
func truncateLogFile(logPath string, maxSize int64) error {
	info, err := os.Stat(logPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() <= maxSize {
		return nil
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		return err
	}
	startIdx := len(data) - len(data)/2
	for i := startIdx; i < len(data); i++ {
		if data[i] == '\n' {
			startIdx = i + 1
			break
		}
	}

	kept := data[startIdx:]
	header := []byte(fmt.Sprintf("--- Log truncated at %s (kept last %d bytes) ---\n",
		time.Now().Format(time.RFC3339), len(kept)))
	return os.WriteFile(logPath, append(header, kept...), 0o600)
}
