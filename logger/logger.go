package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the package-level logger every component pulls its
// logrus.FieldLogger from. It defaults to an info-level, stderr-only
// logger so the package is usable without calling Init.
var Logger = newDefault()

// Config controls the package-level logger's level and destination.
type Config struct {
	LogPath  string
	LogLevel string
}

// CustomFormatter renders entries as "[time] [LEVL] message key=value ...",
// matching the compact single-line style the rest of the stack expects
// in its terminal output.
type CustomFormatter struct {
	TimestampFormat string
}

func (f *CustomFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	timestamp := entry.Time.Format(f.TimestampFormat)
	level := strings.ToUpper(entry.Level.String())
	if len(level) > 4 {
		level = level[:4]
	}

	var b strings.Builder
	b.WriteString("[")
	b.WriteString(timestamp)
	b.WriteString("] [")
	b.WriteString(level)
	b.WriteString("] ")
	b.WriteString(entry.Message)
	for k, v := range entry.Data {
		b.WriteString(" ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(toString(v))
	}
	b.WriteString("\n")
	return []byte(b.String()), nil
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case error:
		return t.Error()
	default:
		return fmt.Sprint(t)
	}
}

func newDefault() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&CustomFormatter{TimestampFormat: "15:04:05"})
	l.SetLevel(logrus.InfoLevel)
	l.SetOutput(os.Stderr)
	return l
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "":
		return logrus.InfoLevel
	default:
		lvl, err := logrus.ParseLevel(level)
		if err != nil {
			return logrus.InfoLevel
		}
		return lvl
	}
}

// Init reconfigures the package-level Logger per cfg. A LogPath of ""
// leaves output on stderr; otherwise output is duplicated to the file
// and stderr, falling back to stderr alone if the file cannot be opened.
func Init(cfg Config) {
	Logger.SetLevel(parseLevel(cfg.LogLevel))
	if cfg.LogPath == "" {
		Logger.SetOutput(os.Stderr)
		return
	}
	f, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		Logger.SetOutput(os.Stderr)
		Logger.Warnf("failed to open log file %s, falling back to stderr: %v", cfg.LogPath, err)
		return
	}
	Logger.SetOutput(io.MultiWriter(os.Stderr, f))
}
