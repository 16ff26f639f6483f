// Package logging provides leveled loggers that are passed explicitly to the
// components that need them.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/natefinch/lumberjack"
)

// Mode is the minimum severity a logger writes
type Mode uint

const (
	DebugMode Mode = iota
	InfoMode
	WarningMode
	ErrorMode
	SilentMode
)

// Logger records messages at different severities
type Logger interface {
	// Debugf formats its arguments analogous to fmt.Printf and records the text
	// at Debug level. Only written in debug mode.
	Debugf(format string, args ...interface{})

	// Infof is like Debugf, but at Info level
	Infof(format string, args ...interface{})

	// Warningf is like Debugf, but at Warning level
	Warningf(format string, args ...interface{})

	// Errorf is like Debugf, but at Error level
	Errorf(format string, args ...interface{})

	// Shutdown makes sure logs are closed
	Shutdown()
}

// Config selects a rotating log file. With no Logfile, messages go to the
// writer handed to New.
type Config struct {
	Logfile string `yaml:"logfile" toml:"logfile"`
	MaxSize int    `yaml:"max_log_size" toml:"max_log_size"`
	MaxAge  int    `yaml:"max_log_age" toml:"max_log_age"`
}

type stdLogger struct {
	out  *log.Logger
	file *lumberjack.Logger
	mode Mode
}

// New returns a logger writing at mode or above. Output goes to the rotating
// file named in cfg, or to w when no file is configured.
func New(cfg Config, mode Mode, w io.Writer) Logger {
	l := &stdLogger{mode: mode}
	if cfg.Logfile != "" {
		l.file = &lumberjack.Logger{
			Filename: cfg.Logfile,
			MaxSize:  cfg.MaxSize, // megabytes
			MaxAge:   cfg.MaxAge,  // days
		}
		w = l.file
	}
	if w == nil {
		w = os.Stderr
	}
	l.out = log.New(w, "", log.LstdFlags)
	return l
}

// Discard returns a logger that drops every message
func Discard() Logger {
	return &stdLogger{out: log.New(io.Discard, "", 0), mode: SilentMode}
}

// ModeFor maps the verbose flag to a mode
func ModeFor(verbose bool) Mode {
	if verbose {
		return DebugMode
	}
	return InfoMode
}

func (l *stdLogger) printf(m Mode, level, format string, args ...interface{}) {
	if m < l.mode {
		return
	}
	l.out.Output(3, " "+level+" "+fmt.Sprintf(format, args...))
}

func (l *stdLogger) Debugf(format string, args ...interface{}) {
	l.printf(DebugMode, "DEBUG", format, args...)
}

func (l *stdLogger) Infof(format string, args ...interface{}) {
	l.printf(InfoMode, "INFO", format, args...)
}

func (l *stdLogger) Warningf(format string, args ...interface{}) {
	l.printf(WarningMode, "WARNING", format, args...)
}

func (l *stdLogger) Errorf(format string, args ...interface{}) {
	l.printf(ErrorMode, "ERROR", format, args...)
}

func (l *stdLogger) Shutdown() {
	if l.file != nil {
		l.file.Close()
	}
}

// TimeLog adds elapsed time to logging.
// Example:
//
//	tlog := logging.NewTimeLog(logger)
//	...
//	tlog.Debugf("resampled atlas")  // Appends elapsed time since NewTimeLog()
type TimeLog struct {
	logger Logger
	start  time.Time
}

func NewTimeLog(l Logger) TimeLog {
	return TimeLog{l, time.Now()}
}

func (t TimeLog) Debugf(format string, args ...interface{}) {
	t.logger.Debugf(format+": %s", append(args, time.Since(t.start))...)
}

func (t TimeLog) Infof(format string, args ...interface{}) {
	t.logger.Infof(format+": %s", append(args, time.Since(t.start))...)
}

func (t TimeLog) Warningf(format string, args ...interface{}) {
	t.logger.Warningf(format+": %s", append(args, time.Since(t.start))...)
}

func (t TimeLog) Errorf(format string, args ...interface{}) {
	t.logger.Errorf(format+": %s", append(args, time.Since(t.start))...)
}

func (t TimeLog) Shutdown() {
	t.logger.Shutdown()
}
