// Package obslog is the controller's structured console logger, adapted
// from the teacher's pkg/logger: leveled Print-style methods and colorized
// level tags via github.com/fatih/color.
package obslog

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
)

var levelColor = map[string]*color.Color{
	"DEBUG": color.New(color.FgHiBlack),
	"INFO":  color.New(color.FgGreen),
	"WARN":  color.New(color.FgHiYellow),
	"ERROR": color.New(color.FgHiRed),
	"FATAL": color.New(color.FgHiRed, color.Bold),
}

// Logger is a leveled logger for one named component.
type Logger struct {
	name string
}

// New creates a Logger tagged with the given component name.
func New(name string) *Logger {
	return &Logger{name: name}
}

func (l *Logger) emit(level, msg string) {
	ts := time.Now().Format("2006-01-02 15:04:05.000")

	c, ok := levelColor[level]
	if ok {
		fmt.Fprintf(os.Stdout, "[%s] [%s] %s %s\n", ts, l.name, c.Sprint(level), msg)
	} else {
		fmt.Fprintf(os.Stdout, "[%s] [%s] %s %s\n", ts, l.name, level, msg)
	}
}

func (l *Logger) Debug(msg string) { l.emit("DEBUG", msg) }
func (l *Logger) Info(msg string)  { l.emit("INFO", msg) }
func (l *Logger) Warn(msg string)  { l.emit("WARN", msg) }
func (l *Logger) Error(msg string) { l.emit("ERROR", msg) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.emit("DEBUG", fmt.Sprintf(format, args...)) }
func (l *Logger) Infof(format string, args ...interface{})  { l.emit("INFO", fmt.Sprintf(format, args...)) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.emit("WARN", fmt.Sprintf(format, args...)) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.emit("ERROR", fmt.Sprintf(format, args...)) }

// Fatal logs at FATAL and exits the process, matching the teacher's
// Logger.Fatal — the only place an obslog call terminates the process.
func (l *Logger) Fatal(msg string) {
	l.emit("FATAL", msg)
	os.Exit(1)
}

func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.emit("FATAL", fmt.Sprintf(format, args...))
	os.Exit(1)
}
