package logger

import (
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Component logger shared by the whole process. Every call site tags its
// messages with a short component name ("engine", "telegram", ...) so the
// console output stays greppable per subsystem.

var (
	mu  sync.RWMutex
	log = zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger().Level(zerolog.InfoLevel)
)

// SetLevel changes the global log level. Accepts "debug", "info", "warn",
// "error"; anything else keeps the current level.
func SetLevel(level string) {
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return
	}
	mu.Lock()
	log = log.Level(parsed)
	mu.Unlock()
}

// UseJSON switches from the console writer to plain JSON output (for
// production deployments where logs are shipped, not read).
func UseJSON() {
	mu.Lock()
	log = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(log.GetLevel())
	mu.Unlock()
}

func event(ev *zerolog.Event, component, msg string, fields map[string]interface{}) {
	ev = ev.Str("component", component)
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func current() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func DebugC(component, msg string) { DebugCF(component, msg, nil) }

func DebugCF(component, msg string, fields map[string]interface{}) {
	l := current()
	event(l.Debug(), component, msg, fields)
}

func InfoC(component, msg string) { InfoCF(component, msg, nil) }

func InfoCF(component, msg string, fields map[string]interface{}) {
	l := current()
	event(l.Info(), component, msg, fields)
}

func WarnC(component, msg string) { WarnCF(component, msg, nil) }

func WarnCF(component, msg string, fields map[string]interface{}) {
	l := current()
	event(l.Warn(), component, msg, fields)
}

func ErrorC(component, msg string) { ErrorCF(component, msg, nil) }

func ErrorCF(component, msg string, fields map[string]interface{}) {
	l := current()
	event(l.Error(), component, msg, fields)
}
