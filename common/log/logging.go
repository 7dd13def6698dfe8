// Package log provides the structured logger shared by the soup and fix
// session packages: level-gated output, RFC 5424 framing via
// github.com/crewjam/rfc5424, and a discard logger for components that
// don't care to log.
package log

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/crewjam/rfc5424"
)

type Level int

const (
	OFF Level = iota
	DEBUG
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	}
	return "OFF"
}

func (l Level) priority() rfc5424.Priority {
	switch l {
	case ERROR:
		return rfc5424.Error
	case WARN:
		return rfc5424.Warning
	case INFO:
		return rfc5424.Info
	default:
		return rfc5424.Debug
	}
}

const (
	defaultAppname = `nasdaq-protocols`
	maxHostname    = 255
	maxAppname     = 48
)

var ErrNotOpen = errors.New("logger is not open")

// Logger is a minimal multi-writer leveled logger. The zero value is not
// usable; construct with New or Discard.
type Logger struct {
	mtx      sync.Mutex
	wtrs     []io.Writer
	lvl      Level
	hostname string
	appname  string
	hot      bool
}

// New wraps wtr as the logger's sole sink at INFO level.
func New(wtr io.Writer) *Logger {
	hn, _ := os.Hostname()
	return &Logger{
		wtrs:     []io.Writer{wtr},
		lvl:      INFO,
		hostname: hn,
		appname:  defaultAppname,
		hot:      true,
	}
}

// Discard returns a logger that swallows every record; this is the default
// used by session/reader/queue/monitor constructors when the caller does
// not supply one.
func Discard() *Logger {
	return New(io.Discard)
}

func (l *Logger) SetLevel(lvl Level) { l.mtx.Lock(); l.lvl = lvl; l.mtx.Unlock() }

func (l *Logger) SetAppname(name string) {
	l.mtx.Lock()
	l.appname = trim(name, maxAppname)
	l.mtx.Unlock()
}

func (l *Logger) Debugf(f string, args ...interface{}) { l.outputf(DEBUG, f, args...) }
func (l *Logger) Infof(f string, args ...interface{})  { l.outputf(INFO, f, args...) }
func (l *Logger) Warnf(f string, args ...interface{})  { l.outputf(WARN, f, args...) }
func (l *Logger) Errorf(f string, args ...interface{}) { l.outputf(ERROR, f, args...) }

func (l *Logger) outputf(lvl Level, f string, args ...interface{}) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if !l.hot || lvl < l.lvl || l.lvl == OFF {
		return
	}
	msg := fmt.Sprintf(f, args...)
	b, err := genRFCMessage(time.Now(), lvl.priority(), l.hostname, l.appname, msg)
	if err != nil || len(b) == 0 {
		return
	}
	line := strings.TrimRight(string(b), "\n\t\r")
	for _, w := range l.wtrs {
		io.WriteString(w, line)
		io.WriteString(w, "\n")
	}
}

func genRFCMessage(ts time.Time, prio rfc5424.Priority, hostname, appname, msg string) ([]byte, error) {
	m := rfc5424.Message{
		Priority:  prio,
		Timestamp: ts,
		Hostname:  trim(hostname, maxHostname),
		AppName:   trim(appname, maxAppname),
		Message:   []byte(msg),
	}
	return m.MarshalBinary()
}

func trim(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
