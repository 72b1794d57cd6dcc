// Package log adds a thin wrapper around logrus so that tracker and peer code
// can attach structured fields without depending on logrus directly.
package log

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var (
	l     = logrus.New()
	debug atomic.Bool
)

// SetDebug controls debug logging.
func SetDebug(to bool) {
	debug.Store(to)
	if to {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
}

// SetFormatter sets the formatter.
func SetFormatter(to logrus.Formatter) {
	l.SetFormatter(to)
}

// SetOutput sets the output.
func SetOutput(to io.Writer) {
	l.SetOutput(to)
}

// Fields is a map of logging fields.
type Fields map[string]interface{}

// LogFields implements Fielder for Fields.
func (f Fields) LogFields() Fields {
	return f
}

// A Fielder provides Fields via the LogFields method.
type Fielder interface {
	LogFields() Fields
}

type errFielder struct {
	e error
}

func (e errFielder) LogFields() Fields {
	return Fields{
		"error": e.e.Error(),
		"type":  fmt.Sprintf("%T", e.e),
	}
}

// Err wraps an error so it can be passed as a Fielder.
func Err(e error) Fielder {
	return errFielder{e}
}

// mergeFielders flattens the Fields of several Fielders into one set.
// Later keys overwrite earlier ones.
func mergeFielders(fielders ...Fielder) logrus.Fields {
	fields := make(logrus.Fields)
	for _, f := range fielders {
		if f == nil {
			continue
		}
		for k, v := range f.LogFields() {
			fields[k] = v
		}
	}
	return fields
}

// Debug logs at the debug level if debug logging is enabled.
func Debug(v interface{}, fielders ...Fielder) {
	if !debug.Load() {
		return
	}
	l.WithFields(mergeFielders(fielders...)).Debug(v)
}

// Info logs at the info level.
func Info(v interface{}, fielders ...Fielder) {
	l.WithFields(mergeFielders(fielders...)).Info(v)
}

// Warn logs at the warning level.
func Warn(v interface{}, fielders ...Fielder) {
	l.WithFields(mergeFielders(fielders...)).Warn(v)
}

// Error logs at the error level.
func Error(v interface{}, fielders ...Fielder) {
	l.WithFields(mergeFielders(fielders...)).Error(v)
}

// Fatal logs at the fatal level and exits with a status code != 0.
func Fatal(v interface{}, fielders ...Fielder) {
	l.WithFields(mergeFielders(fielders...)).Fatal(v)
}
