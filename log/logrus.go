package log

import "github.com/sirupsen/logrus"

// extraKey holds a trailing field that has no partner.
const extraKey = "!extra"

type logrusLogger struct {
	entry *logrus.Entry
}

var _ Logger = (*logrusLogger)(nil)

func (l *logrusLogger) Trace(msg string, fields ...interface{}) {
	l.log(LevelTrace, msg, fields)
}

func (l *logrusLogger) Debug(msg string, fields ...interface{}) {
	l.log(LevelDebug, msg, fields)
}

func (l *logrusLogger) Info(msg string, fields ...interface{}) {
	l.log(LevelInfo, msg, fields)
}

func (l *logrusLogger) Warn(msg string, fields ...interface{}) {
	l.log(LevelWarn, msg, fields)
}

func (l *logrusLogger) Error(msg string, fields ...interface{}) {
	l.log(LevelError, msg, fields)
}

func (l *logrusLogger) Fatal(msg string, fields ...interface{}) {
	l.log(LevelFatal, msg, fields)
}

func (l *logrusLogger) Sub(fields ...interface{}) Logger {
	return &logrusLogger{
		entry: l.withFields(fields),
	}
}

func (l *logrusLogger) log(level Level, msg string, fields []interface{}) {
	if level < currLevel {
		return
	}
	e := l.withFields(fields)
	switch level {
	case LevelTrace:
		e.Trace(msg)
	case LevelDebug:
		e.Debug(msg)
	case LevelInfo:
		e.Info(msg)
	case LevelWarn:
		e.Warn(msg)
	case LevelError:
		e.Error(msg)
	default:
		e.Fatal(msg)
	}
}

// withFields turns key/value pairs into logrus fields. Errors are stored by
// message so the JSON formatter does not render them as {}. Keys that are
// not strings are a programming error and panic.
func (l *logrusLogger) withFields(fields []interface{}) *logrus.Entry {
	if len(fields) == 0 {
		return l.entry
	}

	lFields := make(logrus.Fields, len(fields)/2+1)
	for i := 0; i < len(fields); i += 2 {
		if i+1 == len(fields) {
			lFields[extraKey] = fields[i]
			break
		}
		k, ok := fields[i].(string)
		if !ok {
			panic("log field keys must be strings")
		}
		v := fields[i+1]
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		lFields[k] = v
	}
	return l.entry.WithFields(lFields)
}
