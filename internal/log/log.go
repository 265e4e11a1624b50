// Package log is the device manager's logger. It wraps a single logrus
// instance so every package logs through the same level and output.
package log

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	logger = newLogger()
	mu     sync.Mutex
)

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	return l
}

// SetLevel changes the level. Unknown level names are ignored.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return
	}

	mu.Lock()
	defer mu.Unlock()
	logger.SetLevel(lvl)
}

func GetLevel() logrus.Level {
	return logger.GetLevel()
}

// SetOutput redirects log output. A nil writer is ignored.
func SetOutput(w io.Writer) {
	if w == nil {
		return
	}

	mu.Lock()
	defer mu.Unlock()
	logger.SetOutput(w)
}

func WithField(key string, value any) *logrus.Entry {
	return logger.WithField(key, value)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return logger.WithFields(fields)
}

func WithError(err error) *logrus.Entry {
	return logger.WithError(err)
}

func Debug(args ...any) { logger.Debug(args...) }
func Info(args ...any)  { logger.Info(args...) }
func Warn(args ...any)  { logger.Warn(args...) }
func Error(args ...any) { logger.Error(args...) }

func Debugf(format string, args ...any) { logger.Debugf(format, args...) }
func Infof(format string, args ...any)  { logger.Infof(format, args...) }
func Warnf(format string, args ...any)  { logger.Warnf(format, args...) }
func Errorf(format string, args ...any) { logger.Errorf(format, args...) }
