package logger

import (
	"github.com/sirupsen/logrus"
)

// Logger 核心包需要的分级日志接口
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Criticalf(format string, args ...interface{})
}

type entryLogger struct {
	entry *logrus.Entry
}

// FromEntry 包装 logrus entry；critical 记为 error 级别并带 severity 字段，不退出进程
func FromEntry(entry *logrus.Entry) Logger {
	if entry == nil {
		entry = logrus.NewEntry(logrus.StandardLogger())
	}
	return &entryLogger{entry: entry}
}

// Named 基于全局 logrus 创建带名字的 logger
func Named(name string) Logger {
	return FromEntry(logrus.WithField("logger", name))
}

func (l *entryLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *entryLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *entryLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *entryLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *entryLogger) Criticalf(format string, args ...interface{}) {
	l.entry.WithField("severity", "critical").Errorf(format, args...)
}

// Nop 丢弃所有日志
var Nop Logger = nopLogger{}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{})    {}
func (nopLogger) Infof(string, ...interface{})     {}
func (nopLogger) Warnf(string, ...interface{})     {}
func (nopLogger) Errorf(string, ...interface{})    {}
func (nopLogger) Criticalf(string, ...interface{}) {}
