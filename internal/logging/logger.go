package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// ApplicationLogger is the printf-style logger handed to components that
// should not depend on zap directly.
type ApplicationLogger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// zapAdapter wraps zap.Logger to implement ApplicationLogger.
type zapAdapter struct {
	logger *zap.Logger
}

func NewApplicationLogger(logger *zap.Logger) ApplicationLogger {
	return &zapAdapter{logger: logger}
}

func (a *zapAdapter) Debug(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	a.logger.Debug(msg)
}

func (a *zapAdapter) Info(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	a.logger.Info(msg)
}

func (a *zapAdapter) Warn(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	a.logger.Warn(msg)
}

func (a *zapAdapter) Error(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}
	a.logger.Error(msg)
}

// noOpLogger discards everything. Used in tests.
type noOpLogger struct{}

func NewNoOpLogger() ApplicationLogger { return noOpLogger{} }

func (noOpLogger) Debug(string, ...interface{}) {}
func (noOpLogger) Info(string, ...interface{})  {}
func (noOpLogger) Warn(string, ...interface{})  {}
func (noOpLogger) Error(string, ...interface{}) {}
