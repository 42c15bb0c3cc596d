package telemetry

import (
	"go.uber.org/zap"
)

// Reporter forwards failures to the error-telemetry collaborator with
// enough serialized context for a postmortem. Nothing here is shown to
// the user.
type Reporter interface {
	ReportError(scope string, err error, context map[string]interface{})
}

// Notifier surfaces user-facing messages (the toast collaborator).
type Notifier interface {
	NotifyError(msg string)
	NotifyInfo(msg string)
}

type zapReporter struct {
	logger *zap.Logger
}

// NewReporter builds a zap-backed reporter. The embedding wallet swaps in
// its own collector in production.
func NewReporter(logger *zap.Logger) Reporter {
	return &zapReporter{logger: logger}
}

func (r *zapReporter) ReportError(scope string, err error, context map[string]interface{}) {
	fields := make([]zap.Field, 0, len(context)+2)
	fields = append(fields, zap.String("scope", scope), zap.Error(err))
	for k, v := range context {
		fields = append(fields, zap.Any(k, v))
	}
	r.logger.Error("telemetry", fields...)
}

type logNotifier struct {
	logger *zap.Logger
}

// NewNotifier builds a log-backed notifier for headless operation.
func NewNotifier(logger *zap.Logger) Notifier {
	return &logNotifier{logger: logger}
}

func (n *logNotifier) NotifyError(msg string) {
	n.logger.Warn("user notification", zap.String("level", "error"), zap.String("message", msg))
}

func (n *logNotifier) NotifyInfo(msg string) {
	n.logger.Info("user notification", zap.String("level", "info"), zap.String("message", msg))
}
