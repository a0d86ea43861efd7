package logging

import (
	"time"

	"go.uber.org/zap"
)

type Field = zap.Field

func Any(key string, value any) Field { return zap.Any(key, value) }

func Bool(key string, value bool) Field { return zap.Bool(key, value) }

func Duration(key string, value time.Duration) Field { return zap.Duration(key, value) }

func Float64(key string, value float64) Field { return zap.Float64(key, value) }

func Int(key string, value int) Field { return zap.Int(key, value) }

func Int64(key string, value int64) Field { return zap.Int64(key, value) }

func Int64s(key string, values []int64) Field { return zap.Int64s(key, values) }

func String(key string, value string) Field { return zap.String(key, value) }

func Strings(key string, values []string) Field { return zap.Strings(key, values) }

func Alert(value string) Field { return zap.String(FieldAlert, value) }

func Error(err error) Field {
	if err == nil {
		return zap.String("error", "<nil>")
	}
	return zap.Error(err)
}

func NewNop() *zap.Logger {
	return zap.NewNop()
}

// NewComponentLogger creates a logger with a standardized component field.
// If logger is nil, a no-op logger is used as the base.
func NewComponentLogger(logger *zap.Logger, component string) *zap.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

// HasFieldKey returns true if any field in fields has the given key.
func HasFieldKey(fields []Field, key string) bool {
	for _, f := range fields {
		if f.Key == key {
			return true
		}
	}
	return false
}

// WarnWithContext logs a warning with enforced event_type, error_hint, and impact fields.
// If any of these fields are missing, defaults are injected so every WARN line
// carries cause, impact and next step.
func WarnWithContext(logger *zap.Logger, msg, eventType string, fields ...Field) {
	if logger == nil {
		return
	}
	if !HasFieldKey(fields, FieldEventType) {
		fields = append(fields, String(FieldEventType, eventType))
	}
	if !HasFieldKey(fields, FieldErrorHint) {
		fields = append(fields, String(FieldErrorHint, "check logs for details"))
	}
	if !HasFieldKey(fields, FieldImpact) {
		fields = append(fields, String(FieldImpact, "operation completed with warnings"))
	}
	logger.Warn(msg, fields...)
}

// ErrorWithContext logs an error with enforced event_type and error_hint fields.
func ErrorWithContext(logger *zap.Logger, msg, eventType string, fields ...Field) {
	if logger == nil {
		return
	}
	if !HasFieldKey(fields, FieldEventType) {
		fields = append(fields, String(FieldEventType, eventType))
	}
	if !HasFieldKey(fields, FieldErrorHint) {
		fields = append(fields, String(FieldErrorHint, "check logs for details"))
	}
	logger.Error(msg, fields...)
}
