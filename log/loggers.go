package log

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Info takes a pointer subLogger struct and string and writes it at info level
func Info(sl *SubLogger, data string) {
	stage(sl, zapcore.InfoLevel, func() string { return data }, nil)
}

// Infoln takes a pointer subLogger struct and interface and writes it at info level
func Infoln(sl *SubLogger, v ...interface{}) {
	stage(sl, zapcore.InfoLevel, func() string { return fmt.Sprint(v...) }, nil)
}

// Infof takes a pointer subLogger struct, string and interface formats and writes it at info level
func Infof(sl *SubLogger, data string, v ...interface{}) {
	stage(sl, zapcore.InfoLevel, func() string { return fmt.Sprintf(data, v...) }, nil)
}

// Debug takes a pointer subLogger struct and string and writes it at debug level
func Debug(sl *SubLogger, data string) {
	stage(sl, zapcore.DebugLevel, func() string { return data }, nil)
}

// Debugln takes a pointer subLogger struct and interface and writes it at debug level
func Debugln(sl *SubLogger, v ...interface{}) {
	stage(sl, zapcore.DebugLevel, func() string { return fmt.Sprint(v...) }, nil)
}

// Debugf takes a pointer subLogger struct, string and interface formats and writes it at debug level
func Debugf(sl *SubLogger, data string, v ...interface{}) {
	stage(sl, zapcore.DebugLevel, func() string { return fmt.Sprintf(data, v...) }, nil)
}

// Warn takes a pointer subLogger struct and string and writes it at warn level
func Warn(sl *SubLogger, data string) {
	stage(sl, zapcore.WarnLevel, func() string { return data }, nil)
}

// Warnln takes a pointer subLogger struct and interface and writes it at warn level
func Warnln(sl *SubLogger, v ...interface{}) {
	stage(sl, zapcore.WarnLevel, func() string { return fmt.Sprint(v...) }, nil)
}

// Warnf takes a pointer subLogger struct, string and interface formats and writes it at warn level
func Warnf(sl *SubLogger, data string, v ...interface{}) {
	stage(sl, zapcore.WarnLevel, func() string { return fmt.Sprintf(data, v...) }, nil)
}

// Error takes a pointer subLogger struct and string and writes it at error level
func Error(sl *SubLogger, data string) {
	stage(sl, zapcore.ErrorLevel, func() string { return data }, nil)
}

// Errorln takes a pointer subLogger struct and interface and writes it at error level
func Errorln(sl *SubLogger, v ...interface{}) {
	stage(sl, zapcore.ErrorLevel, func() string { return fmt.Sprint(v...) }, nil)
}

// Errorf takes a pointer subLogger struct, string and interface formats and writes it at error level
func Errorf(sl *SubLogger, data string, v ...interface{}) {
	stage(sl, zapcore.ErrorLevel, func() string { return fmt.Sprintf(data, v...) }, nil)
}

// FieldLogger writes structured entries for a sub logger
type FieldLogger struct {
	sl     *SubLogger
	fields []zap.Field
}

// WithFields allows the user to add fields to a structured log output
func WithFields(sl *SubLogger, fields map[string]interface{}) *FieldLogger {
	fl := &FieldLogger{sl: sl, fields: make([]zap.Field, 0, len(fields))}
	for k, v := range fields {
		fl.fields = append(fl.fields, zap.Any(k, v))
	}
	return fl
}

// Infof writes a formatted info entry with the attached fields
func (f *FieldLogger) Infof(data string, v ...interface{}) {
	stage(f.sl, zapcore.InfoLevel, func() string { return fmt.Sprintf(data, v...) }, f.fields)
}

// Debugf writes a formatted debug entry with the attached fields
func (f *FieldLogger) Debugf(data string, v ...interface{}) {
	stage(f.sl, zapcore.DebugLevel, func() string { return fmt.Sprintf(data, v...) }, f.fields)
}

// Warnf writes a formatted warn entry with the attached fields
func (f *FieldLogger) Warnf(data string, v ...interface{}) {
	stage(f.sl, zapcore.WarnLevel, func() string { return fmt.Sprintf(data, v...) }, f.fields)
}

// Errorf writes a formatted error entry with the attached fields
func (f *FieldLogger) Errorf(data string, v ...interface{}) {
	stage(f.sl, zapcore.ErrorLevel, func() string { return fmt.Sprintf(data, v...) }, f.fields)
}

func (sl *SubLogger) enabled(level zapcore.Level) bool {
	switch level {
	case zapcore.InfoLevel:
		return sl.levels.Info
	case zapcore.DebugLevel:
		return sl.levels.Debug
	case zapcore.WarnLevel:
		return sl.levels.Warn
	case zapcore.ErrorLevel:
		return sl.levels.Error
	}
	return false
}

// stage defers message formatting until the level is known to be enabled
func stage(sl *SubLogger, level zapcore.Level, msg func() string, fields []zap.Field) {
	if sl == nil {
		return
	}
	mu.RLock()
	defer mu.RUnlock()
	if !sl.enabled(level) {
		return
	}
	if ce := sl.zl.Check(level, msg()); ce != nil {
		ce.Write(fields...)
	}
}

// Name returns the sub logger name
func (sl *SubLogger) Name() string {
	if sl == nil {
		return ""
	}
	return sl.name
}

// GetLevels returns the enabled levels of a sub logger
func (sl *SubLogger) GetLevels() Levels {
	mu.RLock()
	defer mu.RUnlock()
	return sl.levels
}

// SetLevels overrides the enabled levels of a sub logger
func (sl *SubLogger) SetLevels(level string) {
	mu.Lock()
	defer mu.Unlock()
	sl.levels = splitLevel(level)
}
