package log

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	errSubLoggerAlreadyRegistered = errors.New("sub logger already registered")
	errUnhandledOutputWriter      = errors.New("unhandled output writer")
	errEmptyLoggerName            = errors.New("cannot have empty logger name")
)

// GenDefaultSettings return struct with known sane/working logger settings
func GenDefaultSettings() Config {
	return Config{
		Enabled: true,
		SubLoggerConfig: SubLoggerConfig{
			Level:  defaultLevels,
			Output: "console",
		},
		Encoding:        "console",
		TimestampFormat: timestampFormat,
	}
}

func newEncoder(c *Config) zapcore.Encoder {
	format := c.TimestampFormat
	if format == "" {
		format = timestampFormat
	}
	encCfg := zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		NameKey:          "logger",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeTime:       zapcore.TimeEncoderOfLayout(format),
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: " | ",
	}
	if strings.EqualFold(c.Encoding, "json") {
		encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewJSONEncoder(encCfg)
	}
	return zapcore.NewConsoleEncoder(encCfg)
}

func getWriters(output string) (zapcore.WriteSyncer, error) {
	if output == "" {
		output = "console"
	}
	outputs := strings.Split(output, "|")
	syncers := make([]zapcore.WriteSyncer, 0, len(outputs))
	for x := range outputs {
		switch strings.ToLower(outputs[x]) {
		case "stdout", "console":
			syncers = append(syncers, zapcore.Lock(os.Stdout))
		case "stderr":
			syncers = append(syncers, zapcore.Lock(os.Stderr))
		case "discard", "none":
			syncers = append(syncers, zapcore.AddSync(io.Discard))
		default:
			return nil, fmt.Errorf("%w: %s", errUnhandledOutputWriter, outputs[x])
		}
	}
	return zapcore.NewMultiWriteSyncer(syncers...), nil
}

func buildLogger(name string, ws zapcore.WriteSyncer) *zap.Logger {
	return zap.New(zapcore.NewCore(newEncoder(&globalConfig), ws, zapcore.DebugLevel)).Named(name)
}

// SetupGlobalLogger applies the config to every registered sub logger.
// Sub logger specific settings override the global level and output.
func SetupGlobalLogger(c *Config) error {
	if c == nil {
		d := GenDefaultSettings()
		c = &d
	}
	mu.Lock()
	defer mu.Unlock()
	globalConfig = *c
	ws, err := getWriters(c.Output)
	if err != nil {
		return err
	}
	if !c.Enabled {
		ws = zapcore.AddSync(io.Discard)
	}
	core = zapcore.NewCore(newEncoder(&globalConfig), ws, zapcore.DebugLevel)
	base = zap.New(core)
	for _, sl := range subLoggers {
		sl.levels = splitLevel(c.Level)
		sl.output = c.Output
		sl.zl = base.Named(sl.name)
	}
	for x := range c.SubLoggers {
		sl, ok := subLoggers[strings.ToUpper(c.SubLoggers[x].Name)]
		if !ok {
			continue
		}
		if c.SubLoggers[x].Level != "" {
			sl.levels = splitLevel(c.SubLoggers[x].Level)
		}
		if c.SubLoggers[x].Output != "" && c.Enabled {
			subWS, err := getWriters(c.SubLoggers[x].Output)
			if err != nil {
				return err
			}
			sl.output = c.SubLoggers[x].Output
			sl.zl = buildLogger(sl.name, subWS)
		}
	}
	return nil
}

// SetOutput redirects a sub logger to the supplied writer, mostly used to
// capture the output of a single run
func SetOutput(sl *SubLogger, w io.Writer) {
	if sl == nil || w == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	sl.output = "custom"
	sl.zl = buildLogger(sl.name, zapcore.AddSync(w))
}

// Sync flushes any buffered log entries
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	for _, sl := range subLoggers {
		_ = sl.zl.Sync()
	}
}

func splitLevel(level string) (l Levels) {
	enabledLevels := strings.Split(level, "|")
	for x := range enabledLevels {
		switch strings.ToUpper(enabledLevels[x]) {
		case "DEBUG":
			l.Debug = true
		case "INFO":
			l.Info = true
		case "WARN":
			l.Warn = true
		case "ERROR":
			l.Error = true
		}
	}
	return
}

// NewSubLogger allows for a new sub logger to be registered.
func NewSubLogger(name string) (*SubLogger, error) {
	if name == "" {
		return nil, errEmptyLoggerName
	}
	name = strings.ToUpper(name)
	mu.Lock()
	defer mu.Unlock()
	if _, ok := subLoggers[name]; ok {
		return nil, fmt.Errorf("'%v' %w", name, errSubLoggerAlreadyRegistered)
	}
	return registerNewSubLogger(name), nil
}

// MustNewSubLogger registers a sub logger and panics on failure. It is
// intended for package level var blocks
func MustNewSubLogger(name string) *SubLogger {
	sl, err := NewSubLogger(name)
	if err != nil {
		panic(err)
	}
	return sl
}

func registerNewSubLogger(name string) *SubLogger {
	if base == nil {
		ws, _ := getWriters(globalConfig.Output)
		core = zapcore.NewCore(newEncoder(&globalConfig), ws, zapcore.DebugLevel)
		base = zap.New(core)
	}
	temp := &SubLogger{
		name:   name,
		levels: splitLevel(globalConfig.Level),
		output: globalConfig.Output,
		zl:     base.Named(name),
	}
	subLoggers[name] = temp
	return temp
}

// register all loggers at package init()
func init() {
	ConfigMgr = registerNewSubLogger("CONFIG")
	DataMgr = registerNewSubLogger("DATA")
	ScriptMgr = registerNewSubLogger("SCRIPT")
	TaskMgr = registerNewSubLogger("TASKS")
	Server = registerNewSubLogger("SERVER")
}
