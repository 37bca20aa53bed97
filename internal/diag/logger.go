package diag

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions: 日志落盘配置。Dir 为空时只写 stderr。
type LogOptions struct {
	Level      string `yaml:"level"`
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
	Stderr     bool   `yaml:"stderr"` // 同时写 stderr
}

// LogFileName 为轮转文件的当前文件名。
const LogFileName = "pdftrans.log"

func (o *LogOptions) defaults() {
	if o.MaxSizeMB <= 0 {
		o.MaxSizeMB = 100
	}
	if o.MaxBackups <= 0 {
		o.MaxBackups = 3
	}
	if o.MaxAgeDays <= 0 {
		o.MaxAgeDays = 28
	}
}

// Logger 为 zap 之上的阶段事件日志：start/finish/error 单行 JSON。
type Logger struct {
	z      *zap.Logger
	closer io.Closer
}

// ParseLevel 解析级别字符串；未知值回退 info。
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func encoderConfig() zapcore.EncoderConfig {
	ec := zap.NewProductionEncoderConfig()
	ec.TimeKey = "ts"
	ec.MessageKey = "msg"
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	return ec
}

// NewLogger 按配置构造：Dir 非空时写入 lumberjack 轮转文件。
func NewLogger(corrID string, o *LogOptions) (*Logger, error) {
	opts := LogOptions{}
	if o != nil {
		opts = *o
	}
	opts.defaults()
	var sinks []zapcore.WriteSyncer
	var closer io.Closer
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, err
		}
		lj := &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, LogFileName),
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
		sinks = append(sinks, zapcore.AddSync(lj))
		closer = lj
	}
	if opts.Stderr || len(sinks) == 0 {
		sinks = append(sinks, zapcore.Lock(os.Stderr))
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.NewMultiWriteSyncer(sinks...), ParseLevel(opts.Level))
	l := newLogger(core, corrID)
	l.closer = closer
	return l, nil
}

// NewLoggerTo 写入任意 writer（测试或嵌入）。
func NewLoggerTo(corrID, level string, w io.Writer) *Logger {
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), zapcore.AddSync(w), ParseLevel(level))
	return newLogger(core, corrID)
}

// Nop 返回丢弃一切的日志器。
func Nop() *Logger { return &Logger{z: zap.NewNop()} }

func newLogger(core zapcore.Core, corrID string) *Logger {
	z := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))
	if corrID != "" {
		z = z.With(zap.String("corr_id", corrID))
	}
	return &Logger{z: z}
}

// Zap 暴露底层 zap.Logger。
func (l *Logger) Zap() *zap.Logger {
	if l == nil || l.z == nil {
		return zap.NewNop()
	}
	return l.z
}

// Close 刷新并关闭文件。
func (l *Logger) Close() error {
	if l == nil || l.z == nil {
		return nil
	}
	_ = l.z.Sync()
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

func unitFields(comp, stage, unit string, kv map[string]string) []zap.Field {
	fs := []zap.Field{zap.String("comp", comp), zap.String("stage", stage)}
	if unit != "" {
		fs = append(fs, zap.String("unit", unit))
	}
	for k, v := range kv {
		fs = append(fs, zap.String(k, v))
	}
	return fs
}

// Start 记录 start 事件；返回计时器用于 Finish。
func (l *Logger) Start(comp, msg string) *Timer { return l.StartWith(comp, msg, "", nil) }

// StartWith 记录带处理单元（如 page_3_0）与键值的 start。
func (l *Logger) StartWith(comp, msg, unit string, kv map[string]string) *Timer {
	l.Zap().Info(msg, unitFields(comp, "start", unit, kv)...)
	return &Timer{l: l, comp: comp, unit: unit, t0: time.Now()}
}

// Debug 调试事件（仅 level=debug 输出）。
func (l *Logger) Debug(comp, msg, unit string, kv map[string]string) {
	l.Zap().Debug(msg, unitFields(comp, "debug", unit, kv)...)
}

// Warn 可恢复的问题，例如跳过的单元。
func (l *Logger) Warn(comp, code, msg, unit string) {
	l.Zap().Warn(msg, append(unitFields(comp, "warn", unit, nil), zap.String("code", code))...)
}

// Error 记录 error 事件。durSince 非空时附带耗时。
func (l *Logger) Error(comp, code, msg string, durSince *time.Time) {
	l.ErrorWith(comp, code, msg, durSince, "", nil)
}

// ErrorWith 附带单元与键值（例如 HTTP 状态码、上游错误片段）。
func (l *Logger) ErrorWith(comp, code, msg string, durSince *time.Time, unit string, kv map[string]string) {
	fs := append(unitFields(comp, "error", unit, kv), zap.String("code", code))
	if durSince != nil {
		fs = append(fs, zap.Int64("dur_ms", time.Since(*durSince).Milliseconds()))
	}
	l.Zap().Error(msg, fs...)
}

// Timer 用于 start→finish 计时。
type Timer struct {
	l    *Logger
	comp string
	unit string
	t0   time.Time
}

// Begin 返回起点。
func (t *Timer) Begin() time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.t0
}

// Finish 记录 finish；count 为本阶段处理数量。
func (t *Timer) Finish(msg string, count int64) {
	if t == nil || t.l == nil {
		return
	}
	fs := unitFields(t.comp, "finish", t.unit, nil)
	fs = append(fs, zap.Int64("dur_ms", time.Since(t.t0).Milliseconds()), zap.Int64("count", count))
	t.l.Zap().Info(msg, fs...)
}
