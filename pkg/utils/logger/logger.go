// Package logger 封装zap，提供包级别的日志接口
package logger

import (
	"io"
	"os"
	"sync"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Level 日志级别别名，兼容zapcore.Level
type Level = zapcore.Level

const (
	DebugLevel = zapcore.DebugLevel
	InfoLevel  = zapcore.InfoLevel
	WarnLevel  = zapcore.WarnLevel
	ErrorLevel = zapcore.ErrorLevel
)

var (
	mu         sync.RWMutex
	defaultLog *zap.SugaredLogger
	callCount  = atomic.NewInt64(0)
	level      = zap.NewAtomicLevelAt(InfoLevel)
)

func init() {
	defaultLog = buildConsole(level)
}

func buildConsole(lvl zap.AtomicLevel) *zap.SugaredLogger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.AddSync(os.Stdout), lvl)
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
}

// New 使用给定的写入器和级别构造一个新的SugaredLogger
// out通常来自NewProductionRotateByTime或NewProductionRotateBySize
func New(out io.Writer, lvl Level) *zap.SugaredLogger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(out), zap.NewAtomicLevelAt(lvl))
	return zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar()
}

// NewProductionRotateByTime 基于file-rotatelogs按天切割的写入器
func NewProductionRotateByTime(path string) io.Writer {
	w, err := rotatelogs.New(
		path+".%Y%m%d",
		rotatelogs.WithLinkName(path),
		rotatelogs.WithMaxAge(30*24*time.Hour),
		rotatelogs.WithRotationTime(24*time.Hour),
	)
	if err != nil {
		panic(err)
	}
	return w
}

// NewProductionRotateBySize 基于lumberjack按大小切割的写入器
func NewProductionRotateBySize(path string, maxSizeMB, maxBackups, maxAgeDays int) io.Writer {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
}

// ReplaceDefault 替换全局默认logger
func ReplaceDefault(l *zap.SugaredLogger) {
	mu.Lock()
	defer mu.Unlock()
	defaultLog = l
}

// SetLevel 设置全局日志级别（仅影响init()构造的默认console logger）
func SetLevel(lvl Level) {
	level.SetLevel(lvl)
}

func get() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLog
}

func Debugf(template string, args ...interface{}) { callCount.Inc(); get().Debugf(template, args...) }
func Infof(template string, args ...interface{})  { callCount.Inc(); get().Infof(template, args...) }
func Warnf(template string, args ...interface{})  { callCount.Inc(); get().Warnf(template, args...) }
func Errorf(template string, args ...interface{}) { callCount.Inc(); get().Errorf(template, args...) }

func Debug(args ...interface{}) { callCount.Inc(); get().Debug(args...) }
func Info(args ...interface{})  { callCount.Inc(); get().Info(args...) }
func Warn(args ...interface{})  { callCount.Inc(); get().Warn(args...) }
func Error(args ...interface{}) { callCount.Inc(); get().Error(args...) }

// CallCount 返回自进程启动以来日志函数被调用的次数（包括被级别过滤掉的调用），
// 供指标/自检使用
func CallCount() int64 {
	return callCount.Load()
}

// Sync 刷新底层写入器缓冲
func Sync() error {
	return get().Sync()
}
