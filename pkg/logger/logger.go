package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config 日志配置
type Config struct {
	Level      string // 日志级别：debug, info, warn, error
	File       string // 日志文件路径，为空时仅输出到标准输出
	MaxSizeMB  int    // 单个日志文件最大尺寸(MB)
	MaxBackups int    // 保留的旧日志文件数量
	MaxAgeDays int    // 旧日志文件保留天数
}

var (
	std  *logrus.Logger
	once sync.Once
)

// Default 返回进程级日志记录器
func Default() *logrus.Logger {
	once.Do(func() {
		std = New(Config{})
	})
	return std
}

// Setup 根据配置重新初始化进程级日志记录器
func Setup(cfg Config) *logrus.Logger {
	l := Default()
	configure(l, cfg)
	return l
}

// New 创建一个新的日志记录器
func New(cfg Config) *logrus.Logger {
	l := logrus.New()
	configure(l, cfg)
	return l
}

func configure(l *logrus.Logger, cfg Config) {
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
	})

	var out io.Writer = os.Stdout
	if cfg.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 50),
			MaxBackups: orDefault(cfg.MaxBackups, 5),
			MaxAge:     orDefault(cfg.MaxAgeDays, 14),
			Compress:   true,
		})
	}
	l.SetOutput(out)
	l.SetLevel(parseLevel(cfg.Level))
}

// parseLevel 解析日志级别，DEBUG=true 环境变量优先
func parseLevel(level string) logrus.Level {
	if os.Getenv("DEBUG") == "true" {
		return logrus.DebugLevel
	}
	if level == "" {
		return logrus.InfoLevel
	}
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Discard 返回丢弃所有输出的日志记录器，测试中使用
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
