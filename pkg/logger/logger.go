package logger

import (
	"Portfolio_Pipeline/config"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// New 根据配置创建一个 slog 日志记录器，并将其设置为默认 logger。
// 配置了日志文件时，日志同时写入标准输出和该文件；返回的 io.Closer 用于关闭文件。
func New(cfg config.LoggerConfig) (*slog.Logger, io.Closer, error) {
	logLevel := new(slog.LevelVar)
	if err := setLogLevel(cfg.Level, logLevel); err != nil {
		return nil, nil, err
	}

	handlerOpts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var out io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}
	if cfg.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, nil, fmt.Errorf("无法创建日志目录: %w", err)
		}
		file, err := os.OpenFile(cfg.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
		if err != nil {
			return nil, nil, fmt.Errorf("无法打开日志文件: %w", err)
		}
		out = io.MultiWriter(os.Stdout, file)
		closer = file
	}

	var logHandler slog.Handler
	if cfg.Format == "json" {
		logHandler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		logHandler = slog.NewTextHandler(out, handlerOpts)
	}

	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	return logger, closer, nil
}

// setLogLevel 将字符串形式的日志级别转换为 slog.Level 类型
func setLogLevel(levelStr string, levelVar *slog.LevelVar) error {
	switch levelStr {
	case "debug":
		levelVar.Set(slog.LevelDebug)
	case "info", "":
		levelVar.Set(slog.LevelInfo)
	case "warn":
		levelVar.Set(slog.LevelWarn)
	case "error":
		levelVar.Set(slog.LevelError)
	default:
		return errors.New("无效的日志级别: " + levelStr)
	}
	return nil
}

// Discard 返回一个丢弃所有日志的 logger，主要用于测试，避免不必要的日志输出。
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
