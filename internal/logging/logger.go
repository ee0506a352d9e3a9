package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// New 创建写往 stderr 的文本日志，stdout 留给 JSON/YAML 等命令输出。
// 统一把 "error" 键改写为 "err"。
func New(level slog.Level) *slog.Logger {
	return NewWriter(os.Stderr, level)
}

// NewWriter 与 New 相同，但写入给定的 io.Writer。
func NewWriter(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == "error" {
				a.Key = "err"
			}
			return a
		},
	}))
}

// NewNop returns a no-op logger.
func NewNop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel 解析 debug/info/warn/error，空串视为 info。
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	s = strings.TrimSpace(s)
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("未知日志级别 %q: %w", s, err)
	}
	return level, nil
}
