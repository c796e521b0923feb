package logx

import (
	"io"
	"log/slog"
)

type Config struct {
	AppName string     // 应用名，用于文件名
	Level   slog.Level // 最小日志级别

	LogDir string // 日志目录，为空则不写文件

	ConsoleEnabled bool // 是否输出到控制台
	ConsoleColored bool // 控制台是否彩色输出

	// 文件滚动（交给 lumberjack）
	MaxFileSizeMB int  // 单文件上限，<=0 使用默认 100
	MaxBackups    int  // 最多保留多少个历史文件
	MaxAgeDays    int  // 历史文件最长保留天数
	Compress      bool // 历史文件是否 gzip

	// 额外输出，测试里用来抓日志
	Writer io.Writer

	// 异步队列大小（<=0 使用默认 10000）
	QueueSize int
}

// ParseLevel 把 debug/info/warn/error 转成 slog.Level，未知值返回 info
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
