package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

type handler struct {
	cfg Config

	mu      sync.Mutex
	file    *lumberjack.Logger
	sinks   []io.Writer
	console bool

	entries   chan slog.Record
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

func newHandler(cfg Config) (*handler, error) {
	if cfg.AppName == "" {
		cfg.AppName = "app"
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 10000
	}
	if cfg.MaxFileSizeMB <= 0 {
		cfg.MaxFileSizeMB = 100
	}

	h := &handler{
		cfg:     cfg,
		entries: make(chan slog.Record, cfg.QueueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, err
		}
		h.file = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, cfg.AppName+".log"),
			MaxSize:    cfg.MaxFileSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
			LocalTime:  true,
		}
		h.sinks = append(h.sinks, h.file)
	}
	if cfg.Writer != nil {
		h.sinks = append(h.sinks, cfg.Writer)
	}

	go h.writeLoop()
	return h, nil
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.Level
}

// Handle 只负责把 Record 推入异步队列，队列满则丢（不阻塞业务）
func (h *handler) Handle(_ context.Context, r slog.Record) error {
	select {
	case <-h.done:
		return nil
	default:
	}
	select {
	case h.entries <- r.Clone():
	default:
		log.Println("log queue full, drop log")
	}
	return nil
}

// 所有 Attr 都由上层 encodeLog 提供
func (h *handler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *handler) WithGroup(string) slog.Handler { return h }

func (h *handler) writeLoop() {
	defer close(h.stopped)
	for {
		select {
		case rec := <-h.entries:
			h.write(rec)
		case <-h.done:
			// 退出前把队列里剩余的写完
			for {
				select {
				case rec := <-h.entries:
					h.write(rec)
				default:
					return
				}
			}
		}
	}
}

func (h *handler) write(rec slog.Record) {
	if err := h.writeRecord(rec); err != nil {
		log.Println("write log failed:", err)
	}
}

// writeRecord 把 Record 编码成一行 JSON，写入所有输出
func (h *handler) writeRecord(r slog.Record) error {
	data := make(map[string]any, 16)
	data["ts"] = r.Time.Format(time.RFC3339Nano)
	data["level"] = r.Level.String()
	r.Attrs(func(a slog.Attr) bool {
		data[a.Key] = a.Value.Resolve().Any()
		return true
	})

	lineBytes, err := json.Marshal(data)
	if err != nil {
		return err
	}
	line := append(lineBytes, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, w := range h.sinks {
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	if h.cfg.ConsoleEnabled {
		if h.cfg.ConsoleColored {
			fmt.Print(colorLine(r.Level, string(line)))
		} else {
			fmt.Print(string(line))
		}
	}
	return nil
}

// close 停止接收新日志，写完队列后关闭文件
func (h *handler) close() error {
	var err error
	h.closeOnce.Do(func() {
		close(h.done)
		<-h.stopped
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.file != nil {
			err = h.file.Close()
		}
	})
	return err
}

func colorLine(level slog.Level, line string) string {
	switch level {
	case slog.LevelDebug:
		return "\033[36m[DEBUG]\033[0m " + line
	case slog.LevelInfo:
		return "\033[32m[INFO ]\033[0m " + line
	case slog.LevelWarn:
		return "\033[33m[WARN ]\033[0m " + line
	case slog.LevelError:
		return "\033[31m[ERROR]\033[0m " + line
	default:
		return "[" + level.String() + "] " + line
	}
}
