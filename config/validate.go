package config

import (
	"strings"

	"github.com/imattdu/orbitrace/errorx"
	"github.com/imattdu/orbitrace/logx"
	"github.com/imattdu/orbitrace/tracex"
)

// Validate 启动前检查，任何一项不合法都直接失败
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return configError(nil, "server addr is empty", "field", "server.addr")
	}
	if _, err := c.Trace.NewSampler(); err != nil {
		return err
	}
	if _, err := c.Trace.TextFormat(); err != nil {
		return err
	}
	if c.Trace.BatchSize <= 0 || c.Trace.QueueSize <= 0 {
		return configError(nil, "batch size and queue size must be positive", "field", "trace.batch_size")
	}
	if c.Trace.ExportInterval <= 0 {
		return configError(nil, "export interval must be positive", "field", "trace.export_interval")
	}

	switch c.Exporter.Kind {
	case ExporterLog, ExporterNone:
	case ExporterOTLP, ExporterHTTP:
		if c.Exporter.Endpoint == "" {
			return configError(nil, "exporter endpoint is empty", "kind", c.Exporter.Kind)
		}
	default:
		return configError(nil, "unknown exporter kind", "kind", c.Exporter.Kind)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return configError(nil, "unknown log level", "level", c.Log.Level)
	}
	return nil
}

// NewSampler 根据 sampler / ratio 构造采样器
func (t TraceConfig) NewSampler() (tracex.Sampler, error) {
	s, err := tracex.SamplerByName(t.Sampler, t.Ratio)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.ErrInvalidConfig, errorx.WithComponent(errorx.ComponentConfig))
	}
	return s, nil
}

// TextFormat 根据 format 选择传播格式
func (t TraceConfig) TextFormat() (tracex.TextFormat, error) {
	f, err := tracex.FormatByName(t.Format)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.ErrInvalidConfig, errorx.WithComponent(errorx.ComponentConfig))
	}
	return f, nil
}

// LoggerConfig 转成 logx.Config
func (l LogConfig) LoggerConfig(appName string) logx.Config {
	return logx.Config{
		AppName:        appName,
		Level:          logx.ParseLevel(l.Level),
		LogDir:         l.Dir,
		ConsoleEnabled: l.Console,
		ConsoleColored: l.Colored,
		MaxFileSizeMB:  l.MaxSizeMB,
		MaxBackups:     l.MaxBackups,
		MaxAgeDays:     l.MaxAgeDays,
		Compress:       l.Compress,
	}
}
