// Package config 加载服务配置：默认值 -> 配置文件(yaml/json) -> ORBIT_* 环境变量
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/imattdu/orbitrace/errorx"
)

// EnvPrefix 环境变量前缀，例如 ORBIT_SERVER_ADDR
const EnvPrefix = "ORBIT"

// 导出器类型
const (
	ExporterLog  = "log"
	ExporterOTLP = "otlp"
	ExporterHTTP = "http"
	ExporterNone = "none"
)

type Config struct {
	Server   ServerConfig   `koanf:"server" split_words:"true"`
	Trace    TraceConfig    `koanf:"trace" split_words:"true"`
	Exporter ExporterConfig `koanf:"exporter" split_words:"true"`
	Log      LogConfig      `koanf:"log" split_words:"true"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr" split_words:"true"`
	ReadTimeout     time.Duration `koanf:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `koanf:"write_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" split_words:"true"`
}

type TraceConfig struct {
	ServiceName    string        `koanf:"service_name" split_words:"true"`
	Sampler        string        `koanf:"sampler" split_words:"true"` // always / never / ratio
	Ratio          float64       `koanf:"ratio" split_words:"true"`
	Format         string        `koanf:"format" split_words:"true"` // w3c / header / both
	LogRequestBody bool          `koanf:"log_request_body" split_words:"true"`
	ExcludePaths   []string      `koanf:"exclude_paths" split_words:"true"`
	BatchSize      int           `koanf:"batch_size" split_words:"true"`
	QueueSize      int           `koanf:"queue_size" split_words:"true"`
	ExportInterval time.Duration `koanf:"export_interval" split_words:"true"`
}

type ExporterConfig struct {
	Kind        string        `koanf:"kind" split_words:"true"`     // log / otlp / http / none
	Endpoint    string        `koanf:"endpoint" split_words:"true"` // otlp: host:port；http: 完整 URL
	URLPath     string        `koanf:"url_path" split_words:"true"`
	Insecure    bool          `koanf:"insecure" split_words:"true"`
	Timeout     time.Duration `koanf:"timeout" split_words:"true"`
	MaxAttempts int           `koanf:"max_attempts" split_words:"true"`
}

type LogConfig struct {
	Level      string `koanf:"level" split_words:"true"`
	Dir        string `koanf:"dir" split_words:"true"`
	Console    bool   `koanf:"console" split_words:"true"`
	Colored    bool   `koanf:"colored" split_words:"true"`
	MaxSizeMB  int    `koanf:"max_size_mb" split_words:"true"`
	MaxBackups int    `koanf:"max_backups" split_words:"true"`
	MaxAgeDays int    `koanf:"max_age_days" split_words:"true"`
	Compress   bool   `koanf:"compress" split_words:"true"`
}

// Default 所有字段的默认值
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 5 * time.Second,
		},
		Trace: TraceConfig{
			ServiceName:    "orbitrace",
			Sampler:        "always",
			Ratio:          1,
			Format:         "w3c",
			BatchSize:      512,
			QueueSize:      2048,
			ExportInterval: 5 * time.Second,
		},
		Exporter: ExporterConfig{
			Kind:        ExporterLog,
			Timeout:     10 * time.Second,
			MaxAttempts: 3,
		},
		Log: LogConfig{
			Level:      "info",
			Console:    true,
			MaxSizeMB:  100,
			MaxBackups: 7,
			MaxAgeDays: 7,
		},
	}
}

// Load path 为空时只用默认值和环境变量
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		format, err := detectFormat(path)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, configError(err, "read config file failed", "path", path)
		}
		if err := cfg.merge(data, format); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadBytes format 取 yaml / json，不读环境变量
func LoadBytes(data []byte, format string) (*Config, error) {
	cfg := Default()
	if err := cfg.merge(data, format); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// merge 文件里出现的键覆盖默认值
func (c *Config) merge(data []byte, format string) error {
	var parser koanf.Parser
	switch format {
	case "yaml":
		parser = yaml.Parser()
	case "json":
		parser = json.Parser()
	default:
		return configError(nil, "unsupported config format", "format", format)
	}
	if len(data) == 0 {
		return nil
	}

	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return configError(err, "parse config failed", "format", format)
	}
	if err := k.UnmarshalWithConf("", c, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return configError(err, "unmarshal config failed", "format", format)
	}
	return nil
}

// applyEnv 只覆盖设置了的环境变量
func (c *Config) applyEnv() error {
	if err := envconfig.Process(EnvPrefix, c); err != nil {
		return configError(err, "read env config failed", "prefix", EnvPrefix)
	}
	return nil
}

func detectFormat(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return "yaml", nil
	case ".json":
		return "json", nil
	default:
		return "", configError(nil, "unknown config file extension", "path", path)
	}
}

func configError(cause error, msg string, k string, v any) *errorx.Error {
	return errorx.NewConfig(errorx.ErrInvalidConfig,
		errorx.WithComponent(errorx.ComponentConfig),
		errorx.WithCause(cause),
		errorx.WithMessage(msg),
		errorx.WithField(k, v))
}
