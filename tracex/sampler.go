package tracex

import (
	"strings"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/imattdu/orbitrace/errorx"
)

// Sampler 直接使用 otel sdk 的采样器
type Sampler = sdktrace.Sampler

func AlwaysSample() Sampler { return sdktrace.AlwaysSample() }

func NeverSample() Sampler { return sdktrace.NeverSample() }

// RatioSample 按 trace id 比例采样，ratio 越界时按 0 / 1 处理
func RatioSample(ratio float64) Sampler { return sdktrace.TraceIDRatioBased(ratio) }

// ParentBased 有父 span 时跟随父的采样决定，根 span 用 root
func ParentBased(root Sampler) Sampler { return sdktrace.ParentBased(root) }

// SamplerByName 按配置名构造采样器：always | never | ratio
func SamplerByName(name string, ratio float64) (Sampler, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "always":
		return AlwaysSample(), nil
	case "never":
		return NeverSample(), nil
	case "ratio":
		if ratio < 0 || ratio > 1 {
			return nil, errorx.NewConfig(errorx.ErrInvalidConfig,
				errorx.WithComponent(errorx.ComponentTracer),
				errorx.WithMessagef("sampler ratio %v out of [0,1]", ratio))
		}
		return ParentBased(RatioSample(ratio)), nil
	default:
		return nil, errorx.NewConfig(errorx.ErrInvalidConfig,
			errorx.WithComponent(errorx.ComponentTracer),
			errorx.WithMessagef("unknown sampler %q", name))
	}
}
