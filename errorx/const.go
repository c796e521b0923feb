package errorx

// CodeEntry 错误码 + 默认文案，集中定义，业务只引用变量名
type CodeEntry struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// -------------------- 错误类别 --------------------

var (
	ErrTypeConfig   = CodeEntry{Code: 1, Message: "配置错误"}
	ErrTypeProtocol = CodeEntry{Code: 2, Message: "协议错误"}
	ErrTypeRuntime  = CodeEntry{Code: 3, Message: "运行时错误"}
)

// -------------------- 出错组件 --------------------

var (
	ComponentDefault    = CodeEntry{Code: 1, Message: "unknown"}
	ComponentTracer     = CodeEntry{Code: 10, Message: "tracer"}
	ComponentMiddleware = CodeEntry{Code: 11, Message: "middleware"}
	ComponentExporter   = CodeEntry{Code: 12, Message: "exporter"}
	ComponentHTTPClient = CodeEntry{Code: 13, Message: "httpclient"}
	ComponentConfig     = CodeEntry{Code: 14, Message: "config"}
)

// -------------------- 错误码 --------------------

var (
	ErrDefault            = CodeEntry{Code: 1000, Message: "未知错误"}
	ErrInvalidConfig      = CodeEntry{Code: 1001, Message: "invalid config"}
	ErrBodyReplayRequired = CodeEntry{Code: 1002, Message: "logging request body requires the body replay feature"}
	ErrFeatureInstalled   = CodeEntry{Code: 1003, Message: "feature already installed"}
	ErrPropagation        = CodeEntry{Code: 2001, Message: "malformed trace context"}
	ErrExport             = CodeEntry{Code: 3001, Message: "span export failed"}
	ErrHTTPCall           = CodeEntry{Code: 3002, Message: "http call failed"}
)
