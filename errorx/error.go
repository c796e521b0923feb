package errorx

import (
	"errors"
	"fmt"
)

// Error 统一错误类型：错误码、类别、出错组件、文案、cause、扩展字段
type Error struct {
	Code      CodeEntry      `json:"code"`
	Type      CodeEntry      `json:"type"`
	Component CodeEntry      `json:"component"`
	Message   string         `json:"message"` // 覆盖 Code.Message
	Cause     error          `json:"-"`
	Fields    map[string]any `json:"fields,omitempty"`
}

var _ error = (*Error)(nil)

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = e.Code.Message
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: code=%d msg=%s cause=%v", e.Component.Message, e.Code.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: code=%d msg=%s", e.Component.Message, e.Code.Code, msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is 按错误码比较，便于 errors.Is(err, errorx.New(errorx.ErrInvalidConfig))
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code.Code == t.Code.Code
}

// -------------------- Option --------------------

type Option func(*Error)

func WithMessage(msg string) Option {
	return func(e *Error) { e.Message = msg }
}

func WithMessagef(f string, args ...any) Option {
	return func(e *Error) { e.Message = fmt.Sprintf(f, args...) }
}

func WithCause(err error) Option {
	return func(e *Error) { e.Cause = err }
}

func WithType(t CodeEntry) Option {
	return func(e *Error) { e.Type = t }
}

func WithComponent(c CodeEntry) Option {
	return func(e *Error) { e.Component = c }
}

func WithField(k string, v any) Option {
	return func(e *Error) {
		if e.Fields == nil {
			e.Fields = make(map[string]any)
		}
		e.Fields[k] = v
	}
}

// -------------------- 构造函数 --------------------

func New(code CodeEntry, opts ...Option) *Error {
	e := &Error{
		Code:      code,
		Type:      ErrTypeRuntime,
		Component: ComponentDefault,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewConfig 配置错误：安装 / 启动阶段直接失败
func NewConfig(code CodeEntry, opts ...Option) *Error {
	opts = append([]Option{WithType(ErrTypeConfig)}, opts...)
	return New(code, opts...)
}

// NewProtocol 协议错误：可恢复，调用方降级处理
func NewProtocol(code CodeEntry, opts ...Option) *Error {
	opts = append([]Option{WithType(ErrTypeProtocol)}, opts...)
	return New(code, opts...)
}

// -------------------- Wrap --------------------

func Wrap(err error, code CodeEntry, opts ...Option) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		for _, opt := range opts {
			opt(e)
		}
		return e
	}

	opts = append([]Option{WithCause(err)}, opts...)
	return New(code, opts...)
}
