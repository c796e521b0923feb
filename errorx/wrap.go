package errorx

import "errors"

// From 提取 *Error
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// -------------------- 类型判断 --------------------

func IsConfig(err error) bool {
	e, ok := From(err)
	return ok && e.Type.Code == ErrTypeConfig.Code
}

func IsProtocol(err error) bool {
	e, ok := From(err)
	return ok && e.Type.Code == ErrTypeProtocol.Code
}

// HasCode 判断错误链上是否带有指定错误码
func HasCode(err error, code CodeEntry) bool {
	e, ok := From(err)
	return ok && e.Code.Code == code.Code
}

// ComponentOf 返回出错组件，非 *Error 时为 ComponentDefault
func ComponentOf(err error) CodeEntry {
	e, ok := From(err)
	if !ok {
		return ComponentDefault
	}
	return e.Component
}
