package tracex

import (
	"context"
	"fmt"
	"sync"
)

// Scope 把一个 span 设为当前 span，Close 时结束它
//
//	scope := tracer.StartScoped(ctx, "controller#create")
//	defer scope.Close()
type Scope struct {
	ctx  context.Context
	span *Span
	once sync.Once
}

// Context 返回持有该 span 的 ctx，后续调用应当传它
func (sc *Scope) Context() context.Context {
	if sc == nil {
		return context.Background()
	}
	return sc.ctx
}

func (sc *Scope) Span() *Span {
	if sc == nil {
		return nil
	}
	return sc.span
}

// Close 结束 span，可重复调用
func (sc *Scope) Close() {
	if sc == nil {
		return
	}
	sc.once.Do(sc.span.End)
}

// StartScoped 开启 span 并返回 Scope
func (t *Tracer) StartScoped(ctx context.Context, name string, opts ...StartOption) *Scope {
	ctx, span := t.Start(ctx, name, opts...)
	return &Scope{ctx: ctx, span: span}
}

// InSpan 在一个新 span 里执行 fn，fn 返回错误或 panic 时 span 状态记为 UNKNOWN。
// panic 原样继续向上抛。
func (t *Tracer) InSpan(ctx context.Context, name string, fn func(context.Context) error, opts ...StartOption) (err error) {
	scope := t.StartScoped(ctx, name, opts...)
	defer scope.Close()
	defer func() {
		if r := recover(); r != nil {
			scope.span.SetStatus(StatusUnknown)
			scope.span.AddAnnotation("panic", map[string]string{"value": fmt.Sprint(r)})
			panic(r)
		}
	}()

	if err = fn(scope.ctx); err != nil {
		scope.span.SetStatus(StatusUnknown)
		scope.span.AddAnnotation("error", map[string]string{"message": err.Error()})
	}
	return err
}
