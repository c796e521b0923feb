package cctx

import (
	"context"
	"time"
)

// ----------------- 内部类型 -----------------

type bagKeyType struct{}

var bagKey bagKeyType

// bag 不可变：每次写入都复制一份新的 map
type bag map[string]any

func bagFrom(ctx context.Context) bag {
	if ctx == nil {
		return nil
	}
	if b, ok := ctx.Value(bagKey).(bag); ok {
		return b
	}
	return nil
}

// cloneValue 只对 map[string]any / []any 递归复制，其余按值传递
func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return cloneMap(x)
	case []any:
		out := make([]any, len(x))
		for i := range x {
			out[i] = cloneValue(x[i])
		}
		return out
	default:
		return v
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// ----------------- 对外 API -----------------

// New 用 data 的副本替换 parent 上的 bag
func New(parent context.Context, data map[string]any) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, bagKey, bag(cloneMap(data)))
}

// With 写入一条 k/v，返回新 ctx
func With(ctx context.Context, key string, val any) context.Context {
	return WithMany(ctx, map[string]any{key: val})
}

// WithMany 一次写入多条 k/v，返回新 ctx，原 ctx 不受影响
func WithMany(ctx context.Context, kv map[string]any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	old := bagFrom(ctx)
	next := make(bag, len(old)+len(kv))
	for k, v := range old {
		next[k] = v
	}
	for k, v := range kv {
		next[k] = cloneValue(v)
	}
	return context.WithValue(ctx, bagKey, next)
}

// Get 读取一个键
func Get(ctx context.Context, key string) (any, bool) {
	v, ok := bagFrom(ctx)[key]
	return v, ok
}

// GetAs 读取并断言为 T
func GetAs[T any](ctx context.Context, key string) (T, bool) {
	v, ok := Get(ctx, key)
	if !ok {
		var zero T
		return zero, false
	}
	tv, ok := v.(T)
	return tv, ok
}

// All 返回 bag 的副本
func All(ctx context.Context) map[string]any {
	if b := bagFrom(ctx); b != nil {
		return cloneMap(b)
	}
	return map[string]any{}
}

// Detach 返回一个保留 parent 所有值、但不随 parent 取消的 ctx。
// span 收尾、上报这类清理动作必须跑完，不能被请求取消打断。
func Detach(parent context.Context) context.Context {
	if parent == nil {
		return context.Background()
	}
	return context.WithoutCancel(parent)
}

// DetachWithTimeout 与 Detach 相同，但额外设置独立的超时（<=0 表示不设超时）
func DetachWithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := Detach(parent)
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
