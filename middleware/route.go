package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
)

// SelectorKind 路由选择器类型
type SelectorKind int

const (
	SelectorConstant SelectorKind = iota + 1
	SelectorParameter
	SelectorOptionalParameter
	SelectorWildcard
	SelectorTailcard
	SelectorOr
	SelectorAnd
	SelectorMethod
)

// Selector 路由树上的一个节点。Or / And 的子节点在 Children 中。
type Selector struct {
	Kind     SelectorKind
	Value    string
	Children []Selector
}

func Constant(v string) Selector          { return Selector{Kind: SelectorConstant, Value: v} }
func Parameter(name string) Selector      { return Selector{Kind: SelectorParameter, Value: name} }
func OptionalParameter(n string) Selector { return Selector{Kind: SelectorOptionalParameter, Value: n} }
func Wildcard() Selector                  { return Selector{Kind: SelectorWildcard, Value: "*"} }
func Tailcard(name string) Selector       { return Selector{Kind: SelectorTailcard, Value: name} }
func Method(m string) Selector            { return Selector{Kind: SelectorMethod, Value: strings.ToUpper(m)} }

func Or(children ...Selector) Selector {
	return Selector{Kind: SelectorOr, Children: children}
}

func And(children ...Selector) Selector {
	return Selector{Kind: SelectorAnd, Children: children}
}

// IsPath 是否参与路径渲染，方法选择器不参与
func (s Selector) IsPath() bool {
	switch s.Kind {
	case SelectorConstant, SelectorParameter, SelectorOptionalParameter,
		SelectorWildcard, SelectorTailcard, SelectorOr, SelectorAnd:
		return true
	default:
		return false
	}
}

func (s Selector) String() string {
	switch s.Kind {
	case SelectorConstant:
		return s.Value
	case SelectorParameter:
		return "{" + s.Value + "}"
	case SelectorOptionalParameter:
		return "{" + s.Value + "?}"
	case SelectorWildcard:
		return "*"
	case SelectorTailcard:
		return "{" + s.Value + "...}"
	case SelectorOr:
		return "{" + joinSelectors(s.Children, " | ") + "}"
	case SelectorAnd:
		return "{" + joinSelectors(s.Children, " & ") + "}"
	case SelectorMethod:
		return "(method:" + s.Value + ")"
	default:
		return ""
	}
}

func joinSelectors(ss []Selector, sep string) string {
	parts := make([]string, 0, len(ss))
	for _, s := range ss {
		parts = append(parts, s.String())
	}
	return strings.Join(parts, sep)
}

// Route 从根到叶的选择器序列
type Route struct {
	Template  string
	Selectors []Selector
}

// NewRoute 直接用选择器构造，非 gin 的路由器可以用它
func NewRoute(selectors ...Selector) Route {
	r := Route{Selectors: selectors}
	r.Template = r.Function()
	return r
}

// ParseRoute 把 gin 的路由模板转换成选择器：
// /customer/:id -> customer, {id}；/files/*path -> files, {path...}；末尾追加方法选择器
func ParseRoute(method, fullPath string) Route {
	r := Route{Template: fullPath}
	for _, seg := range splitPath(fullPath) {
		switch {
		case strings.HasPrefix(seg, ":"):
			r.Selectors = append(r.Selectors, Parameter(seg[1:]))
		case strings.HasPrefix(seg, "*"):
			r.Selectors = append(r.Selectors, Tailcard(seg[1:]))
		default:
			r.Selectors = append(r.Selectors, Constant(seg))
		}
	}
	if method != "" {
		r.Selectors = append(r.Selectors, Method(method))
	}
	return r
}

// ParseRequestPath 没有匹配到路由时，按原始路径构造常量选择器
func ParseRequestPath(path string) Route {
	r := Route{Template: path}
	for _, seg := range splitPath(path) {
		r.Selectors = append(r.Selectors, Constant(seg))
	}
	return r
}

// Parts 返回路径相关的选择器
func (r Route) Parts() []Selector {
	out := make([]Selector, 0, len(r.Selectors))
	for _, s := range r.Selectors {
		if s.IsPath() {
			out = append(out, s)
		}
	}
	return out
}

// Function 渲染为 /seg1/seg2 形式，根路径返回 /
func (r Route) Function() string {
	return "/" + joinSelectors(r.Parts(), "/")
}

// First 第一个路径段，根路径返回空串
func (r Route) First() string {
	parts := r.Parts()
	if len(parts) == 0 {
		return ""
	}
	return parts[0].String()
}

// IsZero 没有任何选择器
func (r Route) IsZero() bool {
	return len(r.Selectors) == 0 && r.Template == ""
}

// DefaultSpanName "{METHOD} /{第一个路径段}"
func DefaultSpanName(c *gin.Context, r Route) string {
	return fmt.Sprintf("%s /%s", c.Request.Method, r.First())
}

// resolveRoute 优先使用 gin 匹配到的路由模板，没匹配到时退回原始路径
func resolveRoute(c *gin.Context) Route {
	if r, ok := RouteFromContext(c); ok {
		return r
	}
	if fp := c.FullPath(); fp != "" {
		return ParseRoute(c.Request.Method, fp)
	}
	return ParseRequestPath(c.Request.URL.Path)
}

func splitPath(p string) []string {
	raw := strings.Split(p, "/")
	out := make([]string, 0, len(raw))
	for _, seg := range raw {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}
