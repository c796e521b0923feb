package middleware

import (
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/imattdu/orbitrace/errorx"
)

// RouteKey gin.Context 中保存匹配路由的 key
const RouteKey = "orbitrace.route"

// Feature 可以安装到 Pipeline 上的功能
type Feature interface {
	Name() string
	Install(p *Pipeline) error
}

// RouteMatchedFunc 路由匹配成功后、业务 handler 执行前回调
type RouteMatchedFunc func(c *gin.Context, r Route)

// Pipeline 包一层 gin.Engine，记录已安装的 Feature，并分发路由匹配事件。
// Feature 需要在注册路由之前安装，gin 的全局中间件只对之后注册的路由生效。
type Pipeline struct {
	engine *gin.Engine

	mu        sync.RWMutex
	features  map[string]Feature
	order     []string
	routeSubs []RouteMatchedFunc
}

// NewPipeline engine 为 nil 时使用 gin.New()
func NewPipeline(engine *gin.Engine) *Pipeline {
	if engine == nil {
		engine = gin.New()
	}
	p := &Pipeline{
		engine:   engine,
		features: make(map[string]Feature),
	}
	engine.Use(p.dispatchRouteMatched)
	return p
}

func (p *Pipeline) Engine() *gin.Engine { return p.engine }

// Use 追加全局中间件，Feature 在 Install 中调用
func (p *Pipeline) Use(h ...gin.HandlerFunc) {
	p.engine.Use(h...)
}

// Install 安装 Feature，同名重复安装返回配置错误
func (p *Pipeline) Install(f Feature) error {
	name := f.Name()
	p.mu.RLock()
	_, exists := p.features[name]
	p.mu.RUnlock()
	if exists {
		return errorx.NewConfig(errorx.ErrFeatureInstalled,
			errorx.WithComponent(errorx.ComponentMiddleware),
			errorx.WithField("feature", name))
	}

	if err := f.Install(p); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.features[name] = f
	p.order = append(p.order, name)
	return nil
}

// Has 是否已安装
func (p *Pipeline) Has(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.features[name]
	return ok
}

// Feature 按名称取已安装的 Feature
func (p *Pipeline) Feature(name string) (Feature, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	f, ok := p.features[name]
	return f, ok
}

// Features 按安装顺序返回名称
func (p *Pipeline) Features() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.order...)
}

// SubscribeRouteMatched 订阅路由匹配事件
func (p *Pipeline) SubscribeRouteMatched(fn RouteMatchedFunc) {
	if fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.routeSubs = append(p.routeSubs, fn)
}

func (p *Pipeline) dispatchRouteMatched(c *gin.Context) {
	fp := c.FullPath()
	if fp == "" {
		return
	}
	p.mu.RLock()
	subs := p.routeSubs
	p.mu.RUnlock()
	if len(subs) == 0 {
		return
	}
	r := ParseRoute(c.Request.Method, fp)
	for _, fn := range subs {
		fn(c, r)
	}
}

// RouteFromContext 取匹配到的路由
func RouteFromContext(c *gin.Context) (Route, bool) {
	if c == nil {
		return Route{}, false
	}
	v, ok := c.Get(RouteKey)
	if !ok {
		return Route{}, false
	}
	r, ok := v.(Route)
	return r, ok
}
