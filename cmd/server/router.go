package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/imattdu/orbitrace/config"
	"github.com/imattdu/orbitrace/middleware"
	"github.com/imattdu/orbitrace/tracex"
)

// 始终不追踪的路径
var untracedPaths = []string{"/health-check", "/metrics"}

// demoUser 请求 hook 写入的 user 属性
const demoUser = "xxxxxx"

// newRouter 组装 pipeline：body 回放 -> 追踪 -> 访问日志 -> recovery -> 路由
func newRouter(cfg *config.Config, tracer *tracex.Tracer, reg *prometheus.Registry) (*gin.Engine, error) {
	engine := gin.New()
	p := middleware.NewPipeline(engine)

	if cfg.Trace.LogRequestBody {
		if err := p.Install(middleware.NewBodyReplay()); err != nil {
			return nil, err
		}
	}

	format, err := cfg.Trace.TextFormat()
	if err != nil {
		return nil, err
	}
	excluded := append(append([]string(nil), untracedPaths...), cfg.Trace.ExcludePaths...)
	if _, err := middleware.InstallTracing(p, tracer,
		middleware.WithLoggingRequestBody(cfg.Trace.LogRequestBody),
		middleware.WithFilter(middleware.ExcludePaths(excluded...)),
		middleware.WithTextFormat(format),
		middleware.WithRequestAttributeHandler(func(_ *gin.Context, span *tracex.Span) {
			span.SetString("user", demoUser)
		}),
		middleware.WithResponseAttributeHandler(func(c *gin.Context, span *tracex.Span) {
			if r, ok := middleware.RouteFromContext(c); ok {
				span.SetString("http.api", r.Function())
			}
		}),
	); err != nil {
		return nil, err
	}
	if err := p.Install(middleware.NewAccessLog()); err != nil {
		return nil, err
	}
	engine.Use(gin.Recovery())

	h := &handlers{ctl: newController(tracer, newCustomerStore())}
	engine.GET("/health-check", h.healthCheck)
	engine.GET("/", h.hello)
	engine.POST("/customer", h.createCustomer)
	engine.GET("/customer/:id", h.getCustomer)
	engine.PATCH("/customer/:id", h.updateCustomer)
	engine.DELETE("/customer/:id", h.deleteCustomer)
	if reg != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}
	return engine, nil
}

type handlers struct {
	ctl *controller
}

func (h *handlers) healthCheck(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (h *handlers) hello(c *gin.Context) {
	c.String(http.StatusOK, h.ctl.hello(c.Request.Context()))
}

func (h *handlers) createCustomer(c *gin.Context) {
	var in Customer
	if err := c.ShouldBindJSON(&in); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, h.ctl.create(c.Request.Context(), in))
}

func (h *handlers) getCustomer(c *gin.Context) {
	cu, ok := h.ctl.store.get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": errCustomerNotFound.Error()})
		return
	}
	c.JSON(http.StatusOK, cu)
}

func (h *handlers) updateCustomer(c *gin.Context) {
	var in Customer
	if err := c.ShouldBindJSON(&in); err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	in.ID = c.Param("id")
	out, err := h.ctl.update(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *handlers) deleteCustomer(c *gin.Context) {
	if err := h.ctl.delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	status := http.StatusInternalServerError
	if errors.Is(err, errCustomerNotFound) {
		status = http.StatusNotFound
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// metricsRegistry 进程指标和 span 导出计数
func metricsRegistry(bp *tracex.BatchProcessor) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if bp != nil {
		reg.MustRegister(
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: "orbitrace",
				Name:      "spans_exported_total",
				Help:      "Spans handed to the exporter.",
			}, func() float64 { return float64(bp.Exported()) }),
			prometheus.NewCounterFunc(prometheus.CounterOpts{
				Namespace: "orbitrace",
				Name:      "spans_dropped_total",
				Help:      "Spans dropped because the export queue was full or the processor was shut down.",
			}, func() float64 { return float64(bp.Dropped()) }),
		)
	}
	return reg
}
