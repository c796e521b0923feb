// server 是接入链路追踪的示例 customer 服务。
//
// 用法:
//
//	server [--config orbit.yaml] [--env-file .env] [--addr :8080]
//
// 配置优先级：默认值 < 配置文件 < ORBIT_* 环境变量 < 命令行参数
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/imattdu/orbitrace/config"
	"github.com/imattdu/orbitrace/logx"
)

var Version = "0.1.0-dev"

func main() {
	if err := createApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Usage:   "带链路追踪的示例 customer 服务",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径（yaml / json）",
				Sources: cli.EnvVars("ORBIT_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "启动前加载的 .env 文件",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "监听地址，覆盖配置文件",
			},
		},
		Action: serve,
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	if err := loadEnvFile(cmd.String("env-file")); err != nil {
		return err
	}
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	if addr := cmd.String("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	if err := logx.Init(cfg.Log.LoggerConfig(cfg.Trace.ServiceName)); err != nil {
		return err
	}
	defer logx.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tel, err := newTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	router, err := newRouter(cfg, tel.tracer, metricsRegistry(tel.batch))
	if err != nil {
		_ = tel.shutdown(context.Background())
		return err
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logx.Info(gctx, logx.TagStartup, "server started",
			"addr", cfg.Server.Addr, "exporter", cfg.Exporter.Kind, "version", Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// 先停止接收请求，再把剩余 span 导出
		err := errors.Join(srv.Shutdown(sctx), tel.shutdown(sctx))
		logx.Info(sctx, logx.TagShutdown, "server stopped", logx.Err, errString(err))
		return err
	})
	return g.Wait()
}

// loadEnvFile 文件不存在时忽略
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
