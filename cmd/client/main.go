// client 调用示例 customer 服务，演示 httpclient 的 span 透传和调用统计日志。
//
// 用法:
//
//	client [--base-url http://127.0.0.1:8080] [--format w3c] [--retry 3] create Ada Lovelace
//	client hello
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/imattdu/orbitrace/errorx"
	"github.com/imattdu/orbitrace/exporter"
	"github.com/imattdu/orbitrace/httpclient"
	"github.com/imattdu/orbitrace/logx"
	"github.com/imattdu/orbitrace/tracex"
)

func main() {
	if err := createApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func createApp() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "调用示例 customer 服务",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "base-url",
				Usage:   "服务地址",
				Value:   "http://127.0.0.1:8080",
				Sources: cli.EnvVars("ORBIT_CLIENT_BASE_URL"),
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "传播格式 w3c / header / both",
				Value: "w3c",
			},
			&cli.IntFlag{
				Name:  "retry",
				Usage: "最大尝试次数",
				Value: 3,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "单次调用超时",
				Value: 3 * time.Second,
			},
		},
		Before: func(ctx context.Context, _ *cli.Command) (context.Context, error) {
			return ctx, logx.Init(logx.Config{AppName: "client", ConsoleEnabled: true})
		},
		After: func(context.Context, *cli.Command) error {
			return logx.Close()
		},
		Commands: []*cli.Command{
			{
				Name:   "hello",
				Usage:  "GET /",
				Action: hello,
			},
			{
				Name:      "create",
				Usage:     "POST /customer",
				ArgsUsage: "<firstName> <lastName>",
				Action:    create,
			},
		},
	}
}

type session struct {
	tracer *tracex.Tracer
	client *httpclient.Client
}

// newSession span 写日志，调用统计交给 httpclient.LogStats
func newSession(cmd *cli.Command) (*session, error) {
	format, err := tracex.FormatByName(cmd.String("format"))
	if err != nil {
		return nil, err
	}
	tracer := tracex.NewTracer(
		tracex.WithSyncer(exporter.NewLogExporter(nil)),
		tracex.WithTextFormat(format))
	hc, err := httpclient.New(
		httpclient.WithBaseURL(cmd.String("base-url")),
		httpclient.WithDefaultTimeout(cmd.Duration("timeout")),
		httpclient.WithRetry(int(cmd.Int("retry")), nil, nil),
		httpclient.WithTracer(tracer),
		httpclient.WithStatsHook(httpclient.LogStats),
	)
	if err != nil {
		return nil, err
	}
	return &session{tracer: tracer, client: hc}, nil
}

func hello(ctx context.Context, cmd *cli.Command) error {
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	return s.tracer.InSpan(ctx, "client#hello", func(ctx context.Context) error {
		var body []byte
		resp, err := s.client.Do(ctx, &httpclient.Request{Method: http.MethodGet, Path: "/"}, &body)
		if err != nil {
			return err
		}
		fmt.Printf("%d %s\n", resp.StatusCode, body)
		return nil
	})
}

func create(ctx context.Context, cmd *cli.Command) error {
	if cmd.NArg() != 2 {
		return errorx.NewConfig(errorx.ErrInvalidConfig, errorx.WithMessage("create needs <firstName> <lastName>"))
	}
	s, err := newSession(cmd)
	if err != nil {
		return err
	}
	return s.tracer.InSpan(ctx, "client#create", func(ctx context.Context) error {
		in := map[string]string{"firstName": cmd.Args().Get(0), "lastName": cmd.Args().Get(1)}
		var out map[string]any
		if _, err := s.client.PostJSON(ctx, "/customer", in, &out); err != nil {
			return err
		}
		fmt.Printf("created %v (trace %s)\n", out["id"], tracex.TraceIDFromContext(ctx))
		return nil
	})
}
