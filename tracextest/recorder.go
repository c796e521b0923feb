// Package tracextest 提供测试用的内存 exporter
package tracextest

import (
	"context"
	"sync"

	"github.com/imattdu/orbitrace/tracex"
)

// Recorder 把导出的 span 保存在内存里
type Recorder struct {
	mu       sync.Mutex
	spans    []tracex.SpanData
	shutdown bool
}

var _ tracex.Exporter = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{}
}

// NewTracer 返回同步导出到 Recorder 的 tracer
func NewTracer(opts ...tracex.Option) (*tracex.Tracer, *Recorder) {
	rec := NewRecorder()
	opts = append([]tracex.Option{tracex.WithSyncer(rec)}, opts...)
	return tracex.NewTracer(opts...), rec
}

func (r *Recorder) ExportSpans(_ context.Context, spans []tracex.SpanData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown {
		return nil
	}
	r.spans = append(r.spans, spans...)
	return nil
}

func (r *Recorder) Shutdown(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shutdown = true
	return nil
}

// Spans 返回已导出 span 的副本
func (r *Recorder) Spans() []tracex.SpanData {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tracex.SpanData(nil), r.spans...)
}

// ByName 按名称过滤
func (r *Recorder) ByName(name string) []tracex.SpanData {
	var out []tracex.SpanData
	for _, s := range r.Spans() {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

// Reset 清空
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.spans = nil
}

func (r *Recorder) IsShutdown() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shutdown
}
