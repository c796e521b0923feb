package tracex

import (
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Span 一次被计时的操作。写操作加锁，业务里派生的 goroutine 也可以往当前 span 上打点。
type Span struct {
	mu sync.Mutex

	sc              trace.SpanContext
	parent          trace.SpanContext
	hasRemoteParent bool
	name            string
	kind            trace.SpanKind
	recording       bool

	start time.Time
	end   time.Time
	ended bool

	status    StatusCode
	statusSet bool

	attrKeys    []string
	attrs       map[string]Value
	annotations []Annotation
	events      []MessageEvent
	nextEventID int64

	tracer *Tracer
}

// SpanContext 返回 span 的不可变标识
func (s *Span) SpanContext() trace.SpanContext {
	if s == nil {
		return trace.SpanContext{}
	}
	return s.sc
}

// Parent 返回父 span 的标识，根 span 返回零值
func (s *Span) Parent() trace.SpanContext {
	if s == nil {
		return trace.SpanContext{}
	}
	return s.parent
}

func (s *Span) Name() string {
	if s == nil {
		return ""
	}
	return s.name
}

func (s *Span) Kind() trace.SpanKind {
	if s == nil {
		return trace.SpanKindUnspecified
	}
	return s.kind
}

// TraceID 返回 hex 形式的 trace id
func (s *Span) TraceID() string {
	if s == nil {
		return ""
	}
	return s.sc.TraceID().String()
}

// SpanID 返回 hex 形式的 span id
func (s *Span) SpanID() string {
	if s == nil {
		return ""
	}
	return s.sc.SpanID().String()
}

// IsRecording 未结束且需要记录事件时返回 true
func (s *Span) IsRecording() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writable()
}

// Ended 是否已经结束
func (s *Span) Ended() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// writable 调用方需持有锁
func (s *Span) writable() bool {
	return s.recording && !s.ended
}

// End 结束 span，只有第一次调用生效；采样的 span 交给 tracer 的处理器
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.end = s.now()
	data := s.snapshotLocked()
	s.mu.Unlock()

	if s.tracer != nil && s.sc.IsSampled() {
		s.tracer.onEnd(data)
	}
}

// Snapshot 返回当前状态的只读副本
func (s *Span) Snapshot() SpanData {
	if s == nil {
		return SpanData{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Duration 返回 span 耗时，未结束时返回 0
func (s *Span) Duration() time.Duration {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		return 0
	}
	return s.end.Sub(s.start)
}

func (s *Span) snapshotLocked() SpanData {
	d := SpanData{
		SpanContext:     s.sc,
		Parent:          s.parent,
		HasRemoteParent: s.hasRemoteParent,
		Name:            s.name,
		Kind:            s.kind,
		StartTime:       s.start,
		EndTime:         s.end,
		Status:          s.status,
		HasStatus:       s.statusSet,
	}
	if len(s.attrKeys) > 0 {
		d.Attributes = make([]KeyValue, 0, len(s.attrKeys))
		for _, k := range s.attrKeys {
			d.Attributes = append(d.Attributes, KeyValue{Key: k, Value: s.attrs[k]})
		}
	}
	if len(s.annotations) > 0 {
		d.Annotations = make([]Annotation, len(s.annotations))
		for i, a := range s.annotations {
			attrs := make(map[string]Value, len(a.Attributes))
			for k, v := range a.Attributes {
				attrs[k] = v
			}
			d.Annotations[i] = Annotation{Description: a.Description, Attributes: attrs, Time: a.Time}
		}
	}
	if len(s.events) > 0 {
		d.MessageEvents = append([]MessageEvent(nil), s.events...)
	}
	return d
}

func (s *Span) now() time.Time {
	if s.tracer != nil {
		return s.tracer.now()
	}
	return time.Now()
}
