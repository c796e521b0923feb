package tracex

import "time"

// AddMessageEvent 追加一个收发事件，ts 为零值时取当前时间
func (s *Span) AddMessageEvent(typ MessageEventType, size int64, ts time.Time) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.writable() {
		return
	}
	if ts.IsZero() {
		ts = s.now()
	}
	if size < 0 {
		size = 0
	}
	s.nextEventID++
	s.events = append(s.events, MessageEvent{
		Type:             typ,
		ID:               s.nextEventID,
		UncompressedSize: size,
		Time:             ts,
	})
}

// AddAnnotation 追加一条标注，attrs 为空时不记录
func (s *Span) AddAnnotation(description string, attrs map[string]string) {
	if s == nil || len(attrs) == 0 {
		return
	}
	values := make(map[string]Value, len(attrs))
	for k, v := range attrs {
		values[k] = StringValue(v)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.writable() {
		return
	}
	s.annotations = append(s.annotations, Annotation{
		Description: description,
		Attributes:  values,
		Time:        s.now(),
	})
}
