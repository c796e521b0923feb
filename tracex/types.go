package tracex

import (
	"crypto/rand"
	"encoding/binary"
	mrand "math/rand/v2"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// -------------------- 属性值 --------------------

type ValueType int

const (
	ValueInvalid ValueType = iota
	ValueString
	ValueInt
)

// Value 属性值，只有 string / int64 两种
type Value struct {
	typ ValueType
	s   string
	i   int64
}

func StringValue(s string) Value { return Value{typ: ValueString, s: s} }

func IntValue(i int64) Value { return Value{typ: ValueInt, i: i} }

func (v Value) Type() ValueType { return v.typ }

func (v Value) AsString() string { return v.s }

func (v Value) AsInt64() int64 { return v.i }

func (v Value) IsValid() bool { return v.typ != ValueInvalid }

// Emit 返回值的字符串形式
func (v Value) Emit() string {
	switch v.typ {
	case ValueString:
		return v.s
	case ValueInt:
		return strconv.FormatInt(v.i, 10)
	default:
		return ""
	}
}

// Interface 返回底层 Go 值，用于 JSON 编码
func (v Value) Interface() any {
	switch v.typ {
	case ValueString:
		return v.s
	case ValueInt:
		return v.i
	default:
		return nil
	}
}

// KeyValue 有序属性
type KeyValue struct {
	Key   string
	Value Value
}

func String(k, v string) KeyValue { return KeyValue{Key: k, Value: StringValue(v)} }

func Int(k string, v int) KeyValue { return KeyValue{Key: k, Value: IntValue(int64(v))} }

// -------------------- 事件 --------------------

type MessageEventType int

const (
	MessageEventSent MessageEventType = iota + 1
	MessageEventReceived
)

func (t MessageEventType) String() string {
	switch t {
	case MessageEventSent:
		return "SENT"
	case MessageEventReceived:
		return "RECEIVED"
	default:
		return "UNKNOWN"
	}
}

// MessageEvent 记录一次逻辑上的收发
type MessageEvent struct {
	Type             MessageEventType
	ID               int64
	UncompressedSize int64
	Time             time.Time
}

// Annotation 带属性的描述性标注
type Annotation struct {
	Description string
	Attributes  map[string]Value
	Time        time.Time
}

// -------------------- 导出快照 --------------------

// SpanData 是 span 结束时的只读快照，交给 Exporter
type SpanData struct {
	SpanContext     trace.SpanContext
	Parent          trace.SpanContext
	HasRemoteParent bool
	Name            string
	Kind            trace.SpanKind
	StartTime       time.Time
	EndTime         time.Time
	Status          StatusCode
	HasStatus       bool
	Attributes      []KeyValue
	Annotations     []Annotation
	MessageEvents   []MessageEvent
}

// Attribute 按 key 查属性
func (d SpanData) Attribute(key string) (Value, bool) {
	for _, kv := range d.Attributes {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return Value{}, false
}

// Duration 返回 span 耗时
func (d SpanData) Duration() time.Duration {
	if d.StartTime.IsZero() || d.EndTime.IsZero() {
		return 0
	}
	return d.EndTime.Sub(d.StartTime)
}

// -------------------- ID 生成 --------------------

func newTraceID() trace.TraceID {
	var id trace.TraceID
	for !id.IsValid() {
		fillRandom(id[:])
	}
	return id
}

func newSpanID() trace.SpanID {
	var id trace.SpanID
	for !id.IsValid() {
		fillRandom(id[:])
	}
	return id
}

func fillRandom(b []byte) {
	if _, err := rand.Read(b); err == nil {
		return
	}
	for i := 0; i < len(b); i += 8 {
		var chunk [8]byte
		binary.LittleEndian.PutUint64(chunk[:], mrand.Uint64())
		copy(b[i:], chunk[:])
	}
}
