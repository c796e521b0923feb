package tracex

// SetAttribute 写一个属性。支持 string / *string / int / int32 / int64 / *int / *int64 / Value，
// nil、空串、nil 指针直接忽略，其他类型也忽略。同名 key 覆盖，保留首次写入的顺序。
func (s *Span) SetAttribute(key string, value any) {
	if s == nil || key == "" {
		return
	}
	v, ok := toValue(value)
	if !ok {
		return
	}
	s.setValue(key, v)
}

// SetString 写字符串属性，空串忽略
func (s *Span) SetString(key, value string) {
	s.SetAttribute(key, value)
}

// SetInt 写整数属性
func (s *Span) SetInt(key string, value int64) {
	s.SetAttribute(key, value)
}

// SetAttributes 批量写入
func (s *Span) SetAttributes(kvs ...KeyValue) {
	for _, kv := range kvs {
		s.SetAttribute(kv.Key, kv.Value)
	}
}

func (s *Span) setValue(key string, v Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.writable() {
		return
	}
	if s.attrs == nil {
		s.attrs = make(map[string]Value)
	}
	if _, exists := s.attrs[key]; !exists {
		s.attrKeys = append(s.attrKeys, key)
	}
	s.attrs[key] = v
}

func toValue(value any) (Value, bool) {
	switch v := value.(type) {
	case nil:
		return Value{}, false
	case string:
		if v == "" {
			return Value{}, false
		}
		return StringValue(v), true
	case *string:
		if v == nil || *v == "" {
			return Value{}, false
		}
		return StringValue(*v), true
	case int:
		return IntValue(int64(v)), true
	case int32:
		return IntValue(int64(v)), true
	case int64:
		return IntValue(v), true
	case *int:
		if v == nil {
			return Value{}, false
		}
		return IntValue(int64(*v)), true
	case *int64:
		if v == nil {
			return Value{}, false
		}
		return IntValue(*v), true
	case Value:
		if !v.IsValid() || (v.typ == ValueString && v.s == "") {
			return Value{}, false
		}
		return v, true
	default:
		return Value{}, false
	}
}
