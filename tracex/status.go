package tracex

import "net/http"

// StatusCode 规范状态码，数值与通用 RPC 状态码集合一致
type StatusCode int32

const (
	StatusOK                 StatusCode = 0
	StatusCancelled          StatusCode = 1
	StatusUnknown            StatusCode = 2
	StatusInvalidArgument    StatusCode = 3
	StatusDeadlineExceeded   StatusCode = 4
	StatusNotFound           StatusCode = 5
	StatusAlreadyExists      StatusCode = 6
	StatusPermissionDenied   StatusCode = 7
	StatusResourceExhausted  StatusCode = 8
	StatusFailedPrecondition StatusCode = 9
	StatusAborted            StatusCode = 10
	StatusOutOfRange         StatusCode = 11
	StatusUnimplemented      StatusCode = 12
	StatusInternal           StatusCode = 13
	StatusUnavailable        StatusCode = 14
	StatusDataLoss           StatusCode = 15
	StatusUnauthenticated    StatusCode = 16
)

var statusNames = map[StatusCode]string{
	StatusOK:                 "OK",
	StatusCancelled:          "CANCELLED",
	StatusUnknown:            "UNKNOWN",
	StatusInvalidArgument:    "INVALID_ARGUMENT",
	StatusDeadlineExceeded:   "DEADLINE_EXCEEDED",
	StatusNotFound:           "NOT_FOUND",
	StatusAlreadyExists:      "ALREADY_EXISTS",
	StatusPermissionDenied:   "PERMISSION_DENIED",
	StatusResourceExhausted:  "RESOURCE_EXHAUSTED",
	StatusFailedPrecondition: "FAILED_PRECONDITION",
	StatusAborted:            "ABORTED",
	StatusOutOfRange:         "OUT_OF_RANGE",
	StatusUnimplemented:      "UNIMPLEMENTED",
	StatusInternal:           "INTERNAL",
	StatusUnavailable:        "UNAVAILABLE",
	StatusDataLoss:           "DATA_LOSS",
	StatusUnauthenticated:    "UNAUTHENTICATED",
}

func (c StatusCode) String() string {
	if s, ok := statusNames[c]; ok {
		return s
	}
	return "UNKNOWN"
}

// StatusFromHTTP 把 HTTP 状态码映射到规范状态码
func StatusFromHTTP(code int) StatusCode {
	if code >= 200 && code < 400 {
		return StatusOK
	}
	switch code {
	case http.StatusBadRequest:
		return StatusInvalidArgument
	case http.StatusUnauthorized:
		return StatusUnauthenticated
	case http.StatusForbidden:
		return StatusPermissionDenied
	case http.StatusNotFound:
		return StatusNotFound
	case http.StatusTooManyRequests:
		return StatusResourceExhausted
	case http.StatusInternalServerError:
		return StatusInternal
	case http.StatusNotImplemented:
		return StatusUnimplemented
	case http.StatusServiceUnavailable:
		return StatusUnavailable
	case http.StatusGatewayTimeout:
		return StatusDeadlineExceeded
	default:
		return StatusUnknown
	}
}

// SetStatus 覆盖 span 状态，span 只保留一个状态值
func (s *Span) SetStatus(code StatusCode) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.writable() {
		return
	}
	s.status = code
	s.statusSet = true
}

// SetHTTPStatus 按 HTTP 状态码设置 span 状态
func (s *Span) SetHTTPStatus(code int) {
	s.SetStatus(StatusFromHTTP(code))
}
