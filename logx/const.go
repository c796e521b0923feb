package logx

const (
	TagUndef               = "undef"
	TagRequestIn           = "request_in"
	TagRequestOut          = "request_out"
	TagSpanEnd             = "span_end"
	TagSpanDropped         = "span_dropped"
	TagSpanExportFailure   = "span_export_failure"
	TagTraceContextInvalid = "trace_context_invalid"
	TagHttpSuccess         = "http_success"
	TagHttpFailure         = "http_failure"
	TagStartup             = "startup"
	TagShutdown            = "shutdown"

	Cost = "cost"
	Msg  = "msg"
	Err  = "err"

	TraceID  = "trace_id"
	SpanID   = "span_id"
	ParentID = "parent_span_id"
	SpanName = "span_name"
	Status   = "status"

	Remote   = "remote"
	Method   = "method"
	URL      = "url"
	Path     = "path"
	Route    = "route"
	Query    = "query"
	Request  = "request"
	Body     = "body"
	Response = "response"

	Attempt     = "attempt"
	MaxAttempts = "max_attempts"
)
