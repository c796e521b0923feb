// Package tracex 是请求级链路追踪的核心：span 模型、属性写入、状态映射、
// trace context 编解码，以及把 span 交给导出器的异步处理器。
//
// 当前 span 放在 context.Context 里，跟着请求的逻辑调用链走，不依赖 goroutine
// 本地存储。子 span 从 ctx 中的当前 span 派生；Scope.Close 结束 span，
// 调用方手里的旧 ctx 仍然持有上一层 span，所以嵌套天然是栈。
//
// 典型用法：
//
//	tracer := tracex.NewTracer(tracex.WithBatcher(exp))
//	defer tracer.Shutdown(ctx)
//
//	scope := tracer.StartScoped(ctx, "controller#create")
//	defer scope.Close()
//	scope.Span().SetAttribute("customer.id", id)
package tracex
