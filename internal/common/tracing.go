package common

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// EndSpan 结束 span；业务守卫失败记为 Unset，其它错误记为 Error
func EndSpan(span trace.Span, err error) {
	if err != nil {
		if be, ok := AsBusinessError(err); ok {
			span.AddEvent("guard_failed")
			span.SetAttributes(guardAttrs(be)...)
		} else {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}

func guardAttrs(be *BusinessError) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int("guard.code", be.Code),
		attribute.String("guard.message", be.Message),
	}
}
