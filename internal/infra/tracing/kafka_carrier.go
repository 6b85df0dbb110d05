package tracing

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const TracerName = "github.com/RoyceAzure/lab/storefront"

// Init 設定全域 propagator，process 啟動時呼叫一次
func Init() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

// Tracer 回傳服務共用的 tracer，未設定 TracerProvider 時為 noop
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// InjectKafkaHeaders 將 ctx 中的 trace context 寫入 kafka headers
// 已存在的同名 header 會被覆蓋
func InjectKafkaHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if len(carrier) == 0 {
		return headers
	}

	res := make([]kafka.Header, 0, len(headers)+len(carrier))
	for _, h := range headers {
		if _, ok := carrier[h.Key]; ok {
			continue
		}
		res = append(res, h)
	}
	for _, k := range carrier.Keys() {
		res = append(res, kafka.Header{Key: k, Value: []byte(carrier.Get(k))})
	}
	return res
}

// ExtractKafkaHeaders 從 kafka headers 還原 trace context
func ExtractKafkaHeaders(ctx context.Context, headers []kafka.Header) context.Context {
	carrier := propagation.MapCarrier{}
	for _, h := range headers {
		carrier.Set(h.Key, string(h.Value))
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
