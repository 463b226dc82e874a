package tracing

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// NewTracer 创建 TracerProvider 并注册为全局实例.
//
// 未启用时返回不导出任何数据的 TracerProvider，且不修改全局状态.
// serviceVersion 为协调器与注册方共享的 SDK 版本.
func NewTracer(cfg *Config, serviceName, serviceVersion string) (*sdktrace.TracerProvider, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if !cfg.Enabled {
		return sdktrace.NewTracerProvider(), nil
	}
	if serviceName == "" {
		return nil, ErrEmptyServiceName
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ep, err := parseEndpoint(cfg.OTLP.Endpoint)
	if err != nil {
		return nil, err
	}
	exp, err := otlptracehttp.New(context.Background(), ep.options(cfg.OTLP.Headers)...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateExporter, err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateResource, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.samplingRate()))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp, nil
}

// endpoint 解析后的 OTLP 导出地址.
type endpoint struct {
	host     string
	path     string
	insecure bool
}

// parseEndpoint 解析 host:port 或完整 URL.
//
// 不带协议或使用 http 时以明文发送，https 时使用 TLS.
func parseEndpoint(raw string) (endpoint, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		if raw == "" {
			return endpoint{}, ErrEmptyEndpoint
		}
		return endpoint{host: raw, insecure: true}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return endpoint{}, fmt.Errorf("%w: %v", ErrInvalidEndpoint, err)
	}
	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return endpoint{}, fmt.Errorf("%w: %s", ErrInvalidEndpoint, raw)
	}
	ep := endpoint{host: u.Host, insecure: u.Scheme == "http"}
	if p := strings.TrimSuffix(u.Path, "/"); p != "" {
		ep.path = p
	}
	return ep, nil
}

func (e endpoint) options(headers map[string]string) []otlptracehttp.Option {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(e.host)}
	if e.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if e.path != "" {
		opts = append(opts, otlptracehttp.WithURLPath(e.path))
	}
	if len(headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(headers))
	}
	return opts
}
