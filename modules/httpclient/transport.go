package httpclient

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/GoCodeAlone/apphost/modules/httpclient"

// RequestModifier changes outgoing requests before they are sent.
type RequestModifier func(*http.Request)

var sensitiveHeaders = map[string]bool{
	"Authorization":       true,
	"Proxy-Authorization": true,
	"Cookie":              true,
	"Set-Cookie":          true,
	"X-Api-Key":           true,
}

// transport applies modifiers, traces the request and logs the exchange.
type transport struct {
	next      http.RoundTripper
	userAgent string
	modifiers []RequestModifier
	logger    *slog.Logger
	verbose   bool
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	if req.Header.Get("User-Agent") == "" && t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	for _, modify := range t.modifiers {
		modify(req)
	}

	ctx, span := otel.Tracer(tracerName).Start(req.Context(), "HTTP "+req.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", req.Method),
			attribute.String("url.full", req.URL.Redacted()),
		))
	defer span.End()
	req = req.WithContext(ctx)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	elapsed := time.Since(start)

	level := slog.LevelDebug
	if t.verbose {
		level = slog.LevelInfo
	}
	attrs := []any{"method", req.Method, "url", req.URL.Redacted(), "duration", elapsed}
	if t.verbose {
		attrs = append(attrs, "requestHeaders", headerValue(req.Header))
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.logger.Log(ctx, slog.LevelWarn, "HTTP request failed", append(attrs, "error", err)...)
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, resp.Status)
	}
	attrs = append(attrs, "status", resp.StatusCode)
	if t.verbose {
		attrs = append(attrs, "responseHeaders", headerValue(resp.Header))
	}
	t.logger.Log(ctx, level, "HTTP request", attrs...)
	return resp, nil
}

// headerValue logs headers as a group with credentials redacted.
func headerValue(h http.Header) slog.Value {
	attrs := make([]slog.Attr, 0, len(h))
	for name, values := range h {
		v := "[REDACTED]"
		if !sensitiveHeaders[http.CanonicalHeaderKey(name)] {
			v = strings.Join(values, ", ")
		}
		attrs = append(attrs, slog.String(name, v))
	}
	return slog.GroupValue(attrs...)
}
