package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// TracingMiddleware opens one span per request on the global tracer
// provider and echoes the trace id in the Trace-Id header.
func TracingMiddleware(next http.Handler) http.Handler {
	tr := otel.Tracer("classtasks/http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tr.Start(r.Context(), r.Method+" "+r.URL.Path)
		defer span.End()

		if sc := span.SpanContext(); sc.IsValid() {
			w.Header().Set("Trace-Id", sc.TraceID().String())
		}

		sw := &statusWriter{ResponseWriter: w}
		start := time.Now()
		r = r.WithContext(ctx)
		next.ServeHTTP(sw, r)

		span.SetName(r.Method + " " + routePattern(r))
		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
			attribute.String("http.route", routePattern(r)),
			attribute.Int("http.status_code", sw.code()),
			attribute.String("request.id", chimw.GetReqID(ctx)),
			attribute.String("tasks.class_code", r.URL.Query().Get("class_code")),
			attribute.Int64("http.duration_ms", time.Since(start).Milliseconds()),
		)
		if sw.code() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(sw.code()))
		}
	})
}
