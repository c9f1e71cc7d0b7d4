package tracing

import (
	"context"
	"net/http"
	"strings"
	"time"

	obscontext "github.com/anoteng/regnskap/internal/observability/context"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// GinMiddleware opens a server span per request. Ledger and actor are read
// after the handler chain because the ledger group sets them further down.
func GinMiddleware() gin.HandlerFunc {
	tracer := otel.Tracer("regnskap/http")
	return func(c *gin.Context) {
		method := strings.ToUpper(c.Request.Method)
		ctx := ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+method, trace.WithSpanKind(trace.SpanKindServer))
		if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
			ctx = withBaggage(ctx, "request_id", requestID)
		}

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		status := c.Writer.Status()
		reqCtx := c.Request.Context()
		_, actorID := obscontext.ActorFromContext(reqCtx)

		span.SetName("HTTP " + method + " " + route)
		span.SetAttributes(SafeAttributes(
			attribute.String("request_id", obscontext.RequestIDFromContext(reqCtx)),
			attribute.String("ledger.id", obscontext.LedgerLabelFromContext(reqCtx)),
			attribute.String("enduser.id", actorID),
			attribute.String("http.method", method),
			attribute.String("http.route", route),
			attribute.Int("http.status_code", status),
			attribute.Int64("http.server_duration_ms", time.Since(start).Milliseconds()),
		)...)

		switch {
		case status == http.StatusTooManyRequests:
			span.AddEvent("rate_limited")
		case status >= http.StatusInternalServerError:
			if last := c.Errors.Last(); last != nil {
				if safeErr := SafeError(last.Err); safeErr != nil {
					span.RecordError(safeErr)
				}
			}
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		span.End()
	}
}

func withBaggage(ctx context.Context, key, value string) context.Context {
	member, err := baggage.NewMember(key, value)
	if err != nil {
		return ctx
	}
	bag, err := baggage.FromContext(ctx).SetMember(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}
