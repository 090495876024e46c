package tracing

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// HTTPMiddleware creates Gin middleware for HTTP tracing
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID, parentID := Extract(c.GetHeader)
		ctx := WithRemote(c.Request.Context(), traceID, parentID)

		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		span, ctx := tracer.StartSpan(ctx, c.Request.Method+" "+name)
		span.SetTag("http.method", c.Request.Method)
		span.SetTag("http.path", c.Request.URL.Path)
		if session := c.Param("id"); session != "" {
			span.SetTag("session_id", session)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Header(HeaderTraceID, string(span.TraceID))
		c.Header(HeaderSpanID, string(span.SpanID))

		c.Next()

		span.SetStatus(c.Writer.Status())
		span.SetTag("http.status", strconv.Itoa(c.Writer.Status()))
		if len(c.Errors) > 0 {
			span.SetError(c.Errors.Last())
		}

		span.Finish()
		tracer.Submit(span)
	}
}

func fromIncoming(ctx context.Context) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx
	}
	traceID, parentID := Extract(func(key string) string {
		if vals := md.Get(strings.ToLower(key)); len(vals) > 0 {
			return vals[0]
		}
		return ""
	})
	return WithRemote(ctx, traceID, parentID)
}

func finishRPC(tracer *Tracer, span *Span, err error) {
	if err != nil {
		span.SetError(err)
		span.SetTag("rpc.code", status.Code(err).String())
	} else {
		span.SetStatus(200)
	}
	span.Finish()
	tracer.Submit(span)
}

// GRPCUnaryInterceptor creates a gRPC unary interceptor for tracing
func GRPCUnaryInterceptor(tracer *Tracer) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		span, ctx := tracer.StartSpan(fromIncoming(ctx), info.FullMethod)
		span.SetTag("rpc.system", "grpc")

		resp, err := handler(ctx, req)
		finishRPC(tracer, span, err)
		return resp, err
	}
}

// GRPCStreamInterceptor creates a gRPC stream interceptor for tracing.
// Health Watch streams stay open for as long as a client is interested in
// a session, so the span covers the whole subscription.
func GRPCStreamInterceptor(tracer *Tracer) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		span, ctx := tracer.StartSpan(fromIncoming(ss.Context()), info.FullMethod)
		span.SetTag("rpc.system", "grpc")
		span.SetTag("rpc.streaming", "true")

		err := handler(srv, &tracedServerStream{ServerStream: ss, ctx: ctx})
		finishRPC(tracer, span, err)
		return err
	}
}

type tracedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *tracedServerStream) Context() context.Context {
	return s.ctx
}

// GRPCClientInterceptor starts a client span and propagates its context.
func GRPCClientInterceptor(tracer *Tracer) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		span, ctx := tracer.StartSpan(ctx, method)
		span.SetTag("rpc.system", "grpc")
		span.SetTag("span.kind", "client")

		md := metadata.MD{}
		Inject(ctx, func(key, value string) {
			md.Set(strings.ToLower(key), value)
		})
		ctx = metadata.NewOutgoingContext(ctx, md)

		err := invoker(ctx, method, req, reply, cc, opts...)
		finishRPC(tracer, span, err)
		return err
	}
}
