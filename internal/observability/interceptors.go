package observability

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"scribe-mcp-gateway/internal/observability/logging"
	"scribe-mcp-gateway/internal/observability/metrics"
)

// UnaryServerInterceptor logs unary calls. Only health checks and
// reflection are unary, so they stay at debug.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		logger := callLogger(ctx, info.FullMethod)
		logger.Debug().
			Str("code", status.Code(err).String()).
			Dur("duration", time.Since(start)).
			Msg("gRPC unary call")
		return resp, err
	}
}

// StreamServerInterceptor attaches a call-scoped logger to the stream
// context and logs each stream when it ends. Streams whose full method starts
// with one of tracked are counted in m as transcription streams.
func StreamServerInterceptor(m *metrics.Metrics, tracked ...string) grpc.StreamServerInterceptor {
	if m == nil {
		m = metrics.DefaultMetrics
	}
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		logger := callLogger(ss.Context(), info.FullMethod)

		metered := hasAnyPrefix(info.FullMethod, tracked)
		if metered {
			m.RecordStreamStart()
		}

		err := handler(srv, &loggedStream{ServerStream: ss, ctx: logger.WithContext(ss.Context())})

		duration := time.Since(start)
		if metered {
			m.RecordStreamEnd(duration.Seconds())
		}

		code := status.Code(err)
		ev := logger.Info()
		if code != codes.OK && code != codes.Canceled {
			ev = logger.Warn().Err(err)
		}
		ev.Str("code", code.String()).
			Dur("duration", duration).
			Msg("gRPC stream completed")
		return err
	}
}

// loggedStream overrides Context to carry the call logger.
type loggedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *loggedStream) Context() context.Context {
	return s.ctx
}

func callLogger(ctx context.Context, method string) zerolog.Logger {
	c := logging.WithComponent("grpc").With().Str("method", method)
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		c = c.Str("peer", p.Addr.String())
	}
	return c.Logger()
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
