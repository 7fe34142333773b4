// Package grpcapi serves the protocol over a bidirectional gRPC stream and
// exposes the health and reflection services.
package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"scribe-mcp-gateway/internal/mcp"
	"scribe-mcp-gateway/internal/observability"
	"scribe-mcp-gateway/internal/observability/logging"
	"scribe-mcp-gateway/internal/observability/metrics"
	"scribe-mcp-gateway/internal/service/pipeline"
	"scribe-mcp-gateway/internal/service/protocol"
	"scribe-mcp-gateway/internal/service/session"
)

const (
	// ServiceName is the fully qualified gateway service name.
	ServiceName = "scribe.mcp.v1.Gateway"
	// SessionMethod is the full method name of the session stream.
	SessionMethod = "/" + ServiceName + "/Session"
)

// gatewayServer is implemented by Server; it exists for grpc.ServiceDesc.
type gatewayServer interface {
	Session(stream grpc.ServerStream) error
}

var gatewayServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*gatewayServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Session",
			Handler:       sessionHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
}

func sessionHandler(srv any, stream grpc.ServerStream) error {
	return srv.(gatewayServer).Session(stream)
}

// Dependencies are the collaborators the gateway service drives.
type Dependencies struct {
	Handler  *protocol.Handler
	Pipeline *pipeline.Service
	Metrics  *metrics.Metrics
}

// Server wraps a grpc.Server with the gateway, health and reflection services registered.
type Server struct {
	grpc     *grpc.Server
	health   *health.Server
	handler  *protocol.Handler
	pipeline *pipeline.Service
}

// New builds the gRPC server. Health starts out NOT_SERVING; call SetServing
// once the process is ready.
func New(deps Dependencies, opts ...grpc.ServerOption) *Server {
	opts = append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(observability.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(observability.StreamServerInterceptor(deps.Metrics, "/"+ServiceName+"/")),
	}, opts...)

	s := &Server{
		grpc:     grpc.NewServer(opts...),
		health:   health.NewServer(),
		handler:  deps.Handler,
		pipeline: deps.Pipeline,
	}

	s.grpc.RegisterService(&gatewayServiceDesc, s)
	grpc_health_v1.RegisterHealthServer(s.grpc, s.health)
	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(s.grpc)

	s.SetServing(false)
	return s
}

// Serve accepts connections on lis until the server stops.
func (s *Server) Serve(lis net.Listener) error {
	log.Info().Str("addr", lis.Addr().String()).Msg("gRPC server started")
	if err := s.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// SetServing flips the overall and per-service health status.
func (s *Server) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// GracefulStop marks the server NOT_SERVING and drains in-flight streams.
func (s *Server) GracefulStop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

// Stop closes all connections immediately.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.Stop()
}

// Session carries one protocol session. The client sends Init, Start, Audio
// and Stop envelopes and receives one reply per request; once Start succeeds
// transcription messages are interleaved with the replies. The stream ends
// after the Stop reply or when the client half-closes.
func (s *Server) Session(stream grpc.ServerStream) error {
	ctx, cancel := context.WithCancel(stream.Context())
	defer cancel()

	out := &sender{stream: stream}
	var (
		owned      *session.Session
		running    bool
		writerDone chan struct{}
	)
	// Teardown only touches the session this stream created; a newer Init
	// for the same id owns its own session and task.
	defer func() {
		if owned != nil {
			s.pipeline.StopSessionFor(owned)
			s.handler.Release(owned)
		}
		cancel()
		if writerDone != nil {
			<-writerDone
		}
	}()

	for {
		var msg mcp.Message
		if err := stream.RecvMsg(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if owned != nil {
			var reason string
			switch {
			case msg.SessionID != owned.ID() || msg.Kind == mcp.KindInit:
				reason = fmt.Sprintf("stream is bound to session %s", owned.ID())
			case !owned.IsActive():
				reason = fmt.Sprintf("session %s was replaced by a newer init", owned.ID())
			}
			if reason != "" {
				if err := out.send(errorMessage(msg, reason)); err != nil {
					return err
				}
				continue
			}
		}

		reply := s.handler.Handle(ctx, msg)
		if err := out.send(reply); err != nil {
			return err
		}
		if reply.Kind == mcp.KindError {
			continue
		}

		switch msg.Kind {
		case mcp.KindInit:
			// An empty id is assigned by the session; the reply carries it.
			sess, ok := s.handler.Session(reply.SessionID)
			if ok {
				owned = sess
			}
		case mcp.KindStart:
			if running || owned == nil {
				continue
			}
			if err := s.pipeline.StartSession(owned); err != nil {
				if err := out.send(errorMessage(msg, err.Error())); err != nil {
					return err
				}
				continue
			}
			running = true
			writerDone = make(chan struct{})
			go func(sess *session.Session) {
				defer close(writerDone)
				for res := range sess.ConsumeResults(ctx) {
					if err := out.send(sess.CreateMessage(mcp.KindTranscription, res)); err != nil {
						logger := logging.FromContext(ctx)
						logger.Debug().Err(err).Str("sessionId", sess.ID()).Msg("Result send failed")
						return
					}
				}
			}(owned)
		case mcp.KindStop:
			return nil
		}
	}
}

// sender serialises writes; grpc.ServerStream.SendMsg is not safe for
// concurrent use.
type sender struct {
	mu     sync.Mutex
	stream grpc.ServerStream
}

func (s *sender) send(m mcp.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream.SendMsg(m)
}

func errorMessage(msg mcp.Message, text string) mcp.Message {
	return mcp.Message{
		Kind:      mcp.KindError,
		SessionID: msg.SessionID,
		Sequence:  msg.Sequence,
		Timestamp: mcp.Now(),
		Payload:   mcp.Error{Code: mcp.ErrorCodeProtocol, Message: text},
	}
}
