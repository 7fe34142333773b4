package observability

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"scribe-mcp-gateway/internal/observability/metrics"
)

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f *fakeStream) Context() context.Context { return f.ctx }

func TestStreamServerInterceptor_MetersTrackedStreams(t *testing.T) {
	m := metrics.NewMetricsWith(prometheus.NewRegistry())
	intercept := StreamServerInterceptor(m, "/scribe.mcp.v1.Gateway/")

	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9}})
	ss := &fakeStream{ctx: ctx}

	var active float64
	var sawLogger bool
	handler := func(_ any, stream grpc.ServerStream) error {
		active = testutil.ToFloat64(m.StreamsActive)
		sawLogger = zerolog.Ctx(stream.Context()).GetLevel() != zerolog.Disabled
		return nil
	}

	info := &grpc.StreamServerInfo{FullMethod: "/scribe.mcp.v1.Gateway/Session"}
	if err := intercept(nil, ss, info, handler); err != nil {
		t.Fatal(err)
	}
	if active != 1 {
		t.Errorf("streams active during call = %v, want 1", active)
	}
	if !sawLogger {
		t.Error("handler should see a call logger")
	}
	if got := testutil.ToFloat64(m.StreamsActive); got != 0 {
		t.Errorf("streams active after call = %v, want 0", got)
	}

	info = &grpc.StreamServerInfo{FullMethod: "/grpc.health.v1.Health/Watch"}
	intercept(nil, ss, info, func(any, grpc.ServerStream) error {
		if got := testutil.ToFloat64(m.StreamsActive); got != 0 {
			t.Errorf("untracked stream counted, active = %v", got)
		}
		return nil
	})
}

func TestStreamServerInterceptor_PassesErrorThrough(t *testing.T) {
	intercept := StreamServerInterceptor(metrics.NewMetricsWith(prometheus.NewRegistry()))
	want := status.Error(codes.Internal, "boom")

	err := intercept(nil, &fakeStream{ctx: context.Background()}, &grpc.StreamServerInfo{FullMethod: "/x/y"},
		func(any, grpc.ServerStream) error { return want })
	if !errors.Is(err, want) {
		t.Errorf("err = %v, want %v", err, want)
	}
}

func TestUnaryServerInterceptor(t *testing.T) {
	intercept := UnaryServerInterceptor()
	resp, err := intercept(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"},
		func(_ context.Context, req any) (any, error) { return req.(string) + "-ok", nil })
	if err != nil || resp != "req-ok" {
		t.Errorf("resp = %v, err = %v", resp, err)
	}
}
