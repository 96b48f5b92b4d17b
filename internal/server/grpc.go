package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/examlens/internal/common"
	"github.com/joseph-ayodele/examlens/internal/repository"
)

const (
	resultServiceName = "examlens.v1.ResultService"
	getCurrentMethod  = "/" + resultServiceName + "/GetCurrent"
)

// ResultServiceServer exposes the current outcome over gRPC. The response is
// the stored document as a google.protobuf.Struct.
type ResultServiceServer interface {
	GetCurrent(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// ResultServiceDesc is registered by hand; the messages are well-known types
// so no generated code is needed.
var ResultServiceDesc = grpc.ServiceDesc{
	ServiceName: resultServiceName,
	HandlerType: (*ResultServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetCurrent", Handler: getCurrentHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "examlens/v1/result.proto",
}

func getCurrentHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ResultServiceServer).GetCurrent(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getCurrentMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ResultServiceServer).GetCurrent(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// ResultService implements ResultServiceServer over a ResultStore.
type ResultService struct {
	store  repository.ResultStore
	logger *slog.Logger
}

func NewResultService(store repository.ResultStore, logger *slog.Logger) *ResultService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultService{store: store, logger: logger}
}

func (s *ResultService) GetCurrent(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	out, err := s.store.ReadCurrent(ctx)
	if err != nil {
		return nil, common.ToGRPCError(err)
	}
	doc, err := out.Document()
	if err != nil {
		s.logger.Error("grpc.result.encode_failed", "error", err)
		return nil, common.InternalError("encode result")
	}
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, common.InternalErrorf("decode result: %v", err)
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, common.InternalErrorf("convert result: %v", err)
	}
	return st, nil
}

// NewGRPCServer registers the result service and the standard health service.
func NewGRPCServer(store repository.ResultStore, logger *slog.Logger) (*grpc.Server, *health.Server) {
	if logger == nil {
		logger = slog.Default()
	}
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(unaryLogger(logger)))
	s.RegisterService(&ResultServiceDesc, NewResultService(store, logger))

	hs := health.NewServer()
	hs.SetServingStatus(resultServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return s, hs
}

func unaryLogger(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		level := slog.LevelInfo
		if err != nil {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "grpc.request", "method", info.FullMethod, "error", err, "duration_ms", time.Since(start).Milliseconds())
		return resp, err
	}
}

// ResultClient calls ResultService on an existing connection.
type ResultClient struct {
	cc grpc.ClientConnInterface
}

func NewResultClient(cc grpc.ClientConnInterface) *ResultClient {
	return &ResultClient{cc: cc}
}

func (c *ResultClient) GetCurrent(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, getCurrentMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
