package agent

import (
	"context"

	"github.com/ashureev/outreach-agent/internal/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"
)

// serviceDesc describes the agent service without generated stubs: both
// messages are google.protobuf.Struct.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BrowserAgent)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RunTask", Handler: runTaskHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "outreach/v1/agent.proto",
}

// RegisterServer serves impl as the agent service on s, together with a
// health service reporting SERVING. It is used by local fakes and
// integration tests.
func RegisterServer(s *grpc.Server, impl BrowserAgent) *health.Server {
	s.RegisterService(&serviceDesc, impl)
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return hs
}

func runTaskHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := &structpb.Struct{}
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req any) (any, error) {
		summary, err := srv.(BrowserAgent).Run(ctx, decodeRequest(req.(*structpb.Struct)))
		fields := map[string]*structpb.Value{
			fieldSummary: structpb.NewStringValue(summary),
		}
		if err != nil {
			fields[fieldError] = structpb.NewStringValue(err.Error())
		}
		return &structpb.Struct{Fields: fields}, nil
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: runTaskMethod}
	return interceptor(ctx, in, info, handler)
}

func decodeRequest(in *structpb.Struct) TaskRequest {
	f := in.GetFields()
	return TaskRequest{
		RunID:       f[fieldRunID].GetStringValue(),
		Task:        domain.TaskKind(f[fieldTask].GetStringValue()),
		Instruction: f[fieldInstruction].GetStringValue(),
		Browser: domain.BrowserContext{
			ID:       f[fieldBrowserContextID].GetStringValue(),
			Endpoint: f[fieldBrowserEndpoint].GetStringValue(),
		},
		DryRun: f[fieldDryRun].GetBoolValue(),
	}
}
