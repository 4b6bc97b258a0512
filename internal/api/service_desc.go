package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "mirador.remediation.v1.Remediation"

// RemediationServer is the server API for the Remediation service. Payloads
// are google.protobuf.Struct documents whose fields are described by the
// ToProto*/FromProto* helpers in this package.
type RemediationServer interface {
	Trigger(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListActions(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	UpdateAction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetStats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListResolutions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	HealthCheck(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterRemediationServer registers srv on s.
func RegisterRemediationServer(s grpc.ServiceRegistrar, srv RemediationServer) {
	s.RegisterService(&RemediationServiceDesc, srv)
}

// unary builds a method handler for a request type Req.
func unary[Req any](method string, call func(RemediationServer, context.Context, *Req) (*structpb.Struct, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(RemediationServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(RemediationServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// RemediationServiceDesc describes the Remediation service for grpc.Server.
var RemediationServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RemediationServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Trigger", RemediationServer.Trigger),
		unary("ListActions", RemediationServer.ListActions),
		unary("UpdateAction", RemediationServer.UpdateAction),
		unary("GetStats", RemediationServer.GetStats),
		unary("GetStatus", RemediationServer.GetStatus),
		unary("ListResolutions", RemediationServer.ListResolutions),
		unary("HealthCheck", RemediationServer.HealthCheck),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mirador/remediation/v1/remediation.proto",
}

// RemediationClient is a thin client for the Remediation service.
type RemediationClient struct {
	cc grpc.ClientConnInterface
}

// NewRemediationClient wraps an established connection.
func NewRemediationClient(cc grpc.ClientConnInterface) *RemediationClient {
	return &RemediationClient{cc: cc}
}

func (c *RemediationClient) invoke(ctx context.Context, method string, in any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Trigger calls Remediation.Trigger.
func (c *RemediationClient) Trigger(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Trigger", in, opts...)
}

// ListActions calls Remediation.ListActions.
func (c *RemediationClient) ListActions(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListActions", &emptypb.Empty{}, opts...)
}

// UpdateAction calls Remediation.UpdateAction.
func (c *RemediationClient) UpdateAction(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "UpdateAction", in, opts...)
}

// GetStats calls Remediation.GetStats.
func (c *RemediationClient) GetStats(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetStats", &emptypb.Empty{}, opts...)
}

// GetStatus calls Remediation.GetStatus.
func (c *RemediationClient) GetStatus(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetStatus", &emptypb.Empty{}, opts...)
}

// ListResolutions calls Remediation.ListResolutions.
func (c *RemediationClient) ListResolutions(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListResolutions", in, opts...)
}

// HealthCheck calls Remediation.HealthCheck.
func (c *RemediationClient) HealthCheck(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "HealthCheck", &emptypb.Empty{}, opts...)
}
