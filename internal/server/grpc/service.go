package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "signoff.v1.Signoff"

// FullMethod returns the gRPC method path of an RPC of the service.
func FullMethod(method string) string {
	return "/" + serviceName + "/" + method
}

type signoffServer interface {
	Ping(context.Context, *PingRequest) (*PingResponse, error)
}

// unary adapts a typed handler to a grpc.MethodDesc.
func unary[Req, Resp any](method string, call func(*GRPCServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(*GRPCServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*signoffServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Ping", (*GRPCServer).Ping),
		unary("CreatePackage", (*GRPCServer).CreatePackage),
		unary("ListPackages", (*GRPCServer).ListPackages),
		unary("GetPackage", (*GRPCServer).GetPackage),
		unary("AddPackageMember", (*GRPCServer).AddPackageMember),
		unary("RemovePackageMember", (*GRPCServer).RemovePackageMember),
		unary("ListPackageMembers", (*GRPCServer).ListPackageMembers),
		unary("CreateGroup", (*GRPCServer).CreateGroup),
		unary("ListGroups", (*GRPCServer).ListGroups),
		unary("AddGroupMember", (*GRPCServer).AddGroupMember),
		unary("RemoveGroupMember", (*GRPCServer).RemoveGroupMember),
		unary("ListGroupMembers", (*GRPCServer).ListGroupMembers),
		unary("RegisterDevice", (*GRPCServer).RegisterDevice),
		unary("ListDevices", (*GRPCServer).ListDevices),
		unary("BeginCredentialRegistration", (*GRPCServer).BeginCredentialRegistration),
		unary("FinishCredentialRegistration", (*GRPCServer).FinishCredentialRegistration),
		unary("ListCredentials", (*GRPCServer).ListCredentials),
		unary("CreateRequest", (*GRPCServer).CreateRequest),
		unary("GetRequest", (*GRPCServer).GetRequest),
		unary("ListRequests", (*GRPCServer).ListRequests),
		unary("RejectRequest", (*GRPCServer).RejectRequest),
		unary("BeginEndorsement", (*GRPCServer).BeginEndorsement),
		unary("Endorse", (*GRPCServer).Endorse),
		unary("GetReceiptURL", (*GRPCServer).GetReceiptURL),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "signoff/v1/signoff.json",
}
