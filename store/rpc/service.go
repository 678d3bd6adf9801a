package rpc

import (
	context "context"

	grpc "google.golang.org/grpc"
)

// Request and response messages.
// Fields are keyed by small integers on the wire.

type GetRequest struct {
	CID []byte `cbor:"1,keyasint"`
}

type GetResponse struct {
	Blob []byte `cbor:"1,keyasint"`
}

type PutRequest struct {
	Codec uint64 `cbor:"1,keyasint"`
	Blob  []byte `cbor:"2,keyasint"`
}

type PutResponse struct {
	CID   []byte `cbor:"1,keyasint"`
	Added bool   `cbor:"2,keyasint"`
}

type ListRefsRequest struct {
	Start []byte `cbor:"1,keyasint"`
}

type ListRefsResponse struct {
	CID []byte `cbor:"1,keyasint"`
}

// StoreServer is the server API for the Store service.
type StoreServer interface {
	Get(context.Context, *GetRequest) (*GetResponse, error)
	Put(context.Context, *PutRequest) (*PutResponse, error)
	ListRefs(*ListRefsRequest, Store_ListRefsServer) error
}

// Store_ListRefsServer is the server side of the ListRefs stream.
type Store_ListRefsServer interface {
	Send(*ListRefsResponse) error
	grpc.ServerStream
}

type storeListRefsServer struct {
	grpc.ServerStream
}

func (x *storeListRefsServer) Send(m *ListRefsResponse) error {
	return x.ServerStream.SendMsg(m)
}

const serviceName = "ethbs.Store"

// RegisterStoreServer registers srv with s.
func RegisterStoreServer(s *grpc.Server, srv StoreServer) {
	s.RegisterService(&storeServiceDesc, srv)
}

func storeGetHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StoreServer).Get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + serviceName + "/Get",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StoreServer).Get(ctx, req.(*GetRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func storePutHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PutRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StoreServer).Put(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + serviceName + "/Put",
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StoreServer).Put(ctx, req.(*PutRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func storeListRefsHandler(srv interface{}, stream grpc.ServerStream) error {
	m := new(ListRefsRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(StoreServer).ListRefs(m, &storeListRefsServer{stream})
}

var storeServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*StoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Get",
			Handler:    storeGetHandler,
		},
		{
			MethodName: "Put",
			Handler:    storePutHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "ListRefs",
			Handler:       storeListRefsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "ethbs/store",
}
