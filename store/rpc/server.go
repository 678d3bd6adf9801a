package rpc

import (
	context "context"

	"github.com/pkg/errors"
	codes "google.golang.org/grpc/codes"
	status "google.golang.org/grpc/status"

	"github.com/bobg/ethbs"
)

var _ StoreServer = &Server{}

// Server exposes an ethbs.Store over gRPC.
type Server struct {
	s ethbs.Store
}

func NewServer(s ethbs.Store) *Server {
	return &Server{s: s}
}

func (s *Server) Get(ctx context.Context, req *GetRequest) (*GetResponse, error) {
	c, err := ethbs.CIDFromBytes(req.CID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	blob, err := s.s.Get(ctx, c)
	if errors.Is(err, ethbs.ErrNotFound) {
		return nil, status.Errorf(codes.NotFound, "%s not found", c)
	}
	if err != nil {
		return nil, err
	}
	return &GetResponse{Blob: blob}, nil
}

func (s *Server) Put(ctx context.Context, req *PutRequest) (*PutResponse, error) {
	c, added, err := s.s.Put(ctx, ethbs.Codec(req.Codec), req.Blob)
	if err != nil {
		return nil, err
	}
	return &PutResponse{CID: c.Bytes(), Added: added}, nil
}

func (s *Server) ListRefs(req *ListRefsRequest, srv Store_ListRefsServer) error {
	start := ethbs.Zero
	if len(req.Start) > 0 {
		var err error
		start, err = ethbs.CIDFromBytes(req.Start)
		if err != nil {
			return status.Error(codes.InvalidArgument, err.Error())
		}
	}
	return s.s.ListRefs(srv.Context(), start, func(c ethbs.CID) error {
		return srv.Send(&ListRefsResponse{CID: c.Bytes()})
	})
}
