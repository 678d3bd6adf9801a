// Package rpc exposes a blob store over gRPC
// and implements a blob store that is the client side of such a connection.
// Messages are CBOR-encoded.
package rpc

import (
	context "context"
	"io"

	"github.com/pkg/errors"
	grpc "google.golang.org/grpc"
	codes "google.golang.org/grpc/codes"
	status "google.golang.org/grpc/status"

	"github.com/bobg/ethbs"
	"github.com/bobg/ethbs/store"
)

var _ ethbs.Store = &Client{}

// Client is a blob store backed by a remote Server.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) invoke(ctx context.Context, method string, in, out interface{}) error {
	return c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, grpc.CallContentSubtype(CodecName))
}

func (c *Client) Get(ctx context.Context, cid ethbs.CID) ([]byte, error) {
	var resp GetResponse
	err := c.invoke(ctx, "Get", &GetRequest{CID: cid.Bytes()}, &resp)
	if code := status.Code(err); code == codes.NotFound {
		return nil, errors.Wrapf(ethbs.ErrNotFound, "getting %s", cid)
	}
	if err != nil {
		return nil, err
	}
	return resp.Blob, nil
}

func (c *Client) ListRefs(ctx context.Context, start ethbs.CID, f func(ethbs.CID) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.cc.NewStream(ctx, &storeServiceDesc.Streams[0], "/"+serviceName+"/ListRefs", grpc.CallContentSubtype(CodecName))
	if err != nil {
		return err
	}
	if err = stream.SendMsg(&ListRefsRequest{Start: start.Bytes()}); err != nil {
		return errors.Wrap(err, "sending request")
	}
	if err = stream.CloseSend(); err != nil {
		return errors.Wrap(err, "closing request stream")
	}
	for {
		var resp ListRefsResponse
		err := stream.RecvMsg(&resp)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "receiving response")
		}
		cid, err := ethbs.CIDFromBytes(resp.CID)
		if err != nil {
			return errors.Wrap(err, "parsing CID in response")
		}
		err = f(cid)
		if err != nil {
			return err
		}
	}
}

func (c *Client) Put(ctx context.Context, codec ethbs.Codec, blob []byte) (ethbs.CID, bool, error) {
	var resp PutResponse
	err := c.invoke(ctx, "Put", &PutRequest{Codec: uint64(codec), Blob: blob}, &resp)
	if err != nil {
		return ethbs.Zero, false, err
	}
	cid, err := ethbs.CIDFromBytes(resp.CID)
	if err != nil {
		return ethbs.Zero, false, errors.Wrap(err, "parsing CID in response")
	}
	return cid, resp.Added, nil
}

func init() {
	store.Register("rpc", func(_ context.Context, conf map[string]interface{}) (ethbs.Store, error) {
		addr, ok := conf["addr"].(string)
		if !ok {
			return nil, errors.New(`missing "addr" parameter`)
		}
		insecure, _ := conf["insecure"].(bool)
		var opts []grpc.DialOption
		if insecure {
			opts = append(opts, grpc.WithInsecure())
		}
		cc, err := grpc.Dial(addr, opts...)
		if err != nil {
			return nil, errors.Wrapf(err, "connecting to %s", addr)
		}
		return NewClient(cc), nil
	})
}
