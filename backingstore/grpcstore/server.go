package grpcstore

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/monofs/monofs/backingstore"
	"github.com/monofs/monofs/backingstore/wire"
	"github.com/monofs/monofs/model"
	"github.com/monofs/monofs/monoerr"
	"github.com/monofs/monofs/objectid"
)

// backend adapts a backingstore.Store for serving: since
// backingstore.FetchContext wraps a caller-supplied context.Context,
// the server reconstructs it from the request's pid/priority fields
// and the inbound RPC context.
type backend struct {
	store backingstore.Store
}

// RegisterServer attaches store to s under the same service name the
// Client dials, using a hand-written grpc.ServiceDesc since this
// exercise has no protoc step to generate one.
func RegisterServer(s *grpc.Server, store backingstore.Store) {
	s.RegisterService(&serviceDesc, &backend{store: store})
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetRootTree", Handler: handleGetRootTree},
		{MethodName: "GetTree", Handler: handleGetTree},
		{MethodName: "GetBlob", Handler: handleGetBlob},
		{MethodName: "PrefetchBlobs", Handler: handlePrefetchBlobs},
	},
}

func fcFromWire(ctx context.Context, pid, prio int32) backingstore.FetchContext {
	return backingstore.FetchContext{Context: ctx, Pid: pid, Priority: backingstore.Priority(prio)}
}

func toStatus(op string, err error) error {
	if err == nil {
		return nil
	}
	if monoerr.KindOf(err) == monoerr.KindNotFound {
		return status.Error(codes.NotFound, err.Error())
	}
	return status.Error(codes.Unavailable, err.Error())
}

func treeToWire(t model.Tree) wire.TreeMsg {
	entries := make([]wire.TreeEntryMsg, len(t.Entries))
	for i, e := range t.Entries {
		entries[i] = wire.TreeEntryMsg{Name: e.Name, Type: uint8(e.Type), ID: e.ID.String()}
	}
	return wire.TreeMsg{Entries: entries}
}

func handleGetRootTree(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	b := srv.(*backend)
	req := new(wire.GetTreeRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	id, err := objectid.FromHex(req.RootID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	tree, err := b.store.GetRootTree(fcFromWire(ctx, req.Pid, req.Prio), id)
	if err != nil {
		return nil, toStatus("GetRootTree", err)
	}
	resp := treeToWire(tree)
	return &resp, nil
}

func handleGetTree(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	b := srv.(*backend)
	req := new(wire.GetTreeRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	id, err := objectid.FromHex(req.ID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	tree, err := b.store.GetTree(fcFromWire(ctx, req.Pid, req.Prio), id)
	if err != nil {
		return nil, toStatus("GetTree", err)
	}
	resp := treeToWire(tree)
	return &resp, nil
}

func handleGetBlob(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	b := srv.(*backend)
	req := new(wire.GetBlobRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	id, err := objectid.FromHex(req.ID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	blob, err := b.store.GetBlob(fcFromWire(ctx, req.Pid, req.Prio), id)
	if err != nil {
		return nil, toStatus("GetBlob", err)
	}
	resp := wire.BlobMsg{ID: blob.ID.String(), Contents: blob.Contents}
	return &resp, nil
}

func handlePrefetchBlobs(srv any, ctx context.Context, dec func(any) error, _ grpc.UnaryServerInterceptor) (any, error) {
	b := srv.(*backend)
	req := new(wire.PrefetchRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	ids := make([]objectid.ID, 0, len(req.IDs))
	for _, hex := range req.IDs {
		id, err := objectid.FromHex(hex)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	b.store.PrefetchBlobs(fcFromWire(ctx, req.Pid, req.Prio), ids)
	return &wire.PrefetchResponse{}, nil
}
