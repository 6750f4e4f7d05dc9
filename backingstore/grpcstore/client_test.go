package grpcstore

import (
	"context"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/monofs/monofs/backingstore"
	"github.com/monofs/monofs/backingstore/localrepo"
	"github.com/monofs/monofs/model"
	"github.com/monofs/monofs/monoerr"
	"github.com/monofs/monofs/objectid"
)

func startTestServer(t *testing.T, backend backingstore.Store) *Client {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterServer(srv, backend)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	dialer := func(context.Context, string) (net.Conn, error) { return lis.Dial() }
	conn, err := grpc.NewClient("passthrough:bufconn",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return NewClient(conn)
}

func testFC() backingstore.FetchContext {
	return backingstore.FetchContext{Context: context.Background(), Pid: 1}
}

func TestClientGetBlobRoundTrip(t *testing.T) {
	repo := localrepo.New()
	id := repo.PutBlob([]byte("hello world"))

	client := startTestServer(t, repo)

	blob, err := client.GetBlob(testFC(), id)
	if err != nil {
		t.Fatalf("GetBlob: %v", err)
	}
	if string(blob.Contents) != "hello world" {
		t.Fatalf("got %q", blob.Contents)
	}
}

func TestClientGetTreeRoundTrip(t *testing.T) {
	repo := localrepo.New()
	blobID := repo.PutBlob([]byte("x"))
	treeID := repo.PutTree(model.Tree{Entries: []model.TreeEntry{
		{Name: "x.txt", ID: blobID, Type: model.RegularFile},
	}})

	client := startTestServer(t, repo)

	tree, err := client.GetTree(testFC(), treeID)
	if err != nil {
		t.Fatalf("GetTree: %v", err)
	}
	if len(tree.Entries) != 1 || tree.Entries[0].Name != "x.txt" {
		t.Fatalf("got %+v", tree.Entries)
	}
}

func TestClientGetBlobNotFound(t *testing.T) {
	repo := localrepo.New()
	client := startTestServer(t, repo)

	unknownID, err := objectid.FromHex("deadbeef")
	if err != nil {
		t.Fatalf("FromHex: %v", err)
	}

	if _, err := client.GetBlob(testFC(), unknownID); monoerr.KindOf(err) != monoerr.KindNotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
