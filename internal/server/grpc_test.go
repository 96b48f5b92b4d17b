package server

import (
	"context"
	"net"
	"path/filepath"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/joseph-ayodele/examlens/internal/entity"
	"github.com/joseph-ayodele/examlens/internal/repository"
)

func dialBufconn(t *testing.T, store repository.ResultStore) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv, _ := NewGRPCServer(store, quiet)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGRPCGetCurrent(t *testing.T) {
	store, err := repository.NewFileStore(filepath.Join(t.TempDir(), "result.json"), quiet)
	if err != nil {
		t.Fatal(err)
	}
	conn := dialBufconn(t, store)
	client := NewResultClient(conn)
	ctx := context.Background()

	if _, err := client.GetCurrent(ctx); status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound before any run, got %v", err)
	}

	if err := store.Write(ctx, entity.Success("run-1", analysis())); err != nil {
		t.Fatal(err)
	}
	st, err := client.GetCurrent(ctx)
	if err != nil {
		t.Fatalf("get current: %v", err)
	}
	cats := st.GetFields()["Categories"].GetStructValue().GetFields()
	if len(cats) != 5 {
		t.Fatalf("expected 5 categories, got %d", len(cats))
	}
	qs := cats["Kinematics"].GetStructValue().GetFields()["Questions Covered"].GetListValue().GetValues()
	if len(qs) != 2 || qs[0].GetNumberValue() != 1 {
		t.Fatalf("unexpected questions %v", qs)
	}

	hc := healthpb.NewHealthClient(conn)
	resp, err := hc.Check(ctx, &healthpb.HealthCheckRequest{Service: resultServiceName})
	if err != nil || resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("health: %v %v", resp, err)
	}
}
