package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/joseph-ayodele/examlens/internal/app"
	"github.com/joseph-ayodele/examlens/internal/common"
	"github.com/joseph-ayodele/examlens/internal/repository"
	"github.com/joseph-ayodele/examlens/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	grpcAddr := flag.String("grpc", "", "query a running daemon at this address instead of opening the store")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if *grpcAddr != "" {
		remote(ctx, *grpcAddr)
		return
	}

	cfg, err := common.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(false); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	store, err := repository.Open(ctx, cfg.Store, app.NewLogger("warn"))
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("ERROR: closing store: %v", err)
		}
	}()

	if err := store.Ping(ctx); err != nil {
		log.Fatalf("store health: FAIL (%v)", err)
	}
	log.Printf("store health: OK (backend=%s)", cfg.Store.Backend)

	out, err := store.ReadCurrent(ctx)
	if errors.Is(err, common.ErrNotAvailable) {
		log.Println("current outcome: not available")
		return
	}
	if err != nil {
		log.Fatalf("reading current outcome: %v", err)
	}
	log.Printf("current outcome: kind=%s run_id=%q completed_at=%s", out.Kind(), out.RunID, out.CompletedAt.Format(time.RFC3339))
	if out.IsError() {
		log.Printf("- stage=%s error=%q", out.Error.Stage, out.Error.Message)
		return
	}
	for _, b := range out.Result.Breakdown() {
		log.Printf("- %s: %d questions", b.ID, b.Value)
	}
}

func remote(ctx context.Context, addr string) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("dial %s: %v", addr, err)
	}
	defer conn.Close()

	st, err := server.NewResultClient(conn).GetCurrent(ctx)
	if err != nil {
		log.Fatalf("GetCurrent: %v", err)
	}
	b, err := protojson.MarshalOptions{Multiline: true}.Marshal(st)
	if err != nil {
		log.Fatalf("encode: %v", err)
	}
	log.Printf("current outcome from %s:\n%s", addr, b)
}
