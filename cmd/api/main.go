package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"cpeconnect.org/internal/grants"
	"cpeconnect.org/internal/httpapi"
	"cpeconnect.org/internal/obs"
	"cpeconnect.org/internal/store/pg"
	"cpeconnect.org/internal/stream"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("CPE_BUILD_COMMIT"))

	// Postgres when a DSN is configured, in-memory otherwise. The
	// in-memory store keeps local development and demos dependency-free.
	var (
		store grants.Store
		db    *sql.DB
	)
	if dsn := os.Getenv("CPE_PG_DSN"); dsn != "" {
		pgStore, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store = pgStore
		db = pgStore.DB()
	} else {
		log.Print("CPE_PG_DSN not set, using in-memory store")
		store = grants.NewInMemory()
	}

	events := stream.New()
	svc, err := grants.NewService(store, grants.WithNotifier(events))
	if err != nil {
		log.Fatalf("init service: %v", err)
	}

	api := httpapi.New(svc, store, events, httpapi.ReadyProbe{DB: db}, version)

	httpAddr := envOr("CPE_HTTP_ADDR", ":8080")
	srv := &http.Server{
		Addr:              httpAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("starting cpeconnect-api %s on %s", version, httpAddr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// gRPC health endpoint for load balancers that probe over gRPC.
	grpcAddr := envOr("CPE_GRPC_ADDR", ":9090")
	grpcSrv := grpc.NewServer()
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcSrv, healthSrv)
	healthSrv.SetServingStatus("cpeconnect.api", healthpb.HealthCheckResponse_SERVING)
	go func() {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		if err := grpcSrv.Serve(lis); err != nil {
			log.Fatalf("grpc serve: %v", err)
		}
	}()

	obs.SetReady(true)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Print("shutting down")

	obs.SetReady(false)
	healthSrv.SetServingStatus("cpeconnect.api", healthpb.HealthCheckResponse_NOT_SERVING)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	grpcSrv.GracefulStop()
	if db != nil {
		_ = db.Close()
	}
	log.Print("stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
