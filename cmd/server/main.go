// Package main runs the telemetry service: the HTTP ingest API over a
// PostgreSQL (or in-memory) backend, with an optional ClickHouse
// archive and a websocket measurement stream.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"cenems-telemetry/internal/api"
	"cenems-telemetry/internal/archive"
	"cenems-telemetry/internal/normalization"
	"cenems-telemetry/internal/observability"
	"cenems-telemetry/internal/storage"
	chstore "cenems-telemetry/internal/storage/clickhouse"
	"cenems-telemetry/internal/storage/memory"
	"cenems-telemetry/internal/storage/migrations"
	pgstore "cenems-telemetry/internal/storage/postgres"
	"cenems-telemetry/internal/stream"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	// Parse flags (env vars as defaults)
	listenAddr := flag.String("listen-addr", envOr("LISTEN_ADDR", ":8080"), "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (empty disables archiving)")
	useMemory := flag.Bool("use-memory", envBool("USE_MEMORY"), "Use in-memory storage instead of PostgreSQL")
	suspiciousThreshold := flag.Float64("suspicious-threshold", envFloat("SUSPICIOUS_THRESHOLD", 0), "Delta magnitude flagged as suspicious_jump (0 selects the default)")
	cascadeRepair := flag.Bool("cascade-repair", envBool("CASCADE_REPAIR"), "Extend out-of-order repair beyond the immediate successor")
	archiveBatch := flag.Int("archive-batch", 500, "Archive flush batch size")
	archiveInterval := flag.Duration("archive-interval", 5*time.Second, "Archive flush interval")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage backend
	var backend storage.Backend
	if *useMemory {
		logger.Println("Using in-memory storage")
		backend = memory.NewStore()
	} else {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatalf("Failed to connect to postgres: %v", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			logger.Fatalf("Failed to run postgres migrations: %v", err)
		}
		backend = pgstore.NewDB(pool)
		logger.Println("Connected to postgres, migrations applied")
	}

	pipeline := normalization.NewPipeline(backend, normalization.Options{
		SuspiciousThreshold: *suspiciousThreshold,
		CascadeRepair:       *cascadeRepair,
	})

	// Optional ClickHouse archive
	var wg sync.WaitGroup
	var archiver *archive.Writer
	if *clickhouseDSN != "" && !*useMemory {
		conn, err := migrations.RunClickhouseMigrations(ctx, *clickhouseDSN)
		if err != nil {
			logger.Fatalf("Failed to run clickhouse migrations: %v", err)
		}
		defer conn.Close()

		archiver = archive.NewWriter(
			chstore.NewArchiveStore(conn),
			archive.Config{BatchSize: *archiveBatch, FlushInterval: *archiveInterval},
			log.New(os.Stdout, "[archive] ", log.LstdFlags),
			archive.WithDropHook(observability.RecordArchiveDrop),
			archive.WithFlushHook(observability.RecordArchiveFlush),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			archiver.Run(ctx)
		}()
		logger.Println("Connected to clickhouse, archiving enabled")
	}

	hub := stream.NewHub()

	cfg := api.ServerConfig{
		Pipeline: pipeline,
		Backend:  backend,
		Hub:      hub,
		Logger:   logger,
	}
	if archiver != nil {
		cfg.Archiver = archiver
	}
	srv := api.NewServer(cfg)

	// Shut the archiver down cleanly on SIGINT/SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received %v, shutting down", sig)
		cancel()
		wg.Wait()
		os.Exit(0)
	}()

	logger.Printf("Listening on %s", *listenAddr)
	if err := srv.Run(*listenAddr); err != nil {
		logger.Fatalf("Server failed: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
