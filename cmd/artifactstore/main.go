package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"git.home.luguber.info/inful/artifactstore/internal/apiclient"
	"git.home.luguber.info/inful/artifactstore/internal/auditstore"
	"git.home.luguber.info/inful/artifactstore/internal/auth"
	"git.home.luguber.info/inful/artifactstore/internal/config"
	"git.home.luguber.info/inful/artifactstore/internal/events"
	"git.home.luguber.info/inful/artifactstore/internal/gateway"
	"git.home.luguber.info/inful/artifactstore/internal/metrics"
	"git.home.luguber.info/inful/artifactstore/internal/server/httpserver"
	"git.home.luguber.info/inful/artifactstore/internal/storage"
	"git.home.luguber.info/inful/artifactstore/internal/sweeper"
	"git.home.luguber.info/inful/artifactstore/internal/version"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"config.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Serve struct {
	} `cmd:"" default:"1" help:"Start the artifact store server"`

	Version struct {
	} `cmd:"" help:"Print version information"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	switch ctx.Command() {
	case "serve", "":
		if err := runServe(); err != nil {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("artifactstore %s (commit %s, built %s)\n", version.Version, version.GitCommit, version.BuildTime)
	default:
		slog.Error("Unknown command", "command", ctx.Command())
		os.Exit(1)
	}
}

func runServe() error {
	config.LoadEnvFile()

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if cfg.Auth.JWTPublicKeyPath == "" {
		return fmt.Errorf("auth.jwt_public_key_path is required")
	}
	verifier, err := auth.NewVerifier(cfg.Auth.JWTPublicKeyPath, cfg.Auth.JWTMaxAge)
	if err != nil {
		return fmt.Errorf("initialize token verifier: %w", err)
	}

	limits := map[storage.Segment]storage.SegmentLimits{
		storage.SegmentBuilds:   segmentLimits(cfg.Segments.Builds),
		storage.SegmentCaches:   segmentLimits(cfg.Segments.Caches),
		storage.SegmentCommands: segmentLimits(cfg.Segments.Commands),
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var backend storage.Backend
	var memBackend *storage.Memory
	switch cfg.Strategy.Plugin {
	case config.StrategyS3:
		backend, err = storage.NewS3(startCtx, storage.S3Config{
			Endpoint:        cfg.Strategy.S3.Endpoint,
			Region:          cfg.Strategy.S3.Region,
			AccessKeyID:     cfg.Strategy.S3.AccessKeyID,
			SecretAccessKey: cfg.Strategy.S3.SecretAccessKey,
			Bucket:          cfg.Strategy.S3.Bucket,
			ForcePathStyle:  cfg.Strategy.S3.ForcePathStyle,
			PartSizeBytes:   cfg.Strategy.S3.PartSizeBytes(),
		})
		if err != nil {
			return fmt.Errorf("initialize s3 backend: %w", err)
		}
	default:
		memBackend = storage.NewMemory(limits)
		backend = memBackend
	}
	defer backend.Close()

	var audit *auditstore.Store
	if cfg.Audit.Path != "" {
		audit, err = auditstore.NewStore(cfg.Audit.Path)
		if err != nil {
			return fmt.Errorf("initialize audit store: %w", err)
		}
		defer audit.Close()
	}

	var publisher *events.Publisher
	if cfg.Events.Enabled {
		publisher, err = events.Connect(cfg.Events.URL, cfg.Events.Subject)
		if err != nil {
			// Events are best-effort; a broker outage must not block startup.
			slog.Warn("Event publisher unavailable", "error", err)
			publisher = nil
		} else {
			defer publisher.Close()
		}
	}

	registry := prom.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewPrometheusRecorder(registry)

	gw := gateway.New(gateway.Options{
		Backend:  backend,
		Limits:   limits,
		Audit:    audit,
		Events:   publisher,
		Recorder: recorder,
	})

	srv := httpserver.New(cfg, httpserver.Options{
		Gateway:        gw,
		Verifier:       verifier,
		API:            apiclient.New(cfg.API.BaseURL, cfg.API.APITimeout()),
		Audit:          audit,
		Recorder:       recorder,
		MetricsHandler: metrics.Handler(registry),
		Version:        version.Version,
		StartTime:      time.Now().UTC(),
	})
	if err := srv.Start(startCtx); err != nil {
		return err
	}

	var sweep *sweeper.Sweeper
	if memBackend != nil {
		sweep, err = sweeper.New(memBackend, time.Minute)
		if err != nil {
			return fmt.Errorf("initialize cache sweeper: %w", err)
		}
		if err := sweep.Start(startCtx); err != nil {
			return fmt.Errorf("start cache sweeper: %w", err)
		}
	}

	slog.Info("Artifact store running",
		slog.String("version", version.Version),
		slog.String("backend", backend.Name()),
		slog.String("strategy", string(cfg.Strategy.Plugin)))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("Shutting down", slog.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
	defer shutdownCancel()

	if sweep != nil {
		if err := sweep.Stop(shutdownCtx); err != nil {
			slog.Warn("Sweeper shutdown failed", "error", err)
		}
	}
	return srv.Stop(shutdownCtx)
}

func segmentLimits(sc config.SegmentConfig) storage.SegmentLimits {
	return storage.SegmentLimits{
		MaxBytes:   sc.MaxByteSize,
		DefaultTTL: time.Duration(sc.ExpiresInSec) * time.Second,
	}
}
