package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/sudomakeinstall/cardio/internal/api"
	"github.com/sudomakeinstall/cardio/internal/logger"
	"github.com/sudomakeinstall/cardio/internal/version"
	"github.com/sudomakeinstall/cardio/pkg/config"
	"github.com/sudomakeinstall/cardio/pkg/rotation"
)

func main() {
	// Parse command line arguments
	fs := flag.NewFlagSet("cardio", flag.ExitOnError)
	builder := config.NewBuilder(fs)
	initConfig := fs.Bool("init-config", false, "Write a default configuration file to -config and exit")
	exportDir := fs.String("export", "", "Export JPEG slices of every volume to this directory and exit")
	exportCount := fs.Int("export-count", 32, "Number of slices per view to export")
	exportRotations := fs.String("export-rotations", "", "Rotation file (store path) to cut exported slices with")
	fs.Parse(os.Args[1:])

	if *initConfig {
		if err := config.CreateDefaultConfigFile(builder.ConfigPath()); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", builder.ConfigPath())
		return
	}

	cfg, err := builder.Build()
	if err != nil {
		log.Fatalf("%v", err)
	}
	level, _ := logger.ParseLogLevel(cfg.Logging.Level)

	fmt.Println("================================")
	fmt.Println("CARDIO MULTI-PLANAR RECONSTRUCTION VIEWER")
	fmt.Printf("Version %s\n", version.Version)
	fmt.Println("================================")

	if *exportDir != "" {
		if err := runExport(cfg, logger.NewStdErrLogger(level), *exportDir, *exportCount, *exportRotations); err != nil {
			log.Fatalf("Export failed: %v", err)
		}
		fmt.Println("Slice export completed!")
		return
	}

	if err := runServer(cfg, logger.NewStdOutLogger(level)); err != nil {
		log.Fatalf("%v", err)
	}
}

func runExport(cfg *config.Config, l logger.ILogger, dir string, count int, rotationsPath string) error {
	volumes, err := loadVolumes(cfg, l)
	if err != nil {
		return err
	}

	var seq *rotation.Sequence
	if rotationsPath != "" {
		store, err := makeStore(cfg)
		if err != nil {
			return err
		}
		if seq, err = rotation.Load(store, rotationsPath); err != nil {
			return err
		}
	}

	for _, entry := range volumes {
		if seq != nil && seq.Metadata.VolumeLabel != entry.Volume.Label {
			continue
		}
		if err := exportSlices(entry.Volume, seq, count, dir); err != nil {
			return err
		}
	}
	return nil
}

func runServer(cfg *config.Config, l logger.ILogger) error {
	reportErrors := cfg.Sentry.DSN != ""
	if reportErrors {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			Release:     version.Producer(),
		}); err != nil {
			l.Errorf("Sentry initialization failed: %v", err)
			reportErrors = false
		}
		defer sentry.Flush(2 * time.Second)
	}

	volumes, err := loadVolumes(cfg, l)
	if err != nil {
		return err
	}
	store, err := makeStore(cfg)
	if err != nil {
		return err
	}
	opts, err := sessionOptions(cfg, store, l)
	if err != nil {
		return err
	}

	session, err := api.NewSession(volumes, opts)
	if err != nil {
		return err
	}
	defer session.Close()

	server := api.NewServer(session, l, api.ServerOptions{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Sentry:         reportErrors,
	})
	defer server.Close()

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		l.Infof("cardio %s listening on %s", version.Version, cfg.Server.Addr)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		l.Infof("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
