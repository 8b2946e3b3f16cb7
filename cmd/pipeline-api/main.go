package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-ml-pipeline/internal/api"
	"go-ml-pipeline/internal/api/handler"
	"go-ml-pipeline/internal/artifacts"
	"go-ml-pipeline/internal/config"
	"go-ml-pipeline/internal/env"
	"go-ml-pipeline/internal/logger"
	"go-ml-pipeline/internal/store"
	"go-ml-pipeline/pkg/router"
)

func main() {
	configPath := flag.String("config", "", "server config; only the run section is read and validated")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run, err := config.LoadRun(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	if run.Database == "" {
		run.Database = "pipeline.db"
	}

	addr := env.String("PIPELINE_HTTP_ADDR", ":8080")
	shutdownTimeout, err := env.Duration("PIPELINE_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	runTimeout, err := env.Duration("PIPELINE_RUN_TIMEOUT", 30*time.Minute)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	log, err := logger.New(logger.Config{
		Dir:    run.LogsDir,
		Level:  run.LogLevel,
		Stdout: true,
		Name:   "pipeline-api",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}
	defer log.Close()

	st, err := store.Open(ctx, run.Database)
	if err != nil {
		log.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	openSink := func(ctx context.Context, name string) (artifacts.Sink, error) {
		return artifacts.Open(ctx, run.ArtifactsDir, run.ObjectStore, name)
	}
	h := handler.New(ctx, st, openSink, log.Logger,
		handler.WithRunTimeout(runTimeout), handler.WithDataRoot(run.DataDir))

	r := router.New(log.Logger)
	api.RegisterRoutes(r, h)
	srv := r.Server(addr)

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown", "error", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", "error", err)
			os.Exit(1)
		}
	}

	// background runs see the cancelled context between stages
	h.Wait()
	log.Info("http server stopped")
}
