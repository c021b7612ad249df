// main package for the coqui-api synthesis service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"github.com/ttsforge/coqui-api/internal/catalog"
	"github.com/ttsforge/coqui-api/internal/config"
	"github.com/ttsforge/coqui-api/internal/engine"
	"github.com/ttsforge/coqui-api/internal/objectstore"
	"github.com/ttsforge/coqui-api/internal/server"
	"github.com/ttsforge/coqui-api/internal/synth"
	"github.com/ttsforge/coqui-api/internal/textproc"
	"github.com/ttsforge/coqui-api/internal/worker"
)

const (
	logFileName          = "coqui-api.log"
	bootstrapLogFileName = "coqui-api-bootstrap.log"
	directoryPerms       = 0o750
	httpReadTimeout      = 30 * time.Second
	httpShutdownTimeout  = 10 * time.Second
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFileName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	return runService(cfg, finalLog)
}

func runService(cfg *config.Config, log *logger.Logger) error {
	bootstrapErr := bootstrapDirectories(cfg)
	if bootstrapErr != nil {
		return bootstrapErr
	}

	speaker, models := buildPipeline(cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workerErrChan, natsCleanup, workerErr := startWorker(ctx, cfg, speaker, log)
	if workerErr != nil {
		return workerErr
	}

	defer natsCleanup()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress(),
		Handler:           server.New(speaker, models, cfg.Paths.OutputDir, cfg.ReferenceVoicePath(), log).Handler(),
		ReadHeaderTimeout: httpReadTimeout,
	}

	httpErrChan := make(chan error, 1)

	go func() {
		httpErrChan <- httpServer.ListenAndServe()
	}()

	log.System("CoquiTTS API listening on %s", cfg.ListenAddress())

	return waitForShutdown(ctx, httpServer, httpErrChan, workerErrChan, log)
}

// buildPipeline assembles the synthesis chain shared by the HTTP server and
// the NATS worker.
func buildPipeline(cfg *config.Config, log *logger.Logger) (*synth.Speaker, *catalog.Catalog) {
	chunkEngine := engine.New(engine.Options{
		Binary:          cfg.Engine.Binary,
		TTSHome:         cfg.Engine.TTSHome,
		OutputDir:       cfg.Paths.OutputDir,
		UseCUDA:         cfg.Engine.UseCUDA,
		StandardTimeout: time.Duration(cfg.Engine.StandardTimeoutSeconds) * time.Second,
		CloningTimeout:  time.Duration(cfg.Engine.CloningTimeoutSeconds) * time.Second,
	}, log)

	rewriter := textproc.NewRewriter(textproc.DefaultAbbreviations)
	speaker := synth.New(chunkEngine, rewriter, cfg.Paths.OutputDir, log)

	models := catalog.New(
		cfg.Engine.Binary,
		cfg.Engine.TTSHome,
		time.Duration(cfg.Engine.ListModelsTimeoutSeconds)*time.Second,
		log,
	)

	return speaker, models
}

func bootstrapDirectories(cfg *config.Config) error {
	for _, dir := range []string{cfg.Paths.OutputDir, cfg.Paths.ReferenceAudioDir} {
		mkdirErr := os.MkdirAll(dir, directoryPerms)
		if mkdirErr != nil {
			return fmt.Errorf("failed to create directory '%s': %w", dir, mkdirErr)
		}
	}

	return nil
}

// startWorker connects the NATS job worker when a NATS URL is configured.
// The returned channel is nil when the worker is disabled.
func startWorker(
	ctx context.Context,
	cfg *config.Config,
	speaker *synth.Speaker,
	log *logger.Logger,
) (chan error, func(), error) {
	noop := func() {}

	if cfg.NATS.URL == "" {
		return nil, noop, nil
	}

	natsConnection, connectErr := nats.Connect(cfg.NATS.URL)
	if connectErr != nil {
		return nil, noop, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, connectErr)
	}

	jetstreamContext, jetstreamErr := natsConnection.JetStream()
	if jetstreamErr != nil {
		natsConnection.Close()

		return nil, noop, fmt.Errorf("failed to create JetStream context: %w", jetstreamErr)
	}

	store, storeErr := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if storeErr != nil {
		natsConnection.Close()

		return nil, noop, fmt.Errorf("failed to open object store: %w", storeErr)
	}

	natsWorker, workerErr := worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.JobsSubject,
		store,
		speaker,
		cfg.Paths.ReferenceAudioDir,
		log,
	)
	if workerErr != nil {
		natsConnection.Close()

		return nil, noop, fmt.Errorf("failed to create NATS worker: %w", workerErr)
	}

	workerErrChan := make(chan error, 1)

	go func() {
		workerErrChan <- natsWorker.Run(ctx)
	}()

	log.System("NATS worker listening for jobs on subject: %s", cfg.NATS.JobsSubject)

	return workerErrChan, natsConnection.Close, nil
}

func waitForShutdown(
	ctx context.Context,
	httpServer *http.Server,
	httpErrChan chan error,
	workerErrChan chan error,
	log *logger.Logger,
) error {
	select {
	case <-ctx.Done():
		log.System("Shutdown signal received, stopping HTTP server")
	case serveErr := <-httpErrChan:
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", serveErr)
		}

		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()

	shutdownErr := httpServer.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		return fmt.Errorf("failed to shut down http server: %w", shutdownErr)
	}

	if workerErrChan != nil {
		workerShutdownErr := <-workerErrChan
		if workerShutdownErr != nil {
			return fmt.Errorf("worker failed during shutdown: %w", workerShutdownErr)
		}
	}

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
