// Command vocifer streams audio to a live transcription endpoint and prints
// the finalized transcript. Input comes from a WAV file; the session keeps
// recording through reconnects and degrades to batch transcription when the
// live endpoint runs out of quota.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anvret/vocifer/internal/app"
	"github.com/anvret/vocifer/internal/audio"
	"github.com/anvret/vocifer/internal/config"
	"github.com/anvret/vocifer/internal/observe"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	inputPath := flag.String("input", "", "WAV file to transcribe; without it the service idles until audio is pushed")
	watch := flag.Bool("watch", false, "reload hot-tunable settings when the config file changes")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "vocifer: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "vocifer: %v\n", err)
		}
		return 1
	}

	level := new(slog.LevelVar)
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("vocifer starting",
		"config", *configPath,
		"model", cfg.Stream.Model,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "vocifer",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	opts := []app.Option{app.WithLogLevelVar(level)}

	if *inputPath != "" {
		f, err := os.Open(*inputPath)
		if err != nil {
			slog.Error("cannot open input", "path", *inputPath, "err", err)
			return 1
		}
		source, err := audio.NewFileSource(f, cfg.Audio.FrameSize, cfg.Audio.Realtime)
		f.Close()
		if err != nil {
			slog.Error("cannot decode input", "path", *inputPath, "err", err)
			return 1
		}
		if source.SampleRate() != cfg.Audio.SampleRate {
			slog.Warn("input sample rate differs from configured rate",
				"input", source.SampleRate(),
				"configured", cfg.Audio.SampleRate)
		}
		opts = append(opts, app.WithSource(source))
	}

	if *watch {
		opts = append(opts, app.WithConfigWatch(*configPath))
	}

	application, err := app.New(cfg, opts...)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if cfg.Batch.Endpoint == "" {
		slog.Warn("no batch endpoint configured — quota errors will end the session")
	}
	slog.Info("session ready — press Ctrl+C to stop")

	runErr := application.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
		return 1
	}

	if text := application.Transcript().FullText(); text != "" {
		slog.Info("transcription complete",
			"segments", len(application.Transcript().Segments()),
			"dropped_samples", application.Session().Status().DroppedSamples,
		)
	}
	slog.Info("goodbye")
	return 0
}
