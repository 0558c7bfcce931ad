package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sidenote-app/capture/internal/capture"
	"github.com/sidenote-app/capture/internal/config"
	"github.com/sidenote-app/capture/internal/interleave"
	"github.com/sidenote-app/capture/internal/logging"
	"github.com/sidenote-app/capture/internal/metrics"
	"github.com/sidenote-app/capture/internal/transcribe"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log := logging.New("info")
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	log := logging.New(cfg.Logging.Level)
	log.Info().Str("version", Version).Str("commit", Commit).Msg("Capture engine starting")

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.Address, mux); err != nil {
				log.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
		log.Info().Str("address", cfg.Metrics.Address).Msg("Metrics server listening")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Without an endpoint the pipeline still runs; frames are produced
	// and discarded, which is useful for level metering and metrics.
	var consumer interleave.Consumer
	var streamer *transcribe.Streamer
	if cfg.Transcription.Endpoint != "" {
		streamer = transcribe.NewStreamer(log, cfg.Transcription.Endpoint, m)
		streamer.OnTranscript(func(t transcribe.Transcript) {
			log.Info().
				Int("channel", t.Channel).
				Bool("final", t.Final).
				Str("text", t.Text).
				Msg("Transcript")
		})
		if err := streamer.Connect(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to transcription service")
		}
		defer streamer.Close()
		consumer = streamer
	}

	synchronizer := interleave.New(log, consumer, m)

	mic := capture.NewMicrophone(log, cfg.Microphone.Device, cfg.Microphone.Gain)
	system := capture.NewSystemAudio(log)

	coordinator := capture.NewCoordinator(capture.Options{
		Log:                log,
		Mixer:              synchronizer,
		Metrics:            m,
		Microphone:         mic,
		System:             system,
		CaptureMicrophone:  cfg.Microphone.Enabled,
		CaptureSystemAudio: cfg.SystemAudio.Enabled,
	})

	coordinator.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down...")
	coordinator.Stop()
}
