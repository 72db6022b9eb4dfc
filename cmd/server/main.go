//go:build !js && !wasm

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/himanishpuri/AudioInsight/internal/config"
	"github.com/himanishpuri/AudioInsight/pkg/insight"
	"github.com/himanishpuri/AudioInsight/pkg/logger"
	"github.com/himanishpuri/AudioInsight/pkg/metrics"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	log := logger.GetLogger()
	log.SetLevel(logger.ParseLevel(cfg.Log.Level))

	var m *metrics.Metrics
	if cfg.Metrics.Addr != "" {
		m = metrics.New()
	}

	service, err := newService(cfg, log, m)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := NewServer(service, cfg, log, m)
	if err := server.Run(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func newService(cfg *config.Config, log *logger.Logger, m *metrics.Metrics) (insight.Service, error) {
	opts := []insight.Option{
		insight.WithMaxDuration(cfg.Analysis.MaxDurationSec),
		insight.WithFFmpeg(cfg.Analysis.FFmpegBin, cfg.Analysis.FFprobeBin),
		insight.WithDecodeTimeout(cfg.Analysis.DecodeTimeout),
		insight.WithLogger(log),
	}
	if cfg.Analysis.TempDir != "" {
		opts = append(opts, insight.WithTempDir(cfg.Analysis.TempDir))
	}
	if m != nil {
		opts = append(opts, insight.WithRecorder(m))
	}
	return insight.NewService(opts...)
}
