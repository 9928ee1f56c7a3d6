// Package service runs the healthz and metrics HTTP servers of a long running runner.
package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-nunit-runner/metrics"
)

type Config struct {
	HealthzAddr string
	MetricsAddr string
	Log         log.Logger
}

type Service struct {
	Healthz *HealthzServer
	Metrics *MetricsServer

	cfg Config
	log log.Logger
}

func New(cfg Config) *Service {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	logger := cfg.Log.New("component", "service")
	return &Service{
		Healthz: &HealthzServer{log: logger},
		Metrics: &MetricsServer{},
		cfg:     cfg,
		log:     logger,
	}
}

func (s *Service) Start(ctx context.Context) {
	s.log.Info("Service starting")

	if s.cfg.HealthzAddr != "" {
		go func() {
			s.log.Info("Starting healthz server", "addr", s.cfg.HealthzAddr)
			if err := s.Healthz.Start(ctx, s.cfg.HealthzAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("Error starting healthz server", "err", err)
				metrics.RecordErrorDetails("healthz_server", err)
			}
		}()
	}

	if s.cfg.MetricsAddr != "" {
		go func() {
			s.log.Info("Starting metrics server", "addr", s.cfg.MetricsAddr)
			if err := s.Metrics.Start(ctx, s.cfg.MetricsAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("Error starting metrics server", "err", err)
				metrics.RecordErrorDetails("metrics_server", err)
			}
		}()
	}

	s.log.Info("Service started")
}

func (s *Service) Shutdown(ctx context.Context) {
	s.log.Info("Service shutting down")

	_ = s.Healthz.Shutdown(ctx)
	s.log.Info("Healthz stopped")

	_ = s.Metrics.Shutdown(ctx)
	s.log.Info("Metrics stopped")

	s.log.Info("Service stopped")
}
