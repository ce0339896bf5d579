package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/hupe1980/vecforge/metrics"
	"github.com/hupe1980/vecforge/server"
	"github.com/hupe1980/vecforge/service"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the index build service",
		Long:  "Run the HTTP build service. Jobs download a raw float32 object, build an index on the configured device and upload it next to the source object.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config(cmd, map[string]string{
				"server.listen":    "listen",
				"device.type":      "device",
				"jobs.max_workers": "max-workers",
				"storage.backend":  "storage",
				"storage.root":     "root",
			})
			if err != nil {
				return err
			}
			log := newLogger(cmd.ErrOrStderr(), cfg.Log)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			buckets, err := openBuckets(ctx, cfg.Storage)
			if err != nil {
				return err
			}
			store, err := openJobStore(ctx, cfg.Jobs, cfg.Storage)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			reg := prometheus.NewRegistry()
			collector, err := metrics.NewPrometheusCollector(reg)
			if err != nil {
				return err
			}

			dev, err := cfg.BuildDevice()
			if err != nil {
				return err
			}
			params, err := cfg.Params()
			if err != nil {
				return err
			}
			metric, err := cfg.Metric()
			if err != nil {
				return err
			}
			compression, err := cfg.Compression()
			if err != nil {
				return err
			}
			svc, err := service.New(buckets, store, func(o *service.Options) {
				o.Device = dev
				o.Metric = metric
				o.Params = params
				o.IVFPQ = cfg.IVFPQ()
				o.Compression = compression
				o.TempDir = cfg.Jobs.TempDir
				o.MaxWorkers = cfg.Jobs.MaxWorkers
				o.BytesPerSec = cfg.Storage.UploadBytesPerSec
				o.Logger = log
				o.Metrics = collector
			})
			if err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := svc.Shutdown(shutdownCtx); err != nil {
					log.Warn("service shutdown", "error", err)
				}
			}()

			server.Version = version
			srv, err := server.New(server.Config{
				ListenAddr:  cfg.Server.Listen,
				CORSOrigins: cfg.Server.CORSOrigins,
				Gatherer:    reg,
				Logger:      log,
			}, svc)
			if err != nil {
				return err
			}

			if cfg.Coordinator.Register {
				host := cfg.Coordinator.AdvertiseHost
				if host == "" {
					host, _ = os.Hostname()
				}
				w := service.Worker{URL: host, Port: cfg.Coordinator.AdvertisePort}
				if err := service.Register(ctx, nil, cfg.Coordinator.URL, w); err != nil {
					return err
				}
				log.Info("registered with coordinator", "url", cfg.Coordinator.URL)
			}

			log.Info("build service starting", "device", svc.DeviceType(), "storage", cfg.Storage.Backend, "jobs", cfg.Jobs.Backend)
			return srv.Start(ctx)
		},
	}
	cmd.Flags().String("listen", "", "listen address (host:port)")
	cmd.Flags().String("device", "", "build device (cpu or gpu)")
	cmd.Flags().Int("max-workers", 0, "concurrent build jobs")
	cmd.Flags().String("storage", "", "object store backend (local, s3, minio)")
	cmd.Flags().String("root", "", "root directory of the local object store")
	return cmd
}
