// Package app wires the daemon together: config, logging, feed client,
// mesh transport, the monitor loop, and the auxiliary services (metrics
// endpoint, stats job, systemd notification).
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"udpquake/internal/config"
	"udpquake/internal/mesh"
	"udpquake/internal/monitor"
	"udpquake/internal/quake"
	"udpquake/internal/runtime/supervisor"
	"udpquake/pkg/logx"
)

const defaultMetricsAddr = "127.0.0.1:9104"

type App struct {
	cfg     *config.Config
	manager *config.Manager

	logSvc *logx.Service
	log    logx.Logger

	transport *mesh.UDP
	runner    *monitor.Runner

	sup        *supervisor.Supervisor
	cron       *cron.Cron
	metricsSrv *http.Server
}

// New loads the config (falling back to built-in defaults when the file does
// not exist) and prepares the logging service. Nothing is started yet.
func New(cfgPath string) (*App, error) {
	manager := config.NewManager(cfgPath)
	cfg, err := manager.Load()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
		}
		cfg = config.Default()
		manager.Commit(cfg)
	}

	logSvc, log := logx.New(loggingConfig(cfg))
	manager.SetLogger(log.With(logx.String("component", "config")))

	return &App{
		cfg:     cfg,
		manager: manager,
		logSvc:  logSvc,
		log:     log,
	}, nil
}

// Start builds the pipeline and launches it under a supervisor.
func (a *App) Start(ctx context.Context) error {
	cfg := a.cfg

	feedTimeout, err := config.ParseDurationOrDefault("feed.request_timeout", cfg.Feed.RequestTimeout, 20*time.Second)
	if err != nil {
		return err
	}
	sendSpacing, err := config.ParseDurationOrDefault("mesh.send_spacing", cfg.Mesh.SendSpacing, monitor.DefaultSendSpacing)
	if err != nil {
		return err
	}
	pollInterval, err := config.ParseDurationOrDefault("monitor.poll_interval", cfg.Monitor.PollInterval, time.Minute)
	if err != nil {
		return err
	}
	firstLookback, err := config.ParseDurationOrDefault("monitor.first_lookback", cfg.Monitor.FirstLookback, 72*time.Hour)
	if err != nil {
		return err
	}
	steadyLookback, err := config.ParseDurationOrDefault("monitor.steady_lookback", cfg.Monitor.SteadyLookback, time.Hour)
	if err != nil {
		return err
	}

	feed := quake.NewClient(quake.ClientConfig{
		Host:    cfg.Feed.Host,
		Bounds:  bounds(cfg.Feed.Bounds),
		Timeout: feedTimeout,
	})

	transport, err := mesh.Dial(mesh.Config{
		Group:          cfg.Mesh.Group,
		Port:           cfg.Mesh.Port,
		Channel:        cfg.Mesh.Channel,
		Key:            cfg.Mesh.Key,
		MaxSendsPerSec: cfg.Mesh.MaxSendsPerSec,
	})
	if err != nil {
		return err
	}
	a.transport = transport

	dispatcher := monitor.NewDispatcher(transport, monitor.DispatcherConfig{
		AlertThreshold: cfg.Monitor.AlertThreshold,
		SendSpacing:    sendSpacing,
	}, a.log)

	a.runner = monitor.NewRunner(feed, dispatcher, monitor.RunnerConfig{
		PollInterval:         pollInterval,
		FirstLookback:        firstLookback,
		SteadyLookback:       steadyLookback,
		MinMagnitude:         cfg.Feed.MinMagnitude,
		Limit:                cfg.Feed.Limit,
		SignificantMagnitude: cfg.Monitor.SignificantMagnitude,
	}, a.log)

	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))

	a.sup.GoRestart("monitor", a.runner.Run, supervisor.RestartConfig{})

	a.startConfigReload()
	a.startStatsJob()
	if err := a.startMetrics(); err != nil {
		return err
	}

	// Tell systemd we're up; harmless off systemd.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	a.startWatchdog()

	a.log.Info("udpquake started",
		logx.String("feed_host", cfg.Feed.Host),
		logx.Duration("poll_interval", pollInterval),
	)
	return nil
}

// Stop shuts everything down, bounded by ctx.
func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
	if a.metricsSrv != nil {
		_ = a.metricsSrv.Shutdown(ctx)
	}

	var err error
	if a.sup != nil {
		err = a.sup.Stop(ctx)
	}
	if a.transport != nil {
		_ = a.transport.Close()
	}
	_ = a.logSvc.Close()
	return err
}

// startConfigReload watches the config file and applies the parts that are
// safe to change at runtime (logging only; the loop parameters are fixed for
// the process lifetime).
func (a *App) startConfigReload() {
	sub := a.manager.Subscribe(1)

	a.sup.Go("config-watch", a.manager.Watch)
	a.sup.Go("config-reload", func(ctx context.Context) error {
		defer a.manager.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return nil
			case cfg, ok := <-sub:
				if !ok {
					return nil
				}
				a.logSvc.Apply(loggingConfig(cfg))
				a.log.Info("logging config applied", logx.String("level", cfg.Logging.Level))
			}
		}
	})
}

func (a *App) startStatsJob() {
	if !a.cfg.Stats.Enabled {
		return
	}
	spec := a.cfg.Stats.Schedule
	if spec == "" {
		spec = "0 * * * *"
	}

	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		s := a.runner.Stats()
		a.log.Info("monitor stats",
			logx.Any("cycles", s.Cycles),
			logx.Any("fetch_errors", s.FetchErrors),
			logx.Any("events_fetched", s.EventsFetched),
			logx.Any("events_fresh", s.EventsFresh),
			logx.Any("alerts_sent", s.AlertsSent),
			logx.Int("seen_ids", s.SeenIDs),
		)
	})
	if err != nil {
		a.log.Warn("stats job disabled: bad schedule", logx.String("schedule", spec), logx.Err(err))
		return
	}
	c.Start()
	a.cron = c
}

func (a *App) startMetrics() error {
	if !a.cfg.Metrics.Enabled {
		return nil
	}
	addr := a.cfg.Metrics.Addr
	if addr == "" {
		addr = defaultMetricsAddr
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}
	a.metricsSrv = srv

	a.sup.Go("metrics", func(ctx context.Context) error {
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	a.log.Info("metrics endpoint enabled", logx.String("addr", addr))
	return nil
}

// startWatchdog pings the systemd watchdog when one is armed for this unit.
func (a *App) startWatchdog() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	a.sup.Go("sd-watchdog", func(ctx context.Context) error {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}

func loggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func bounds(b config.BoundsConfig) quake.Bounds {
	if b.IsZero() {
		return quake.DefaultBounds
	}
	return quake.Bounds{
		MinLatitude:  b.MinLatitude,
		MaxLatitude:  b.MaxLatitude,
		MinLongitude: b.MinLongitude,
		MaxLongitude: b.MaxLongitude,
	}
}
