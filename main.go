package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"rapidcast/config"
	"rapidcast/httpServer"
	"rapidcast/internal/auth"
	"rapidcast/internal/capture"
	"rapidcast/internal/encoder"
	"rapidcast/internal/metrics"
	"rapidcast/internal/notify"
	"rapidcast/internal/session"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	autostart := flag.Bool("autostart", false, "Start a session with the configured capture defaults")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	log := newLogger(cfg)
	log.Info("Starting RapidCast...")
	log.Infof("HTTP Server: %s", cfg.HTTPAddr)
	log.Infof("Stream Server: %s", cfg.StreamAddr)
	log.Infof("Capture: %s %s at %d fps", cfg.CaptureMode, cfg.Capture.Resolution(), cfg.Capture.FrameRateHz)

	// Initialize metrics
	m := metrics.New(prometheus.DefaultRegisterer)
	log.Info("Prometheus metrics initialized")

	// Initialize auth
	authManager := auth.New(cfg.DefaultTokenExpiration, cfg.MaxTokenExpiration)
	go cleanupTokens(authManager, log)

	// Notifications go to the log, websocket subscribers and optionally the desktop
	events := httpServer.NewBroadcaster(log)
	notifiers := notify.Multi{notify.Log{Logger: log}, events}
	if cfg.DesktopNotify {
		desktop, err := notify.NewDesktop("RapidCast", log)
		if err != nil {
			log.WithError(err).Warn("Desktop notifications unavailable")
		} else {
			defer desktop.Close()
			notifiers = append(notifiers, desktop)
		}
	}

	// Capture source and encoder
	source, err := newSource(cfg, log)
	if err != nil {
		log.Fatalf("Failed to set up capture: %v", err)
	}
	if err := encoder.CheckFFmpeg(context.Background(), cfg.FFmpegPath); err != nil {
		log.WithError(err).Warn("Encoder unavailable, sessions will fail to start")
	}
	newEncoder := encoder.FFmpegFactory(encoder.FFmpegOptions{
		Path:   cfg.FFmpegPath,
		Logger: log,
	})

	controller := session.New(session.Options{
		Source:           source,
		NewEncoder:       newEncoder,
		Authorizer:       authManager,
		Addr:             cfg.StreamAddr,
		PollTimeout:      cfg.PollTimeout,
		HandshakeTimeout: cfg.HandshakeTimeout,
		WriteTimeout:     cfg.WriteTimeout,
		Notifier:         notifiers,
		Metrics:          m,
		Logger:           log,
	})

	// Initialize HTTP server
	httpSrv := httpServer.New(controller, authManager, httpServer.Options{
		Defaults: cfg.Capture,
		Metrics:  m,
		Gatherer: prometheus.DefaultGatherer,
		Events:   events,
		Logger:   log,
	})

	if *autostart {
		token, err := authManager.IssueToken(0, "autostart")
		if err != nil {
			log.Fatalf("Failed to issue capture token: %v", err)
		}
		if err := controller.Start(cfg.Capture, token.Token); err != nil {
			log.Fatalf("Failed to start session: %v", err)
		}
	}

	go func() {
		log.Infof("HTTP server listening on %s", cfg.HTTPAddr)
		if err := httpSrv.Run(cfg.HTTPAddr); err != nil {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	log.Info("RapidCast started successfully")
	log.Info("---")
	log.Info("API Endpoints:")
	log.Info("  GET  /api/ping")
	log.Info("  POST /api/v1/authorize")
	log.Info("  GET  /api/v1/session")
	log.Info("  POST /api/v1/session/start")
	log.Info("  POST /api/v1/session/stop")
	log.Info("  GET  /api/v1/events")
	log.Info("  GET  /metrics")
	log.Info("---")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.WithField("signal", s.String()).Info("Shutting down")

	controller.Stop()
	events.Close()
}

func newLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

func newSource(cfg *config.Config, log logrus.FieldLogger) (capture.Source, error) {
	if cfg.CaptureMode == config.CaptureModeCommand {
		return capture.ParseCommand(cfg.CaptureCommand, log)
	}
	return capture.NewSynthetic(log), nil
}

func cleanupTokens(m *auth.Manager, log logrus.FieldLogger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		if n := m.CleanupExpiredTokens(); n > 0 {
			log.WithField("count", n).Debug("Expired capture tokens removed")
		}
	}
}
