package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/crabwatch/internal/app"
	"github.com/ayusman/crabwatch/internal/capture"
	"github.com/ayusman/crabwatch/internal/config"
	"github.com/ayusman/crabwatch/internal/metrics"
	"github.com/ayusman/crabwatch/internal/plugin"
	"github.com/ayusman/crabwatch/internal/server"
	"github.com/ayusman/crabwatch/internal/store"
	"github.com/ayusman/crabwatch/internal/tray"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	camera := flag.String("camera", "", "Camera device index or video file (overrides config)")
	withTray := flag.Bool("tray", false, "Show the system tray menu")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *camera != "" {
		cfg.Camera = *camera
	}

	logger := initLogger(*debugMode, cfg.Log)

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	if err := run(cfg, *withTray, logger); err != nil {
		logger.WithError(err).Fatal("Crabwatch exited with error")
	}
}

func run(cfg config.Config, withTray bool, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	m := metrics.New()
	pipeline := app.New(app.Config{
		Store:          st,
		Camera:         cfg.Source(),
		Prefix:         cfg.Prefix,
		ImageDir:       cfg.ImageDir,
		VideoDir:       cfg.VideoDir,
		ImageExt:       cfg.StillExtension,
		VideoExt:       cfg.Recording.Extension,
		Codec:          cfg.Recording.Codec,
		RecordFPS:      cfg.Recording.FPS,
		DisplaySlots:   cfg.DisplaySlots,
		DeliveryFormat: capture.PixelFormat(cfg.DeliveryFormat),
		FrozenInterval: cfg.FrozenInterval,
		RetryInterval:  cfg.RetryInterval,
		Detector:       cfg.Detector,
		Metrics:        m,
		Logger:         logger,
	})
	if err := startPlugins(ctx, cfg, pipeline, logger); err != nil {
		return err
	}

	if err := pipeline.Start(); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}
	defer pipeline.Stop()

	staticDir := cfg.StaticDir
	if staticDir == "" {
		staticDir = findWebDir()
	}
	if staticDir != "" {
		logger.WithField("path", staticDir).Info("Serving static files")
	}

	srv := server.New(server.Config{
		StaticDir:  staticDir,
		Store:      st,
		Controller: pipeline,
		Metrics:    m,
		Logger:     logger,
	})

	if !withTray {
		return srv.ListenAndServe(ctx, cfg.Addr)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t := newTray(pipeline, cfg.Addr, cancel, logger)
	go watchCount(ctx, pipeline, t)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(ctx, cfg.Addr)
		t.Quit()
	}()

	// systray needs the main goroutine
	t.Run()
	cancel()
	return <-errCh
}

// startPlugins discovers event plugins and feeds them pipeline events until
// ctx is done or the pipeline stops.
func startPlugins(ctx context.Context, cfg config.Config, a *app.App, logger *logrus.Logger) error {
	mgr := plugin.NewManager(cfg.PluginDir, logger)
	if err := mgr.Discover(); err != nil {
		return fmt.Errorf("discover plugins: %w", err)
	}

	plugins := mgr.List()
	if len(plugins) == 0 {
		return nil
	}
	logger.WithFields(logrus.Fields{"path": cfg.PluginDir, "count": len(plugins)}).Info("Plugins loaded")

	d := plugin.NewDispatcher(mgr, plugin.NewExecutor(cfg.PluginTimeout), logger)
	id, events := a.Subscribe()
	go func() {
		defer a.Unsubscribe(id)
		d.Run(ctx, events)
	}()
	return nil
}

func newTray(a *app.App, addr string, quit func(), logger logrus.FieldLogger) *tray.Tray {
	t := tray.New()
	t.OnFreeze(a.ToggleFreeze)
	t.OnCapture(func() {
		if _, err := a.CaptureStill(); err != nil {
			logger.WithError(err).Warn("Capture failed")
		}
	})
	t.OnRecord(func() bool {
		if _, err := a.ToggleRecording(); err != nil {
			logger.WithError(err).Warn("Recording toggle failed")
		}
		return a.Status().Recording
	})
	t.OnStopDetection(a.StopDetection)
	t.OnOpen(func() {
		if err := openBrowser("http://" + addr); err != nil {
			logger.WithError(err).Warn("Failed to open browser")
		}
	})
	t.OnQuit(quit)
	return t
}

// watchCount mirrors detection counts into the tray menu.
func watchCount(ctx context.Context, a *app.App, t *tray.Tray) {
	id, events := a.Subscribe()
	defer a.Unsubscribe(id)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Type == app.EventDetection {
				t.SetCount(ev.Count)
			}
		case <-ctx.Done():
			return
		}
	}
}

func initLogger(debugMode bool, cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logger.Debug("Debug logging enabled")
		return logger
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	return logger
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.crabwatch/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	for _, p := range []string{"web", "../web", "../../web"} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".crabwatch", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}
	return ""
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
