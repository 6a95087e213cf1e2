// Package main is the entry point for the filament supervisor. It loads the
// layered configuration, wires the printer connection, sensors, supervisor,
// status API and telemetry publisher, and runs either as a Windows service
// or as a foreground process.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Natclanwy/cc-sfs/internal/autostart"
	"github.com/Natclanwy/cc-sfs/internal/buffer"
	"github.com/Natclanwy/cc-sfs/internal/clock"
	"github.com/Natclanwy/cc-sfs/internal/config"
	"github.com/Natclanwy/cc-sfs/internal/hostinfo"
	"github.com/Natclanwy/cc-sfs/internal/httpapi"
	"github.com/Natclanwy/cc-sfs/internal/logbuf"
	"github.com/Natclanwy/cc-sfs/internal/models"
	"github.com/Natclanwy/cc-sfs/internal/publisher"
	"github.com/Natclanwy/cc-sfs/internal/scheduler"
	"github.com/Natclanwy/cc-sfs/internal/sensor"
	"github.com/Natclanwy/cc-sfs/internal/service"
	"github.com/Natclanwy/cc-sfs/internal/supervisor"
	"github.com/Natclanwy/cc-sfs/internal/transport"
)

var (
	// version and buildDate are set at build time via -ldflags.
	version   = "dev"
	buildDate = "unknown"

	configPath  = flag.String("config", "", "Path to configuration file (default: search standard locations)")
	showVersion = flag.Bool("version", false, "Show version and exit")
	printerAddr = flag.String("printer", "", "Printer IP address (overrides config)")
	listenAddr  = flag.String("listen", "", "Status API listen address (overrides config)")
	install     = flag.Bool("install", false, "Register as a boot service and start it")
	uninstall   = flag.Bool("uninstall", false, "Stop and remove the boot service")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("cc-sfs %s (%s)\n", version, buildDate)
		os.Exit(0)
	}

	path := *configPath
	if path == "" {
		path = config.Locate()
	}
	cfg, err := config.LoadLayered(config.CLIOverrides{
		PrinterAddress: *printerAddr,
		Listen:         *listenAddr,
	}, embeddedConfig, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	ring := logbuf.NewRing(cfg.Logging.BufferLines)
	logger := initLogger(cfg, ring)
	defer logger.Sync()

	logger.Info("Starting filament supervisor",
		zap.String("version", version),
		zap.String("config", path),
		zap.String("printer", cfg.Printer.Address))

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	if *install || *uninstall {
		if err := manageAutostart(cfg, path, *install, logger); err != nil {
			logger.Fatal("Autostart change failed", zap.Error(err))
		}
		return
	}
	if path == "" {
		logger.Warn("No configuration file found, settings changes will not persist")
	}
	store := config.NewStore(cfg, path)

	if service.IsWindowsService() {
		logger.Info("Running as Windows service")
		svc := service.New(logger, func(ctx context.Context) {
			run(ctx, store, ring, logger)
		})
		if err := svc.Run(); err != nil {
			logger.Fatal("Service failed", zap.Error(err))
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	run(ctx, store, ring, logger)
	logger.Info("Supervisor stopped")
}

// run wires every component and blocks until ctx is cancelled.
func run(ctx context.Context, store *config.Store, ring *logbuf.Ring, logger *zap.Logger) {
	cfg := store.Config()
	clk := clock.NewSystem()

	var wg sync.WaitGroup
	defer wg.Wait()

	sensors := buildSensors(ctx, cfg.Sensors, &wg, logger)

	// The transport callbacks only fire after the first poll connects, by
	// which time sup is set.
	var sup *supervisor.Supervisor
	ws := transport.New(transport.Options{
		Port:              cfg.Printer.Port,
		Path:              cfg.Printer.Path,
		ReconnectInterval: cfg.Printer.ReconnectInterval.Duration,
	}, transport.Handlers{
		OnConnect:    func() { sup.OnConnected() },
		OnDisconnect: func() { sup.OnDisconnected() },
		OnText:       func(payload []byte) { sup.HandleMessage(payload) },
	}, logger)
	defer ws.Disconnect()

	sup = supervisor.New(store, ws, clk, sensors, logger)

	api := httpapi.New(sup, store, ring, hostinfo.New(logger), httpapi.Build{
		Version:   version,
		BuildDate: buildDate,
	}, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := api.ListenAndServe(ctx, cfg.HTTP.Listen); err != nil {
			logger.Error("HTTP server failed", zap.Error(err))
		}
	}()

	intervals := scheduler.Intervals{Poll: cfg.Supervisor.PollInterval.Duration}
	var collect func() models.SensorStatus
	var pub *publisher.Publisher
	if cfg.MQTT.Enabled {
		pub = newPublisher(ctx, cfg.MQTT, logger)
		defer pub.Disconnect()
		intervals.Collect = cfg.MQTT.PublishInterval.Duration
		intervals.Batch = cfg.MQTT.BatchInterval.Duration
		collect = func() models.SensorStatus {
			return models.NewSensorStatus(sup.Snapshot(), clk.Now())
		}
	}

	sched := scheduler.New(intervals, sup.Poll, collect, logger)
	if pub != nil {
		sched.OnBatchReady(func(batch []models.SensorStatus) {
			pub.Send(ctx, batch)
		})
	}

	logger.Info("Supervisor running",
		zap.Duration("poll_interval", intervals.Poll),
		zap.String("sensor_source", cfg.Sensors.Source),
		zap.Bool("mqtt", cfg.MQTT.Enabled))
	sched.Start(ctx)
}

// buildSensors creates the inputs for the configured source. With no source
// both inputs are left nil and the detectors stay idle.
func buildSensors(ctx context.Context, cfg config.SensorsConfig, wg *sync.WaitGroup, logger *zap.Logger) supervisor.Sensors {
	switch cfg.Source {
	case config.SensorSourceSerial:
		bridge := sensor.NewSerialBridge(cfg.Serial.Device, cfg.Serial.Baud, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			bridge.Run(ctx)
		}()
		return supervisor.Sensors{Movement: bridge.Movement(), Runout: bridge.Runout()}
	case config.SensorSourceGPIO:
		return supervisor.Sensors{
			Movement: sensor.NewGPIOFile(cfg.GPIO.MovementPath, false, logger),
			Runout:   sensor.NewGPIOFile(cfg.GPIO.RunoutPath, true, logger),
		}
	default:
		logger.Warn("No filament sensors configured, only printer state is tracked")
		return supervisor.Sensors{}
	}
}

// newPublisher connects to the broker and replays batches spooled by
// earlier runs. A broker that is down at startup is retried in the
// background.
func newPublisher(ctx context.Context, cfg config.MQTTConfig, logger *zap.Logger) *publisher.Publisher {
	buf, err := buffer.New(cfg.SpoolDir, cfg.SpoolMaxMB, logger)
	if err != nil {
		logger.Error("Failed to open telemetry spool, undeliverable batches will be dropped", zap.Error(err))
		buf = nil
	}

	pub := publisher.New(cfg, buf, logger)
	if err := pub.Connect(); err != nil {
		logger.Warn("MQTT broker not reachable yet", zap.Error(err))
		return pub
	}
	pub.FlushBuffer(ctx)
	return pub
}

// manageAutostart installs or removes the boot service. On install without
// a config file, the effective configuration is written to the system path
// so the service starts with the same settings.
func manageAutostart(cfg *config.Config, path string, enable bool, logger *zap.Logger) error {
	m := autostart.New()
	if !enable {
		if err := m.Uninstall(); err != nil {
			return err
		}
		logger.Info("Service removed", zap.String("service", m.ServiceName()))
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating executable: %w", err)
	}
	if path == "" {
		path = config.SystemPath()
		if err := config.WriteConfig(cfg, path); err != nil {
			return err
		}
		logger.Info("Wrote configuration", zap.String("path", path))
	}
	if err := m.Install(exe, path); err != nil {
		return err
	}
	logger.Info("Service installed", zap.String("service", m.ServiceName()), zap.String("config", path))
	return nil
}

// initLogger builds the console logger, an optional JSON file logger and
// the in-memory ring served by the status API.
func initLogger(cfg *config.Config, ring *logbuf.Ring) *zap.Logger {
	var level zapcore.Level
	switch cfg.Logging.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.AddSync(os.Stdout),
			level,
		),
		logbuf.NewCore(ring, level),
	}

	if cfg.Logging.File != "" {
		file, err := os.OpenFile(cfg.Logging.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if err == nil {
			cores = append(cores, zapcore.NewCore(
				zapcore.NewJSONEncoder(encoderConfig),
				zapcore.AddSync(file),
				level,
			))
		}
	}

	return zap.New(zapcore.NewTee(cores...))
}
