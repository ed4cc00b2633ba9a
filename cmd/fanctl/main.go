package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/oklog/run"
	"go.uber.org/zap"

	"fanctl/internal/config"
	"fanctl/internal/fancontrol"
	"fanctl/internal/logging"
	"fanctl/internal/sensors/bmp280"
	"fanctl/internal/sensors/hostsensor"
	"fanctl/internal/sensors/lm75"
	"fanctl/internal/udp"
	"fanctl/internal/web"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "/etc/fanctl/fanctl.yaml", "Path to YAML config")
	flag.Parse()

	if err := runMain(configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fanctl: %v\n", err)
		os.Exit(1)
	}
}

func runMain(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	logs := web.NewLogBuffer(500)
	logger, flush, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Tee:        logs,
	})
	if err != nil {
		return err
	}
	defer flush()
	log := logger.Sugar()

	sensor, closeSensor, err := openSensor(cfg.Sensor)
	if err != nil {
		return fmt.Errorf("sensor init failed: %w", err)
	}
	defer func() {
		if err := closeSensor(); err != nil {
			log.Warnw("sensor close failed", "error", err)
		}
	}()

	var telemetry io.Writer = os.Stdout
	if cfg.Telemetry.UDPDest != "" {
		b, err := udp.NewBroadcaster(cfg.Telemetry.UDPDest)
		if err != nil {
			return fmt.Errorf("telemetry init failed: %w", err)
		}
		defer func() {
			log.Infow("telemetry udp closed", "dest", b.Dest(), "sent", b.Sent(), "dropped", b.Dropped())
			_ = b.Close()
		}()
		telemetry = io.MultiWriter(os.Stdout, b)
	}

	svc, err := fancontrol.New(serviceConfig(cfg), sensor, telemetry, log.Named("fancontrol"))
	if err != nil {
		return err
	}

	log.Infow("fanctl starting", "config", configPath, "sensor", cfg.Sensor.Type)
	err = runGroup(context.Background(), cfg, svc, logs, log)
	log.Infow("fanctl stopped")
	return err
}

// runGroup runs the control loop, the signal handler and the optional status
// server until the first of them returns. A signal is a clean exit.
func runGroup(ctx context.Context, cfg config.Config, svc *fancontrol.Service, logs *web.LogBuffer, log *zap.SugaredLogger) error {
	var g run.Group

	g.Add(run.SignalHandler(ctx, os.Interrupt, syscall.SIGTERM))

	{
		loopCtx, cancel := context.WithCancel(ctx)
		g.Add(func() error {
			return svc.Run(loopCtx)
		}, func(error) {
			cancel()
		})
	}

	if cfg.Web.Listen != "" {
		webCtx, cancel := context.WithCancel(ctx)
		status := web.NewStatus(svc)
		g.Add(func() error {
			return web.Serve(webCtx, cfg.Web.Listen, status, logs, log.Named("web"))
		}, func(error) {
			cancel()
		})
	}

	err := g.Run()
	var sig run.SignalError
	if errors.As(err, &sig) {
		log.Infow("shutting down", "signal", sig.Signal.String())
		return nil
	}
	return err
}

func serviceConfig(cfg config.Config) fancontrol.Config {
	ind := cfg.Indicators
	return fancontrol.Config{
		Backend:      cfg.Fan.Backend,
		PWMPin:       cfg.Fan.PWMPin,
		PWMFrequency: cfg.Fan.FrequencyHz,
		Kickstart:    cfg.Fan.Kickstart,
		ShutdownDuty: cfg.Fan.ShutdownDuty,
		GPIOChip:     cfg.GPIOChip,

		TachPin:      cfg.Tach.Pin,
		PulsesPerRev: cfg.Tach.PulsesPerRev,
		RPMLow:       cfg.Tach.RPMLow,
		RPMHigh:      cfg.Tach.RPMHigh,

		Curve: fancontrol.CurveConfig{
			OffC:     cfg.Curve.OffC,
			MinC:     cfg.Curve.MinC,
			MaxC:     cfg.Curve.MaxC,
			DutyOff:  cfg.Curve.DutyOff,
			DutyLow:  cfg.Curve.DutyLow,
			DutyHigh: cfg.Curve.DutyHigh,
		},
		Indicators: fancontrol.IndicatorPins{
			TempGreen:  ind.TempGreen,
			TempYellow: ind.TempYellow,
			TempRed:    ind.TempRed,
			RPMLow:     ind.RPMLow,
			RPMMed:     ind.RPMMed,
			RPMHigh:    ind.RPMHigh,
		},
		SampleInterval: cfg.SampleInterval,
	}
}

var (
	openLM75Fn   = lm75.Open
	openBMP280Fn = bmp280.Open
)

func openSensor(sc config.SensorConfig) (fancontrol.TempSensor, func() error, error) {
	noop := func() error { return nil }
	switch sc.Type {
	case config.SensorThermalZone:
		return fancontrol.ThermalZone{Path: sc.Path}, noop, nil
	case config.SensorLM75:
		dev, err := openLM75Fn(sc.I2CBus, sc.Address)
		if err != nil {
			return nil, nil, err
		}
		return dev, dev.Close, nil
	case config.SensorBMP280:
		dev, err := openBMP280Fn(sc.I2CBus, sc.Address)
		if err != nil {
			return nil, nil, err
		}
		return dev, dev.Close, nil
	case config.SensorHost:
		s, err := hostsensor.New(sc.HostKey)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown sensor type %q", sc.Type)
	}
}
