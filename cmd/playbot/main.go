// PlayBot onboard controller: serial command link, animation playback,
// wheel control and safety sensors in one fixed-period loop.
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

	"github.com/benbjohnson/clock"

	"github.com/teslashibe/go-playbot/internal/config"
	"github.com/teslashibe/go-playbot/internal/log"
	"github.com/teslashibe/go-playbot/pkg/control"
	"github.com/teslashibe/go-playbot/pkg/hardware"
	"github.com/teslashibe/go-playbot/pkg/link"
	"github.com/teslashibe/go-playbot/pkg/protocol"
	"github.com/teslashibe/go-playbot/pkg/robot"
	"github.com/teslashibe/go-playbot/pkg/setup"
	"github.com/teslashibe/go-playbot/pkg/storage"
	"github.com/teslashibe/go-playbot/pkg/telemetry"
)

// simDivisor scales motor duty to encoder counts per tick in simulation.
const simDivisor = 64

type options struct {
	configPath string
	sim        bool
	port       string
	telemetry  string
	debug      bool
}

func main() {
	opts := parseFlags()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Configuration error: %v\n", err)
		os.Exit(1)
	}
	if opts.port != "" {
		cfg.Link.Port = opts.port
	}
	if opts.telemetry != "" {
		cfg.TelemetryAddr = opts.telemetry
	}
	if opts.debug {
		cfg.Log.Level = "debug"
	}

	log.InitWithOptions(log.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, opts.sim); err != nil {
		log.Error("controller stopped", "error", err)
		os.Exit(1)
	}
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.configPath, "config", "", "YAML configuration file")
	flag.BoolVar(&o.sim, "sim", false, "Run against simulated hardware")
	flag.StringVar(&o.port, "port", "", "Serial port (overrides config and PLAYBOT_SERIAL_PORT)")
	flag.StringVar(&o.telemetry, "telemetry", "", "Telemetry listen address, e.g. :8080")
	flag.BoolVar(&o.debug, "debug", false, "Enable verbose debug logging")
	flag.Parse()
	return o
}

func run(ctx context.Context, cfg config.Config, sim bool) error {
	logger := log.L()
	report := setup.New(logger)
	clk := clock.New()

	hw, onTick, err := openHardware(cfg, sim, logger)
	if hw == nil {
		return err
	}
	defer hw.Close()
	report.Record("gauge", err)

	store := storage.New(cfg.StorageRoot, logger)
	report.Record("storage", store.Mount())
	go func() {
		if err := store.Watch(ctx); err != nil {
			logger.Warn("storage watch stopped", "error", err)
		}
	}()

	lopts := link.Options{
		Name:         cfg.Link.Port,
		Baud:         cfg.Link.Baud,
		MaxRead:      cfg.Link.MaxRead,
		BaudInterval: cfg.Link.BaudPoll,
		Clock:        clk,
		Logger:       logger,
	}
	if cfg.Link.BaudFile != "" {
		lopts.BaudSource = link.FileBaud(cfg.Link.BaudFile)
	}
	serialLink := link.New(lopts)
	report.Record("link", serialLink.Open())
	defer serialLink.Close()

	// The server needs the loop as its source and the loop needs the server
	// as an event sink; srv is set before the loop starts ticking.
	var srv *telemetry.Server
	deps := control.Deps{
		Hardware: hw,
		Link:     serialLink,
		Store:    store,
		OnTick:   onTick,
		Clock:    clk,
		Logger:   logger,
	}
	if cfg.TelemetryAddr != "" {
		deps.Events = protocol.EmitterFunc(func(m protocol.Message) { srv.Emit(m) })
		deps.Logs = func(entries []log.Entry) { srv.AddLogs(entries) }
	}

	loop, err := control.New(cfg, deps)
	if err != nil {
		return err
	}
	report.Record("odometry", loop.Odometry.Load())

	if cfg.TelemetryAddr != "" {
		srv = telemetry.New(telemetry.Options{
			Addr:       cfg.TelemetryAddr,
			Source:     loop,
			Logger:     logger,
			MaxCommand: cfg.Link.MaxRead,
		})
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("telemetry stopped", "error", err)
			}
		}()
	}

	report.Finish(loop.Emitter(), hw.Status)
	logger.Info("controller running", "sim", sim, "port", cfg.Link.Port, "telemetry", cfg.TelemetryAddr)

	return loop.Run(ctx)
}

// openHardware returns the simulated robot or the real peripherals. A
// missing fuel gauge is reported through err alongside usable hardware.
func openHardware(cfg config.Config, sim bool, logger *slog.Logger) (*robot.Hardware, func(), error) {
	if sim {
		s := robot.NewSim()
		logger.Info("using simulated hardware")
		return s.Hardware(), func() { s.Step(simDivisor) }, nil
	}

	hw, err := hardware.Open(cfg.Hardware, logger)
	if err != nil && !errors.Is(err, hardware.ErrGaugeUnavailable) {
		return nil, nil, err
	}
	return hw, nil, err
}
