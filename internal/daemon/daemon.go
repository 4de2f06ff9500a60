// Package daemon implements the daemon lifecycle manager.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"firestige.xyz/satcam/internal/camera"
	"firestige.xyz/satcam/internal/can"
	"firestige.xyz/satcam/internal/capture"
	"firestige.xyz/satcam/internal/codec"
	"firestige.xyz/satcam/internal/command"
	"firestige.xyz/satcam/internal/config"
	"firestige.xyz/satcam/internal/dispatch"
	"firestige.xyz/satcam/internal/gate"
	logpkg "firestige.xyz/satcam/internal/log"
	"firestige.xyz/satcam/internal/metrics"
	"firestige.xyz/satcam/internal/netstack"
	"firestige.xyz/satcam/internal/service"
	"firestige.xyz/satcam/internal/status"
	"firestige.xyz/satcam/internal/tick"
)

// Task names reported by PS and daemon_status.
const (
	taskNetwork     = "csp-rx"
	taskDispatcher  = "dispatcher"
	taskCoordinator = "coordinator"
	taskCamera      = "camera"
	taskControl     = "control"
)

// Daemon manages the satcam process lifecycle.
type Daemon struct {
	// Configuration
	config     *config.GlobalConfig
	configPath string
	socketPath string
	pidFile    string

	// Core components
	bus           *can.VirtualBus // nil unless network.can.device is "virtual"
	stack         *netstack.Stack
	configured    *gate.Ready
	request       *gate.Request
	coordinator   *capture.Coordinator
	dispatcher    *dispatch.Dispatcher
	reporter      *status.Reporter
	encoder       *codec.Encoder
	framebuffer   *camera.Framebuffer
	cmdHandler    *command.CommandHandler
	udsServer     *command.UDSServer
	metricsServer *metrics.Server // nil if metrics disabled

	// Lifecycle management
	ctx          context.Context
	cancel       context.CancelFunc
	group        *errgroup.Group
	shutdownChan chan struct{}
	shutdownOnce sync.Once
	stopOnce     sync.Once
	stopErr      error
	sigChan      chan os.Signal
	logger       logpkg.Logger
}

// New creates a new Daemon instance. Non-empty socketPath and pidFile
// override the control section of the configuration.
func New(configPath, socketPath, pidFile string) (*Daemon, error) {
	globalConfig, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if socketPath == "" {
		socketPath = globalConfig.Control.Socket
	}
	if pidFile == "" {
		pidFile = globalConfig.Control.PIDFile
	}

	d := &Daemon{
		config:       globalConfig,
		configPath:   configPath,
		socketPath:   socketPath,
		pidFile:      pidFile,
		shutdownChan: make(chan struct{}),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d, nil
}

// Config returns the effective configuration.
func (d *Daemon) Config() *config.GlobalConfig { return d.config }

// VirtualBus returns the in-process CAN bus, or nil when a real device is
// configured.
func (d *Daemon) VirtualBus() *can.VirtualBus { return d.bus }

// Start initializes and starts all daemon components.
func (d *Daemon) Start() error {
	if err := d.initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	d.logger.WithFields(map[string]interface{}{
		"version": command.Version,
		"address": d.config.Node.Address,
		"config":  d.configPath,
		"socket":  d.socketPath,
	}).Info("starting satcam daemon")

	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	d.configured = gate.NewReady()
	d.request = gate.NewRequest()

	if err := d.startMetrics(); err != nil {
		d.abort()
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	iface, err := d.openInterface()
	if err != nil {
		d.abort()
		return fmt.Errorf("failed to open csp interface: %w", err)
	}
	var recorder *netstack.Recorder
	if d.config.Network.RecordFile != "" {
		if recorder, err = netstack.CreateRecorder(d.config.Network.RecordFile); err != nil {
			iface.Close()
			d.abort()
			return err
		}
	}
	d.stack = netstack.New(iface, netstack.Options{
		Address:   d.config.Node.Address,
		QueueSize: d.config.Network.RxQueue,
		Recorder:  recorder,
	})

	if err := d.buildTasks(); err != nil {
		d.stack.Close()
		d.abort()
		return err
	}

	d.cmdHandler = command.NewCommandHandler(command.HandlerOptions{
		Capture:    d.coordinator,
		Configured: d.configured,
		Request:    d.request,
		Address:    d.config.Node.Address,
		Interface:  d.config.Network.Interface,
		Tasks:      d.tasks,
	})
	d.cmdHandler.SetShutdownFunc(func() {
		d.logger.Info("shutdown triggered via daemon_shutdown command")
		d.TriggerShutdown()
	})
	d.udsServer = command.NewUDSServer(d.socketPath, d.cmdHandler)

	cam := camera.BringUpOptions{
		SetupDelay:  d.config.Camera.SetupDelay,
		DMAInterval: d.config.Camera.DMAInterval,
	}
	g, gctx := errgroup.WithContext(d.ctx)
	d.group = g
	g.Go(func() error { return d.stack.Run(gctx) })
	g.Go(func() error { return d.dispatcher.Run(gctx) })
	g.Go(func() error { return d.coordinator.Run(gctx) })
	g.Go(func() error { return camera.BringUp(gctx, d.framebuffer, d.configured, cam) })
	g.Go(func() error {
		if err := d.udsServer.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("uds server: %w", err)
		}
		return nil
	})
	// A failed task takes the daemon down.
	go func() {
		<-gctx.Done()
		d.TriggerShutdown()
	}()

	d.reporter.Log(d.ctx, status.BootUp)
	d.logger.Info("daemon started successfully")
	return nil
}

// openInterface creates the configured CSP link.
func (d *Daemon) openInterface() (netstack.Interface, error) {
	nc := d.config.Network
	switch nc.Interface {
	case "udp":
		u, err := netstack.ListenUDP(nc.UDP.Listen, nc.UDP.Remote, nc.MaxPacketSize)
		if err != nil {
			return nil, err
		}
		if err := u.FilterDestination(d.config.Node.Address); err != nil {
			// The stack still drops foreign packets after Receive.
			d.logger.WithError(err).Warn("socket filter not attached")
		}
		return u, nil
	default:
		var bus can.Bus
		if nc.CAN.Device == "virtual" {
			d.bus = can.NewVirtualBus()
			bus = d.bus.Open(0)
		} else {
			sc, err := can.DialSocketCAN(nc.CAN.Device)
			if err != nil {
				return nil, err
			}
			bus = sc
		}
		return netstack.NewCANInterface(bus, netstack.CANOptions{
			Address:           d.config.Node.Address,
			MaxPacketSize:     nc.MaxPacketSize,
			ReassemblyTimeout: nc.ReassemblyTimeout,
		})
	}
}

// buildTasks wires gates, reporter, camera, codec and the two periodic tasks.
func (d *Daemon) buildTasks() error {
	cfg := d.config
	d.reporter = status.NewReporter(d.stack, cfg.Node.Address, cfg.Status)

	quality, err := codec.ParseQuality(cfg.Camera.Quality)
	if err != nil {
		return err
	}
	if d.encoder, err = codec.NewEncoder(cfg.Camera.Width, cfg.Camera.Height, quality); err != nil {
		return err
	}
	d.framebuffer = camera.NewFramebuffer(cfg.Camera.Width, cfg.Camera.Height)

	var store capture.Store
	if cfg.Camera.OutputDir != "" {
		s, err := camera.NewImageStore(afero.NewOsFs(), cfg.Camera.OutputDir)
		if err != nil {
			return err
		}
		store = s
	}

	d.coordinator, err = capture.NewCoordinator(capture.Options{
		Configured:    d.configured,
		Capture:       d.request,
		Override:      capture.NewOverride(),
		Reporter:      d.reporter,
		Frames:        d.framebuffer,
		Encoder:       capture.CodecEncoder(d.encoder),
		Ticks:         tick.NewSource(nil, cfg.Coordinator.TickPeriod),
		Store:         store,
		Period:        cfg.Coordinator.Period,
		GateTimeout:   cfg.Coordinator.GateTimeout,
		EncodeRetries: cfg.Coordinator.EncodeRetries,
		RetryDelay:    cfg.Coordinator.RetryDelay,
	})
	if err != nil {
		return err
	}

	services := service.NewHandler(d.stack, service.Options{
		Address:   cfg.Node.Address,
		Hostname:  cfg.Node.Hostname,
		Model:     cfg.Node.Model,
		Revision:  cfg.Node.Revision,
		FreeSlots: d.stack.FreeSlots,
		Tasks:     d.tasks,
		Reboot: func() {
			d.logger.Warn("reboot requested over csp, shutting down")
			d.TriggerShutdown()
		},
	})

	d.dispatcher = dispatch.New(dispatch.Options{
		Source:      d.stack,
		Services:    services,
		Capture:     d.request,
		Period:      cfg.Dispatcher.Period,
		PollTimeout: cfg.Dispatcher.PollTimeout,
	})
	return nil
}

func (d *Daemon) tasks() []string {
	return []string{taskNetwork, taskDispatcher, taskCoordinator, taskCamera, taskControl}
}

// Stop performs graceful shutdown of all daemon components. It is safe to
// call more than once.
func (d *Daemon) Stop() error {
	d.stopOnce.Do(func() {
		d.stopErr = d.stop()
	})
	return d.stopErr
}

func (d *Daemon) stop() error {
	d.logger.Info("initiating graceful shutdown")
	var errs error

	// 1. Cancel the task group and unblock the receive loop
	d.cancel()
	if d.stack != nil {
		errs = multierr.Append(errs, d.stack.Close())
	}

	// 2. Wait for the tasks; the uds server removes its socket on the way out
	if d.group != nil {
		errs = multierr.Append(errs, d.group.Wait())
	}

	if d.encoder != nil {
		errs = multierr.Append(errs, d.encoder.Close())
	}

	// 3. Stop metrics server
	if d.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		errs = multierr.Append(errs, d.metricsServer.Stop(shutdownCtx))
	}

	// 4. Unregister signal handler to prevent goroutine leak
	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	errs = multierr.Append(errs, d.removePIDFile())

	if errs != nil {
		d.logger.WithError(errs).Error("daemon stopped with errors")
	} else {
		d.logger.Info("daemon stopped gracefully")
	}
	return errs
}

// abort releases what Start acquired before failing.
func (d *Daemon) abort() {
	d.cancel()
	if d.metricsServer != nil {
		d.metricsServer.Stop(context.Background())
	}
	d.removePIDFile()
}

// Run runs the daemon main loop, blocking until shutdown is triggered.
// Shutdown can be triggered by:
//  1. OS signals (SIGTERM, SIGINT)
//  2. daemon_shutdown command via UDS
//  3. a CSP reboot request or a failed task
//
// SIGHUP reloads the log configuration.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	d.logger.Info("daemon running, waiting for signals or commands")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				d.logger.WithField("signal", sig).Info("received shutdown signal")
				return d.Stop()

			case syscall.SIGHUP:
				d.logger.Info("received reload signal")
				if err := d.Reload(); err != nil {
					d.logger.WithError(err).Error("failed to reload config")
				}
			}

		case <-d.shutdownChan:
			d.logger.Info("shutdown triggered")
			return d.Stop()
		}
	}
}

// Reload re-reads the configuration file. Only the log section is applied
// at runtime; everything else needs a restart.
func (d *Daemon) Reload() error {
	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}
	if err := logpkg.Init(newConfig.Log); err != nil {
		return fmt.Errorf("failed to reinitialize logging: %w", err)
	}
	d.logger = logpkg.GetLogger().WithField("component", "daemon")

	var requiresRestart []string
	if newConfig.Node != d.config.Node {
		requiresRestart = append(requiresRestart, "node")
	}
	if newConfig.Network != d.config.Network {
		requiresRestart = append(requiresRestart, "network")
	}
	if newConfig.Camera != d.config.Camera {
		requiresRestart = append(requiresRestart, "camera")
	}
	if newConfig.Metrics != d.config.Metrics {
		requiresRestart = append(requiresRestart, "metrics")
	}
	d.config.Log = newConfig.Log

	d.logger.WithFields(map[string]interface{}{
		"level":            newConfig.Log.Level,
		"requires_restart": requiresRestart,
	}).Info("configuration reloaded")
	return nil
}

// TriggerShutdown triggers graceful shutdown from an external caller.
func (d *Daemon) TriggerShutdown() {
	d.shutdownOnce.Do(func() { close(d.shutdownChan) })
}

// initLogging initializes the logging system from config.
func (d *Daemon) initLogging() error {
	if err := logpkg.Init(d.config.Log); err != nil {
		return err
	}
	d.logger = logpkg.GetLogger().WithField("component", "daemon")
	d.logger.WithField("level", d.config.Log.Level).Debug("logging initialized")
	return nil
}

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		d.logger.Info("metrics server disabled")
		return nil
	}

	configured := d.configured
	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path, func() error {
		if configured.State() != gate.Granted {
			return errors.New("camera not configured")
		}
		return nil
	})
	return d.metricsServer.Start(d.ctx)
}

// writePIDFile writes the current process ID to the PID file.
func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	pid := os.Getpid()
	data := []byte(strconv.Itoa(pid) + "\n")

	if err := os.WriteFile(d.pidFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.pidFile, err)
	}

	d.logger.WithFields(map[string]interface{}{"path": d.pidFile, "pid": pid}).Debug("PID file written")
	return nil
}

// removePIDFile removes the PID file.
func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.pidFile, err)
	}
	return nil
}
