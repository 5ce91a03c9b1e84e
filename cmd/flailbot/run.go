package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/flailbot/flailbot/internal/api"
	"github.com/flailbot/flailbot/internal/cli"
	"github.com/flailbot/flailbot/internal/config"
	"github.com/flailbot/flailbot/internal/connector"
	"github.com/flailbot/flailbot/internal/db"
	"github.com/flailbot/flailbot/internal/events"
	"github.com/flailbot/flailbot/internal/health"
	"github.com/flailbot/flailbot/internal/network"
	"github.com/flailbot/flailbot/internal/scheduler"
	"github.com/flailbot/flailbot/internal/telemetry"
	"github.com/flailbot/flailbot/internal/util"
)

func runCmd(configDir *string) *cobra.Command {
	var (
		address     string
		nick        string
		autoPlay    bool
		interactive bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to a game server and start all services",
		RunE: func(cmd *cobra.Command, args []string) error {
			printBanner()
			return run(*configDir, func(cc *config.ClientConfig) {
				if cmd.Flags().Changed("address") {
					cc.Address = address
				}
				if cmd.Flags().Changed("nick") {
					cc.Nick = nick
				}
				if cmd.Flags().Changed("autoplay") {
					cc.AutoPlay = autoPlay
				}
			}, interactive)
		},
	}

	cmd.Flags().StringVarP(&address, "address", "a", "", "game server URL, overrides client.address")
	cmd.Flags().StringVarP(&nick, "nick", "n", "", "nickname, overrides client.nick")
	cmd.Flags().BoolVar(&autoPlay, "autoplay", false, "enter the arena and respawn automatically")
	cmd.Flags().BoolVarP(&interactive, "interactive", "i", true, "read console commands from stdin")

	return cmd
}

func run(configDir string, override func(*config.ClientConfig), interactive bool) error {
	// Initialize logger with defaults first (will be reconfigured after config load)
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger := util.ComponentLogger("main")

	logger.Info().
		Str("version", version).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting flailbot")

	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logCfg := util.LogConfig{
		Level:      cfg.Logging.Level,
		Directory:  cfg.Logging.Directory,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Console:    true,
	}
	if err := util.InitLogger(logCfg); err != nil {
		logger.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}
	logger = util.ComponentLogger("main")

	client := cfg.GetClient()
	override(&client)
	cfg.SetClient(client)

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		logger.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			logger.Error().Str("field", e.Field).Msg(e.Message)
		}
		return fmt.Errorf("configuration validation failed, run 'flailbot setup' or fix the errors above")
	}

	sysInfo := util.GetSystemInfo()
	logger.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("cpu", sysInfo.CPUModel).
		Int("cores", sysInfo.CPUCores).
		Uint64("memory_mb", sysInfo.TotalMemory).
		Msg("system information")

	parserOpts, err := parserOptions(client)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Subscribers attach before the client starts so none misses the
	// first frames.
	eventBus := events.NewEventBus()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(registry)
	metrics.Attach(eventBus)

	state := api.NewWorldState()
	state.Attach(eventBus)

	var recorder *db.Recorder
	if cfg.Recorder.Enabled {
		recorder, err = db.NewRecorder(cfg.Recorder.Path)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to open recorder, history disabled")
		} else {
			defer recorder.Close()
			recorder.Attach(eventBus)
		}
	}

	var mqttPublisher *telemetry.MQTTPublisher
	if cfg.MQTT.Enabled {
		mqttPublisher, err = telemetry.NewMQTTPublisher(cfg.MQTT, eventBus)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	clientOpts := clientOptions(client)
	if cfg.Tracing.Enabled {
		tracing, err := telemetry.StartTracing(cfg.Tracing, version)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to start tracing, frame spans disabled")
		} else {
			otel.SetTracerProvider(tracing.Provider())
			clientOpts.TracerProvider = tracing.Provider()
			defer func() {
				flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer flushCancel()
				if err := tracing.Shutdown(flushCtx); err != nil {
					logger.Warn().Err(err).Msg("failed to flush frame spans")
				}
			}()
		}
	}

	matchmaker := connector.NewMatchmaker(client.MasterURL)
	gameClient := network.NewClient(clientOpts, eventBus, parserOpts, matchmaker)
	gameClient.Parser().SetObserver(metrics)

	var history api.History
	if recorder != nil {
		history = recorder
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	// Game connection
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info().Str("region", client.Region).Str("address", client.Address).Msg("starting game client")
		if err := gameClient.Run(ctx); err != nil {
			errCh <- fmt.Errorf("game client: %w", err)
		}
	}()

	if cfg.API.Enabled {
		apiServer := api.NewServer(cfg, state, version)
		apiServer.SetDependencies(history, registry)

		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info().Int("port", cfg.API.Port).Msg("starting REST API server")
			if err := startWithRetry(ctx, "API server", apiServer.Start, 15); err != nil {
				logger.Warn().Err(err).Msg("API server failed after retries (non-fatal)")
			}
		}()
	}

	if mqttPublisher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info().Msg("starting MQTT telemetry")
			if err := mqttPublisher.Start(ctx); err != nil {
				logger.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	if recorder != nil {
		sched := scheduler.NewScheduler(cfg.Recorder, recorder)
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info().Msg("starting task scheduler")
			sched.Start(ctx)
		}()
	}

	if cfg.Health.Enabled {
		diskPath := "."
		if recorder != nil {
			diskPath = filepath.Dir(recorder.Path())
		}
		healthMgr := health.NewManager(cfg.Health, state, diskPath)
		if mqttPublisher != nil {
			healthMgr.SetHeartbeat(mqttPublisher)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info().Msg("starting health check manager")
			healthMgr.Start(ctx)
		}()
	}

	if interactive {
		console := cli.NewCLI(state, gameClient, history, cancel, os.Stdin, os.Stdout)
		wg.Add(1)
		go func() {
			defer wg.Done()
			console.Start(ctx)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("critical error, initiating shutdown")
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested from console")
	}

	logger.Info().Msg("initiating graceful shutdown...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("all tasks stopped gracefully")
	case <-time.After(30 * time.Second):
		logger.Warn().Msg("shutdown timed out after 30 seconds, forcing exit")
	}

	eventBus.Stop()

	log.Info().Msg("flailbot stopped")
	return runErr
}

// startWithRetry retries a start function that fails to bind, backing off
// one second per attempt.
func startWithRetry(ctx context.Context, name string, start func(context.Context) error, maxAttempts int) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = start(ctx)
		if err == nil || ctx.Err() != nil {
			return nil
		}

		log.Warn().
			Err(err).
			Str("task", name).
			Int("attempt", attempt).
			Msg("start failed, retrying")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	return err
}
