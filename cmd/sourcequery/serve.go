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

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/energizer-project/sourcequery/internal/api"
	"github.com/energizer-project/sourcequery/internal/cli"
	"github.com/energizer-project/sourcequery/internal/config"
	"github.com/energizer-project/sourcequery/internal/db"
	"github.com/energizer-project/sourcequery/internal/events"
	"github.com/energizer-project/sourcequery/internal/metrics"
	"github.com/energizer-project/sourcequery/internal/monitor"
	"github.com/energizer-project/sourcequery/internal/network"
	"github.com/energizer-project/sourcequery/internal/notify"
	"github.com/energizer-project/sourcequery/internal/protocol"
	"github.com/energizer-project/sourcequery/internal/scheduler"
	"github.com/energizer-project/sourcequery/internal/telemetry"
	"github.com/energizer-project/sourcequery/internal/util"
)

const banner = `
  ___                        ___
 / __| ___ _  _ _ _ __ ___  / _ \ _  _ ___ _ _ _  _
 \__ \/ _ \ || | '_/ _/ -_)| (_) | || / -_) '_| || |
 |___/\___/\_,_|_| \__\___| \__\_\\_,_\___|_|  \_, |
                                               |__/  v%s
 A2S_INFO query service
`

var (
	noConsole = false
	debugAPI  = false

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Monitor the configured servers and serve the REST API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
)

func init() {
	serveCmd.Flags().BoolVar(&noConsole, "no-console", noConsole, "disable the interactive console on stdin")
	serveCmd.Flags().BoolVar(&debugAPI, "debug-api", debugAPI, "run the HTTP router in debug mode")

	// serve is the default command, so the root accepts its flags too
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())
}

func serve(parent context.Context) error {
	fmt.Printf(banner, version)
	fmt.Println()

	// Defaults first, reconfigured once the config is loaded
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	log.Info().
		Str("version", version).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Int("cpus", runtime.NumCPU()).
		Msg("starting sourcequery")

	cfg, err := config.Load(configDir)
	if err != nil {
		return err
	}

	logCfg := util.LogConfig{
		Level:      cfg.Logging.Level,
		Directory:  cfg.Logging.Directory,
		MaxBackups: cfg.Logging.MaxBackups,
		Console:    true,
	}
	if logLevel != "" {
		logCfg.Level = logLevel
	}
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		return fmt.Errorf("configuration validation failed, please fix the errors above")
	}

	hostInfo := util.GetHostInfo(parent)
	log.Info().
		Str("hostname", hostInfo.Hostname).
		Str("os", hostInfo.OS).
		Str("cpu", hostInfo.CPUModel).
		Int("cores", hostInfo.CPUCores).
		Uint64("memory_mb", hostInfo.MemoryBytes>>20).
		Msg("system information")

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	eventBus := events.NewEventBus()

	query := cfg.GetQuery()
	client := network.NewClient(query.Timeout(), query.Retries)
	client.BufferSize = query.BufferSize

	// History is optional: the monitor keeps running without it
	var (
		saver   monitor.SnapshotSaver
		history api.HistoryStore
		store   *db.SnapshotStore
	)
	store, err = db.NewSnapshotStore(ctx, cfg.History.DBPath)
	if err != nil {
		log.Warn().Err(err).Msg("failed to open history database, snapshots will not be recorded")
	} else {
		saver, history = store, store
		defer store.Close()
	}

	var (
		mon       *monitor.Monitor
		responder *network.Responder
	)
	respCfg := cfg.GetResponder()

	opts := monitor.Options{
		Interval: cfg.Monitor.PollInterval(),
		Workers:  query.Workers,
		Targets:  cfg.GetTargets(),
		DiskPath: filepath.Dir(cfg.History.DBPath),
	}
	if respCfg.Enabled {
		responder = network.NewResponder(fmt.Sprintf(":%d", respCfg.Port), responderInfo(respCfg, func() []monitor.TargetState {
			return mon.States()
		}))
		responder.RequireChallenge = respCfg.RequireChallenge
		responder.ChallengeTTL = 30 * time.Second
		opts.SelfTest = responder.SelfTest
		opts.SelfTestInterval = 5 * time.Minute
	}
	mon = monitor.New(client, eventBus, saver, opts)

	var metricsCollector *metrics.Collector
	if cfg.Metrics.Enabled {
		metricsCollector = metrics.NewCollector()
		metricsCollector.Subscribe(eventBus)
	}

	if cfg.Notify.DiscordWebhookURL != "" {
		notify.NewDiscordNotifier(cfg.Notify.DiscordWebhookURL).Subscribe(eventBus)
	}

	var mqttHandler *telemetry.MQTTHandler
	if cfg.MQTT.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(cfg.MQTT, eventBus, version)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	apiOpts := api.Options{
		Config:   cfg.API,
		Debug:    debugAPI,
		Version:  version,
		Monitor:  mon,
		History:  history,
		DiskPath: opts.DiskPath,
	}
	if metricsCollector != nil {
		apiOpts.Metrics = metricsCollector.Handler()
	}
	apiServer := api.NewServer(apiOpts)

	// Targets added from the console survive a restart
	eventBus.Subscribe("config.persist", func(_ context.Context, e events.Event) error {
		p, ok := e.Payload.(events.ConfigChangedPayload)
		if !ok || p.Section != "targets" {
			return nil
		}
		t, ok := p.Value.(config.Target)
		if !ok || !cfg.AddTarget(t) {
			return nil
		}
		return cfg.Save()
	}, events.EventConfigChanged)

	shutdownCh := make(chan struct{}, 1)
	eventBus.Subscribe("main.shutdown", func(context.Context, events.Event) error {
		select {
		case shutdownCh <- struct{}{}:
		default:
		}
		return nil
	}, events.EventShutdown)

	var wg sync.WaitGroup
	errCh := make(chan error, 4)

	if responder != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Int("port", respCfg.Port).Msg("starting A2S responder")
			if err := startWithRetry(ctx, "A2S responder", responder.Start, 5); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("a2s responder: %w", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Int("targets", len(opts.Targets)).Msg("starting monitor")
		mon.Start(ctx)
	}()

	if !config.IsPortAvailable(cfg.API.Port) {
		log.Warn().Int("port", cfg.API.Port).Msg("API port is in use, will retry binding")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Int("port", cfg.API.Port).Msg("starting REST API server")
		if err := startWithRetry(ctx, "API server", apiServer.Start, 5); err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if store != nil {
		sched := scheduler.NewScheduler(cfg.History, store)
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting task scheduler")
			sched.Start(ctx)
		}()
	}

	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	if !noConsole {
		console := cli.NewCLI(mon, history, eventBus, os.Stdin, os.Stdout)
		// Not tracked by wg: a blocked stdin read must not stall shutdown
		go console.Start(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-shutdownCh:
		log.Info().Msg("shutdown requested from console")
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("critical error, initiating shutdown")
	case <-ctx.Done():
	}

	log.Info().Msg("initiating graceful shutdown...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("shutdown timed out after 30 seconds, forcing exit")
	}

	eventBus.Stop()
	eventBus.Wait()

	log.Info().Msg("sourcequery stopped")
	return runErr
}

// responderProtocol is the network protocol version Source servers report.
const responderProtocol = 17

// responderInfo advertises the responder settings, reporting the monitored
// servers that are online as players.
func responderInfo(rc config.ResponderConfig, states func() []monitor.TargetState) network.InfoProvider {
	port := uint16(rc.Port)
	keywords := "sourcequery"
	return func() protocol.InfoResult {
		all := states()
		online := 0
		for _, s := range all {
			if s.Online() {
				online++
			}
		}
		maxPlayers := rc.MaxPlayers
		if maxPlayers == 0 {
			maxPlayers = min(len(all), 255)
		}

		return &protocol.SourceInfo{
			Protocol:   responderProtocol,
			Name:       rc.Name,
			Map:        rc.Map,
			Folder:     rc.Folder,
			Game:       rc.Game,
			AppID:      uint16(rc.AppID),
			Players:    uint8(min(online, 255)),
			MaxPlayers: uint8(maxPlayers),
			ServerType: 'd',
			Platform:   platformByte(),
			Version:    rc.Version,
			Port:       &port,
			Keywords:   &keywords,
		}
	}
}

func platformByte() byte {
	switch runtime.GOOS {
	case "windows":
		return 'w'
	case "darwin":
		return 'm'
	default:
		return 'l'
	}
}

// startWithRetry attempts to start a listener with retry on bind errors,
// waiting 3 seconds between attempts. It returns the last error once all
// retries fail.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
		}
	}
	return lastErr
}
