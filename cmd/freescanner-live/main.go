// freescanner-live is a terminal client for a scanner server's live feed.
// It plays calls as they arrive, mirrors the scanner front panel in a TUI,
// and optionally archives audio, logs played calls to PostgreSQL, publishes
// now-playing state over MQTT and serves a control API.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/snarg/freescanner-live/internal/api"
	"github.com/snarg/freescanner-live/internal/config"
	"github.com/snarg/freescanner-live/internal/database"
	"github.com/snarg/freescanner-live/internal/display"
	"github.com/snarg/freescanner-live/internal/livefeed"
	"github.com/snarg/freescanner-live/internal/metrics"
	"github.com/snarg/freescanner-live/internal/mqttclient"
	"github.com/snarg/freescanner-live/internal/runloop"
	"github.com/snarg/freescanner-live/internal/scanner"
	"github.com/snarg/freescanner-live/internal/search"
	"github.com/snarg/freescanner-live/internal/selection"
	"github.com/snarg/freescanner-live/internal/storage"
	"github.com/snarg/freescanner-live/internal/tui"
	"github.com/snarg/freescanner-live/internal/wsclient"
)

var version = "dev"

const (
	archiveWorkers = 2
	archiveBuffer  = 64
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	startTime := time.Now()

	var overrides config.Overrides
	var showVersion bool
	flagSet := pflag.NewFlagSet("freescanner-live", pflag.ContinueOnError)
	flagSet.StringVar(&overrides.EnvFile, "env-file", "", "path to .env file (default: .env)")
	flagSet.StringVarP(&overrides.ServerURL, "server", "s", "", "scanner server URL (overrides SERVER_URL)")
	flagSet.StringVar(&overrides.HTTPAddr, "listen", "", "control API address (overrides HTTP_ADDR)")
	flagSet.StringVar(&overrides.LogLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	flagSet.StringVar(&overrides.LogFile, "log-file", "", "log file (overrides LOG_FILE)")
	flagSet.StringVar(&overrides.DatabaseURL, "database-url", "", "played-call log DSN (overrides DATABASE_URL)")
	flagSet.StringVar(&overrides.AudioDir, "audio-dir", "", "audio archive directory (overrides AUDIO_DIR)")
	flagSet.StringVar(&overrides.AudioPlayer, "player", "", "external audio player command (overrides AUDIO_PLAYER)")
	flagSet.BoolVar(&overrides.Headless, "headless", false, "run without the terminal UI")
	flagSet.BoolVarP(&overrides.Autostart, "live", "l", false, "start the live feed on connect")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Println("freescanner-live", version)
		return nil
	}

	// Config
	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Logger
	log, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	log.Info().Str("version", version).Str("server", cfg.ServerURL).Msg("freescanner-live starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Run loop
	loop := runloop.New(log.With().Str("component", "loop").Logger())
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	loopDone := make(chan struct{})
	go func() {
		loop.Run(loopCtx)
		close(loopDone)
	}()

	// Scanner server link
	ws, err := wsclient.New(wsclient.Options{
		URL:           cfg.ServerURL,
		RetryInterval: cfg.ReconnectInterval,
		Log:           log.With().Str("component", "ws").Logger(),
	})
	if err != nil {
		return fmt.Errorf("server url: %w", err)
	}

	// Archive and call log sinks
	var sinks livefeed.Sinks
	var store storage.CallArchive
	var archiver *storage.Archiver
	if cfg.ArchiveEnabled() {
		storeLog := log.With().Str("component", "storage").Logger()
		s, pruner, err := storage.New(cfg, storeLog)
		if err != nil {
			return err
		}
		store = s
		archiver = storage.NewArchiver(store, archiveBuffer, storeLog)
		archiver.Start(archiveWorkers)
		defer archiver.Stop()
		if pruner != nil {
			pruner.Start()
			defer pruner.Stop()
		}
		sinks = append(sinks, archiver)
	}

	var db *database.DB
	var callLog *database.CallLog
	if cfg.DatabaseURL != "" {
		dbLog := log.With().Str("component", "database").Logger()
		db, err = database.Open(ctx, cfg.DatabaseURL, dbLog)
		if err != nil {
			return fmt.Errorf("open call log: %w", err)
		}
		defer db.Close()
		var keyFn func(*scanner.Call) string
		if archiver != nil {
			keyFn = storage.ArchiveKey
		}
		callLog = database.NewCallLog(db, keyFn, dbLog)
		defer callLog.Stop()
		sinks = append(sinks, callLog)
	}

	// Live feed
	feedLog := log.With().Str("component", "livefeed").Logger()
	var player livefeed.Player
	if cfg.AudioPlayer != "" {
		player = livefeed.NewCommandPlayer(loop, cfg.AudioPlayer, feedLog)
	} else {
		player = livefeed.NewTimedPlayer(loop)
	}
	service := livefeed.New(livefeed.Options{
		Sched:     loop,
		Sender:    ws,
		Player:    player,
		Pins:      livefeed.NewPinStore(cfg.PinFile),
		Beeper:    livefeed.NewBellBeeper(bellOutput(cfg.Headless, os.Stdout, os.Stderr)),
		Sink:      sinks,
		Autostart: cfg.LivefeedAutostart,
		Log:       feedLog,
	})
	ws.SetMessageHandler(func(m wsclient.Message) { loop.Post(func() { service.HandleMessage(m) }) })
	ws.SetConnectHandler(func() { loop.Post(service.HandleConnect) })
	ws.SetDisconnectHandler(func() { loop.Post(service.HandleDisconnect) })

	disp := display.New(service, service, loop, log.With().Str("component", "display").Logger())
	sel := selection.New(service, service)
	found := search.New(service, service)
	if err := loop.Do(ctx, func() {
		if cfg.Pin != "" {
			service.SavePin(cfg.Pin)
		}
		disp.Start()
		sel.Start()
		found.Start()
	}); err != nil {
		return err
	}

	// MQTT
	var mqttConn api.ConnChecker
	if cfg.MQTTBrokerURL != "" {
		clientID := cfg.MQTTClientID
		if clientID == "" {
			clientID = "freescanner-live-" + uuid.NewString()[:8]
		}
		mqttLog := log.With().Str("component", "mqtt").Logger()
		mq, err := mqttclient.Connect(mqttclient.Options{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    clientID,
			TopicPrefix: cfg.MQTTTopicPrefix,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			Log:         mqttLog,
		})
		if err != nil {
			return fmt.Errorf("connect mqtt: %w", err)
		}
		defer mq.Close()
		mqttConn = mq

		mq.SetCommandHandler(func(cmd mqttclient.Command) {
			loop.Post(func() {
				if err := disp.Perform(cmd.Action, cmd.Options); err != nil {
					mqttLog.Warn().Err(err).Str("action", cmd.Action).Msg("mqtt command rejected")
					return
				}
				metrics.ActionsTotal.WithLabelValues("mqtt:" + cmd.Action).Inc()
			})
		})
		bridge := mqttclient.NewBridge(mq, mqttLog)
		cancel := forward(ctx, disp.Subscribe, bridge.Update)
		defer cancel()
	}

	// Metrics
	prometheus.MustRegister(metrics.NewCollector(dbPool(db), liveStats{service, ws}))

	// Scanner connection
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ws.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("websocket client stopped")
		}
	}()

	// HTTP Server
	errCh := make(chan error, 1)
	var srv *api.Server
	if cfg.HTTPAddr != "" {
		opts := api.ServerOptions{
			Display:   disp,
			Selection: sel,
			Search:    found,
			Exec:      loop,
			Server:    ws,
			MQTT:      mqttConn,
			Store:     store,
			Version:   version,
			StartTime: startTime,
		}
		if db != nil {
			opts.DB = db
			opts.Calls = db
		}
		srv = api.NewServer(cfg, opts, log.With().Str("component", "http").Logger())
		go func() {
			errCh <- srv.Start()
		}()
	}

	if cfg.Headless {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutdown signal received")
		case err := <-errCh:
			if err != nil {
				log.Error().Err(err).Msg("http server error")
			}
		}
	} else {
		model := tui.NewModel(disp, sel, found, loop, disp.Snapshot())
		program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
		cancelDisplay := forward(ctx, disp.Subscribe, func(s display.Snapshot) { program.Send(tui.DisplayMsg(s)) })
		cancelSearch := forward(ctx, found.Subscribe, func(s search.Snapshot) { program.Send(tui.SearchMsg(s)) })
		_, err := program.Run()
		cancelDisplay()
		cancelSearch()
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("terminal ui error")
		}
	}
	stop()

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("http server shutdown error")
		}
	}
	if err := loop.Do(shutdownCtx, func() {
		service.Stop()
		disp.Dispose()
		sel.Dispose()
		found.Dispose()
	}); err != nil {
		log.Warn().Err(err).Msg("live feed did not stop cleanly")
	}
	wg.Wait()
	stopLoop()
	<-loopDone

	log.Info().Msg("freescanner-live stopped")
	return nil
}

// newLogger logs to LOG_FILE when set. Without one, headless mode logs to
// stdout and the terminal UI discards logs so they do not tear the screen.
func newLogger(cfg *config.Config) (zerolog.Logger, func(), error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	closeFn := func() {}
	switch {
	case cfg.LogFile != "":
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
		closeFn = func() { f.Close() }
	case !cfg.Headless:
		out = io.Discard
	}
	return zerolog.New(out).With().Timestamp().Logger().Level(level), closeFn, nil
}

// forward delivers snapshots to f off the run loop. A slow f skips
// intermediate snapshots and always sees the latest.
func forward[T any](ctx context.Context, subscribe func(func(T)) func(), f func(T)) (cancel func()) {
	var (
		mu     sync.Mutex
		latest *T
	)
	notify := make(chan struct{}, 1)
	unsubscribe := subscribe(func(s T) {
		mu.Lock()
		latest = &s
		mu.Unlock()
		select {
		case notify <- struct{}{}:
		default:
		}
	})

	ctx, stop := context.WithCancel(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-notify:
				mu.Lock()
				s := latest
				mu.Unlock()
				if s != nil {
					f(*s)
				}
			}
		}
	}()
	return func() {
		unsubscribe()
		stop()
	}
}
