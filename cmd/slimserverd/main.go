// Package main is the entry point for the SlimServer player daemon.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/timbell/slimserver/internal/config"
	"github.com/timbell/slimserver/internal/domain/nowplaying"
	"github.com/timbell/slimserver/internal/domain/registry"
	"github.com/timbell/slimserver/internal/domain/remote"
	"github.com/timbell/slimserver/internal/hardware/mas3507d"
	"github.com/timbell/slimserver/internal/hardware/vfd"
	"github.com/timbell/slimserver/internal/infra/history"
	"github.com/timbell/slimserver/internal/infra/mpd"
	"github.com/timbell/slimserver/internal/infra/prefs"
	"github.com/timbell/slimserver/internal/transport/slimp3"
	"github.com/timbell/slimserver/internal/version"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "/etc/slimserver/config.yaml", "Path to the configuration file")
	port := flag.Int("port", 0, "UDP listen port override")
	mpdAddr := flag.String("mpd", "", "MPD address override (host:port)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if *port != 0 {
		cfg.Listen.Port = *port
	}
	if *mpdAddr != "" {
		cfg.MPD.Address = *mpdAddr
	}

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// Print startup banner
	versionInfo := version.GetInfo()
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", versionInfo.String())
	log.Info().Msg("  SliMP3 Player Daemon")
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().
		Str("listen", cfg.Listen.Addr()).
		Str("mpd", cfg.MPD.Address).
		Str("stream", cfg.MPD.StreamURL).
		Bool("password_set", cfg.MPD.Password != "").
		Msg("Configuration")

	// Preferences and player registry
	store, err := prefs.Open(cfg.PrefsPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open preferences")
	}

	players, err := registry.New(store)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load player registry")
	}

	// Playback history
	plays := history.NewStore(cfg.HistoryPath)
	if err := plays.Open(); err != nil {
		log.Fatal().Err(err).Msg("Failed to open playback history")
	}
	defer plays.Close()

	// MPD client
	mpdClient := mpd.NewClient(cfg.MPD.Address, cfg.MPD.Password)
	if err := mpdClient.Connect(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to MPD")
	}
	defer mpdClient.Close()

	if err := mpdClient.Ping(); err != nil {
		log.Fatal().Err(err).Msg("MPD ping failed")
	}
	log.Info().Msg("MPD connection verified")

	// Player-facing services
	source := mpd.NewStreamSource(cfg.MPD.StreamURL)
	streamer := slimp3.NewStreamer(source)
	defer streamer.Close()

	decoder := mas3507d.New()
	screen := vfd.NewScreen(vfd.DefaultBrightness)
	monitor := nowplaying.NewMonitor(mpdClient, screen, plays, nowplaying.DefaultWindow)
	keys := remote.NewHandler(mpdClient, decoder, store)

	d := newDaemon(players, store, streamer, decoder, screen, monitor, keys)

	srv, err := slimp3.NewServer(cfg.Listen.Addr(), d)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to bind control socket")
	}
	d.conn = srv.Conn()

	// Start MPD watcher
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := monitor.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start MPD watcher")
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info().Msg("Shutting down...")
		cancel()
		streamer.Close()
		srv.Close()
	}()

	log.Info().Str("addr", cfg.Listen.Addr()).Msg("Listening for players")
	if err := srv.Serve(); err != nil {
		log.Fatal().Err(err).Msg("Control socket error")
	}

	log.Info().Msg("Server stopped")
}
