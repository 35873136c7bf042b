package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opencode-ai/chathost/internal/config"
	"github.com/opencode-ai/chathost/internal/event"
	"github.com/opencode-ai/chathost/internal/host"
	"github.com/opencode-ai/chathost/internal/logging"
	"github.com/opencode-ai/chathost/internal/model"
	"github.com/opencode-ai/chathost/internal/server"
	"github.com/opencode-ai/chathost/internal/session"
	"github.com/opencode-ai/chathost/internal/transcript"
)

var (
	servePort int
	serveDir  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat participant host server",
	Long: `Start the host as an HTTP server. Inbound protocol calls arrive as
JSON requests; outbound calls to the peer are streamed over the /event
feed.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Config directory")
}

func runServe(cmd *cobra.Command, args []string) error {
	dir := serveDir
	if dir == "" {
		dir, _ = os.Getwd()
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if prettyLogs {
		cfg.PrettyLogs = true
	}

	logging.Init(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Pretty: cfg.PrettyLogs,
	})

	bus := event.NewBus()
	defer bus.Close()

	peer := server.NewBusPeer(bus)
	registry := host.NewRegistry(host.NewHandleAllocator(), peer, bus)
	sessions := session.NewRegistry(bus)
	models := model.NewRegistry()

	var archive *transcript.Archive
	if cfg.DataDir != "" {
		archive = transcript.NewArchive(cfg.DataDir)
	}

	coordinator := host.NewCoordinator(host.CoordinatorOptions{
		Registry:    registry,
		Models:      models,
		Sessions:    sessions,
		Peer:        peer,
		Bus:         bus,
		Archive:     archive,
		GracePeriod: cfg.GracePeriod(),
		FlushDelay:  cfg.FlushDelay(),
	})

	srv := server.New(cfg, registry, coordinator, sessions, bus, archive)

	go func() {
		logging.Info().Int("port", cfg.Port).Str("version", Version).Msg("chathost listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
