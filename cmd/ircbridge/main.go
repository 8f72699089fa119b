// Command ircbridge runs the IRC-to-team-chat bridge: a single cobra
// root command that loads config.Config, assembles a gateway.Gateway,
// and runs it until SIGINT/SIGTERM, mirroring the teacher's own
// flag/signal/shutdown-timeout shape in cmd/server/main.go and
// internal/app/app.go.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/slackbridge/internal/config"
	"github.com/vovakirdan/slackbridge/internal/gateway"
	logpkg "github.com/vovakirdan/slackbridge/internal/logging"
)

const shutdownTimeout = 5 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		port       int
		unixSocket string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "ircbridge",
		Short: "Bridge IRC clients to a team-chat workspace's real-time API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, port, unixSocket, logLevel)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "ircbridge.conf", "path to the key=value config file")
	cmd.Flags().IntVar(&port, "port", 0, "override the config file's IRC listener port (0 = use config)")
	cmd.Flags().StringVar(&unixSocket, "unix-socket", "", "override the config file's unix socket path")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")

	return cmd
}

func run(configPath string, portOverride int, unixSocketOverride, logLevel string) error {
	log := logpkg.New(logLevel)

	cfg, err := config.Load(log, configPath)
	if err != nil {
		log.Error().Err(err).Str("path", configPath).Msg("failed to load config")
		return fmt.Errorf("load config: %w", err)
	}

	port := cfg.Port
	if portOverride != 0 {
		port = portOverride
	}
	unixSocket := cfg.UnixSocket
	if unixSocketOverride != "" {
		unixSocket = unixSocketOverride
	}

	gw, err := gateway.New(gateway.Config{
		UpstreamBaseURL: "https://slack.com/api",
		UpstreamToken:   cfg.SlackToken,
		Port:            port,
		UnixSocketPath:  unixSocket,
		Password:        cfg.Password,
		DebugDump:       cfg.DebugDump,
	}, log)
	if err != nil {
		log.Error().Err(err).Msg("failed to assemble gateway")
		return fmt.Errorf("assemble gateway: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.Watch(ctx, configPath, log, func(password string, debugDump bool) {
		gw.SetPassword(password)
		gw.SetDebugDump(debugDump)
	}); err != nil {
		log.Warn().Err(err).Msg("config hot-reload disabled")
	}

	log.Info().Int("port", port).Str("unix_socket", unixSocket).Msg("starting ircbridge")

	runDone := make(chan struct{})
	go func() {
		gw.Run(ctx)
		close(runDone)
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	select {
	case <-runDone:
	case <-time.After(shutdownTimeout):
		log.Warn().Msg("shutdown timed out waiting for gateway to stop")
	}

	return nil
}
