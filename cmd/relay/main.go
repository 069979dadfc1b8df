// Package main provides the CLI entry point for the relay server.
//
// Relay is a real-time presence and message-relay gateway: clients hold a
// single WebSocket connection over which messages, typing indicators, read
// receipts and presence changes flow between conversation participants.
//
// # Basic Usage
//
// Start the server:
//
//	relay serve --config relay.yaml
//
// Mint a development token:
//
//	relay token --user u_123 --name "Ada"
//
// # Environment Variables
//
// Values in the configuration file are expanded against the environment,
// so secrets can be provided as:
//
//   - RELAY_JWT_SECRET: HMAC secret for connection tokens
//   - DATABASE_URL: Postgres connection string
//   - REDIS_ADDR: Redis address for rate limiting and typing state
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "relay",
		Short:        "Relay - real-time presence and message gateway",
		Long:         "Relay fans chat messages, typing indicators and presence changes\nout to conversation participants over persistent WebSocket connections.",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildTokenCmd(),
	)
	return rootCmd
}
