// commands.go contains the cobra command definitions and their flag
// configurations. Each builder wires a command to its handler.
package main

import (
	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that starts the relay server.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the relay server",
		Long: `Start the relay server.

The server will:
1. Load configuration from the specified file (or built-in defaults)
2. Connect the message store and the ephemeral store
3. Reset any presence rows left online by a previous process
4. Start the typing sweeper and the connection liveness monitor
5. Serve the WebSocket endpoint plus health and metrics endpoints

Graceful shutdown is handled on SIGINT/SIGTERM signals.`,
		Example: `  # Start with defaults (in-memory stores, insecure dev tokens)
  relay serve

  # Start with a production config
  relay serve --config /etc/relay/relay.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false,
		"Enable debug logging (verbose output)")
	return cmd
}

// buildTokenCmd creates the "token" command that mints a signed
// connection token. Development convenience; production deployments
// issue tokens from their own identity service.
func buildTokenCmd() *cobra.Command {
	var (
		configPath string
		userID     string
		name       string
		email      string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed connection token for a user",
		Example: `  relay token --user u_123 --name "Ada" --config relay.yaml

  # Connect with the minted token
  wscat -c "ws://localhost:8081/ws?token=$(relay token --user u_123)"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(cmd, configPath, userID, name, email)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User ID to embed as the token subject")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Display name claim")
	cmd.Flags().StringVarP(&email, "email", "e", "", "Email claim")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
