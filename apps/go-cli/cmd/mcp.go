package cmd

import (
	"log/slog"
	"os"

	"github.com/skydoves/firebase-android-ktx/apps/go-cli/internal/mcpserver"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start an MCP (Model Context Protocol) server on stdio",
	Long: `Start an MCP server that exposes an in-memory realtime database as tools and
resources. The database is seeded from --fixture and the fixture steps are
applied before serving.

The server communicates via JSON-RPC over stdin/stdout.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

		fx, err := LoadFixture(fixturePath)
		if err != nil {
			return err
		}
		r, err := openFixtureDB(fx, logger)
		if err != nil {
			return err
		}
		defer r.db.Close()
		if err := r.replay(fx.Steps); err != nil {
			return err
		}

		s := mcpserver.New(r.db, rootCmd.Version, logger)
		return s.Run(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
