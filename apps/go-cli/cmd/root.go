package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	fixturePath string
	verbose     bool
	useYAML     bool
)

var rootCmd = &cobra.Command{
	Use:   "firebase-ktx",
	Short: "Observe an in-memory realtime database and push messages as event streams",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&fixturePath, "fixture", "", "YAML fixture seeding the database and the writes to replay")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&useYAML, "yaml", false, "Print output in YAML format instead of text")

	// Allow env override
	if envFixture := os.Getenv("FIREBASE_KTX_FIXTURE"); envFixture != "" {
		fixturePath = envFixture
	}
}

// SetVersion sets the version string shown by --version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
