// Package commands provides the CLI commands for kitchen.
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/kitchenai/kitchen/internal/config"
	"github.com/kitchenai/kitchen/internal/logging"
)

var (
	// Version information set at build time
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
	serverURL string
)

var rootCmd = &cobra.Command{
	Use:   "kitchen",
	Short: "kitchen - live recipe generation sessions",
	Long: `kitchen runs page sessions that turn a prompt and ingredient tokens into
recipe ideas, streamed to clients as JSON patches.

Run 'kitchen serve' to start the server, 'kitchen watch' to follow a
session and 'kitchen send' to post an event to one.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogging()
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("KITCHEN_SERVER", "http://127.0.0.1:8080"), "Server URL for client commands")

	rootCmd.SetVersionTemplate(fmt.Sprintf("kitchen %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(promptCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// initLogging sends logs to stderr with --print-logs and to a log file
// otherwise.
func initLogging() {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(logLevel)
	if printLogs {
		cfg.Pretty = true
	} else {
		cfg.Output = io.Discard
		cfg.LogToFile = true
		cfg.LogDir = config.GetPaths().LogPath()
		_ = os.MkdirAll(cfg.LogDir, 0755)
	}
	logging.Init(cfg)
}

// GetWorkDir returns the working directory from flag or current directory.
func GetWorkDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
