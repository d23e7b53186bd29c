// Command chatbuddy talks to ChatBuddy from a terminal.
package main

import (
	"log/slog"
	"os"

	"github.com/ashureev/chatbuddy/internal/config"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "chatbuddy",
		Short:        "A supportive companion chat in your terminal",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if noColor, _ := cmd.Flags().GetBool("no-color"); noColor || !isTerminal() {
				color.NoColor = true
			}
		},
	}
	root.PersistentFlags().Bool("verbose", false, "Log debug output to stderr")
	root.PersistentFlags().Bool("json", false, "Print machine-readable JSON where supported")
	root.PersistentFlags().Bool("no-color", false, "Disable colored output")

	root.AddCommand(newChatCmd(), newProbeCmd(), newPersonasCmd())
	return root
}

func isTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// loadConfig reads .env and the environment.
func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()
	return config.Load()
}

// newLogger keeps the terminal quiet unless --verbose is set.
func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
