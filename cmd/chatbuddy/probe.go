package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ashureev/chatbuddy/internal/availability"
	"github.com/ashureev/chatbuddy/internal/domain"
	"github.com/ashureev/chatbuddy/internal/gemini"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newProbeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check whether the remote model is reachable",
		Long: `Sends one minimal request to the configured model endpoint and reports
the resulting availability. With --reconnect the check runs the way a manual
reconnect does, bounded by RECONNECT_TIMEOUT.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(cmd)
			client := gemini.NewClient(cfg.Gemini, cfg.Retry, nil, logger)
			monitor := availability.NewMonitor(client, cfg.Availability, logger)

			var state domain.AvailabilityState
			if reconnect, _ := cmd.Flags().GetBool("reconnect"); reconnect {
				_, state = monitor.Reconnect(cmd.Context())
			} else {
				state = monitor.Check(cmd.Context())
			}

			jsonOutput, _ := cmd.Flags().GetBool("json")
			return printProbe(cmd.OutOrStdout(), state, jsonOutput)
		},
	}
	cmd.Flags().Bool("reconnect", false, "Probe with the manual reconnect timeout")
	return cmd
}

func printProbe(w io.Writer, state domain.AvailabilityState, jsonOutput bool) error {
	banner := availability.BannerFor(state)
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(banner)
	}

	switch state.Status {
	case domain.StatusOnline:
		fmt.Fprintf(w, "%s remote model is online\n", color.GreenString("✓"))
	default:
		fmt.Fprintf(w, "%s remote model is %s\n", color.RedString("✗"), state.Status)
		if banner.Text != "" {
			fmt.Fprintln(w, color.YellowString(banner.Text))
		}
	}
	return nil
}
