package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/ashureev/chatbuddy/internal/domain"
	"github.com/ashureev/chatbuddy/internal/persona"
	"github.com/spf13/cobra"
)

func newPersonasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "personas",
		Short: "List the built-in personas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := persona.LoadCatalog()
			if err != nil {
				return err
			}
			jsonOutput, _ := cmd.Flags().GetBool("json")
			return printPersonas(cmd.OutOrStdout(), catalog.List(), jsonOutput)
		},
	}
}

func printPersonas(w io.Writer, personas []domain.Persona, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Personas []domain.Persona `json:"personas"`
		}{personas})
	}

	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDESCRIPTION")
	for _, p := range personas {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.Name, p.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w, "\nSwitch inside a chat with: /persona <id>")
	return nil
}
