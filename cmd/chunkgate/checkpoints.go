package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dgallion1/chunkgate/internal/checkpoint"
	"github.com/dgallion1/chunkgate/internal/config"
)

var checkpointLocation string

func openStore(cmd *cobra.Command) (checkpoint.Store, error) {
	cfg := loadConfig()
	location := cfg.CheckpointURL
	if checkpointLocation != "" {
		location = checkpointLocation
	}
	store, err := checkpoint.Open(cmd.Context(), location, checkpoint.Options{PathstoreAPIKey: cfg.PathstoreAPIKey})
	if err != nil {
		return nil, fmt.Errorf("open checkpoint store: %w", err)
	}
	return store, nil
}

func newStatusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status [DOC_ID]",
		Short: "Show checkpoint state for one or all documents",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()

			var states []checkpoint.State
			if len(args) == 1 {
				st, err := store.Load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if st == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", args[0], checkpoint.PhaseNotStarted)
					return nil
				}
				states = append(states, *st)
			} else if states, err = store.List(cmd.Context()); err != nil {
				return err
			}
			return printStates(cmd.OutOrStdout(), states, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print full checkpoint records as JSON")
	cmd.Flags().StringVar(&checkpointLocation, "checkpoint", "", "checkpoint location (default $CHECKPOINT_URL)")
	return cmd
}

// A CLI process owns no runs, so an unfinished checkpoint reads as interrupted.
func printStates(out io.Writer, states []checkpoint.State, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(states)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DOC_ID\tSTATE\tPAGE\tTOTAL\tACCEPTED\tREJECTED\tLLM_CALLS\tUPDATED")
	for i := range states {
		s := &states[i]
		total := "-"
		if s.TotalPages > 0 {
			total = fmt.Sprint(s.TotalPages)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%d\t%d\t%d\t%s\n", s.DocumentID, checkpoint.PhaseOf(s, false),
			s.LastCompletedPage, total, s.AcceptedCount, s.RejectedCount, s.LLMCallsMade,
			s.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func newResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset DOC_ID",
		Short: "Delete a document's checkpoint so the next run starts over",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cmd)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checkpoint for %s deleted\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&checkpointLocation, "checkpoint", "", "checkpoint location (default $CHECKPOINT_URL)")
	return cmd
}

func newStrategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List the built-in presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tDISPLAY\tDESCRIPTION")
			for _, s := range config.Strategies() {
				marker := ""
				if s.Name == config.DefaultStrategy {
					marker = " (default)"
				}
				fmt.Fprintf(tw, "%s%s\t%s\t%s\n", s.Name, marker, s.DisplayName, s.Description)
			}
			return tw.Flush()
		},
	}
}
