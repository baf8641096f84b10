package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zulandar/hourglass/internal/db"
	"github.com/zulandar/hourglass/internal/models"
	"github.com/zulandar/hourglass/internal/store"
)

func newTurnsCmd() *cobra.Command {
	var (
		configPath string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "turns",
		Short: "List open turns in scheduler order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTurns(cmd.Context(), cmd.OutOrStdout(), configPath, cmd.Flags().Changed("config"), limit)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Hourglass config file")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of turns to list")
	return cmd
}

func runTurns(ctx context.Context, out io.Writer, configPath string, explicit bool, limit int) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(configPath, explicit)
	if err != nil {
		return err
	}
	gdb, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close(gdb)

	st, err := store.NewGormStore(gdb)
	if err != nil {
		return err
	}
	turns, err := st.ListOpen(ctx, limit)
	if err != nil {
		return err
	}
	if len(turns) == 0 {
		fmt.Fprintln(out, "No open turns.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBRANCH\tRECIPIENT\tEXPIRES\tSTRATEGY\tCHANNELS")
	for i := range turns {
		t := &turns[i]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			t.ID, t.Branch.Title, dash(t.RecipientHandle), formatExpires(t), t.TimeoutStrategy.Normalize(), t.NotifiedChannels)
	}
	return w.Flush()
}

func formatExpires(t *models.Turn) string {
	if t.ExpiresAt != nil {
		return t.ExpiresAt.UTC().Format(time.RFC3339)
	}
	if at, ok := t.ComputeExpiresAt(); ok {
		return at.UTC().Format(time.RFC3339) + " (pending)"
	}
	return "-"
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
