package main

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/flemzord/chatgate/internal/config"
	"github.com/flemzord/chatgate/internal/export"
	"github.com/flemzord/chatgate/pkg/app"
	"github.com/flemzord/chatgate/pkg/conversation"
	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect saved conversations without starting the server",
	}
	cmd.PersistentFlags().StringP("config", "c", "", "Path to configuration file")
	cmd.PersistentFlags().String("data-dir", "", "Override the persistent data directory")
	cmd.AddCommand(historyListCmd(), historyExportCmd())
	return cmd
}

// openHistory resolves the configuration from the command flags and opens
// the saved history. Module logs are discarded.
func openHistory(cmd *cobra.Command) (*app.OfflineHistory, error) {
	cfgFlag, _ := cmd.Flags().GetString("config")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	path, err := config.Find(cfgFlag)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return app.OpenHistory(cmd.Context(), path, dataDir, logger)
}

func historyListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved conversations, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer h.Close()
			return printHistory(cmd.OutOrStdout(), h.Store.All())
		},
	}
}

// printHistory writes one row per conversation: index, time, mode, preview.
func printHistory(w io.Writer, convs []*conversation.Conversation) error {
	if len(convs) == 0 {
		_, err := fmt.Fprintln(w, "No saved conversations.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tSAVED\tMODE\tPREVIEW")
	for i, c := range convs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i, c.Timestamp.Local().Format("2006-01-02 15:04"), c.Mode, c.Preview)
	}
	return tw.Flush()
}

func historyExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <index>",
		Short: "Export a saved conversation as a PDF transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q", args[0])
			}

			h, err := openHistory(cmd)
			if err != nil {
				return err
			}
			defer h.Close()

			conv, err := h.Store.Get(index)
			if err != nil {
				return fmt.Errorf("history entry %d: %w", index, err)
			}

			var buf bytes.Buffer
			if err := h.Exporter.Write(&buf, conv); err != nil {
				return err
			}

			out, _ := cmd.Flags().GetString("output")
			if out == "" {
				out = export.Filename(time.Now())
			}
			if out == "-" {
				_, err := cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", `Output file ("-" for stdout)`)
	return cmd
}
