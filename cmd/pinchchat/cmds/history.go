package cmds

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/pinchchat/pkg/export"
	"github.com/go-go-golems/pinchchat/pkg/gateway"
	"github.com/go-go-golems/pinchchat/pkg/i18n"
)

func newHistoryCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect and reconcile cached conversation histories",
	}
	cmd.AddCommand(
		newHistoryListCommand(a),
		newHistoryShowCommand(a),
		newHistoryReconcileCommand(a),
		newHistoryRefreshCommand(a),
		newHistoryStatsCommand(a),
		newHistoryExportCommand(a),
	)
	return cmd
}

func newHistoryListCommand(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cached sessions, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, store, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			sessions, err := svc.Sessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), sessions)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of sessions")
	return cmd
}

func newHistoryShowCommand(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show <session-key>",
		Short: "Print the cached history of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, store, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			msgs, err := svc.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch format {
			case "json":
				return writeJSON(out, msgs)
			case "yaml":
				b, err := export.YAML(msgs)
				if err != nil {
					return err
				}
				_, err = out.Write(b)
				return err
			case "markdown", "md":
				_, err := io.WriteString(out, export.Markdown(msgs, args[0], i18n.Default()))
				return err
			default:
				return errors.Errorf("unknown format %q", format)
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "Output format (json, yaml, markdown)")
	return cmd
}

func newHistoryReconcileCommand(a *app) *cobra.Command {
	var windowFile string
	cmd := &cobra.Command{
		Use:   "reconcile <session-key>",
		Short: "Reconcile a gateway window read from a file (or - for stdin) into the cache",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, windowFile)
			if err != nil {
				return err
			}
			window, err := gateway.DecodeWindow(raw)
			if err != nil {
				return err
			}
			svc, store, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			res, err := svc.Apply(cmd.Context(), args[0], window)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&windowFile, "window", "-", "Window JSON file, - for stdin")
	return cmd
}

func newHistoryRefreshCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh <session-key>...",
		Short: "Pull the gateway windows from --gateway-dir and reconcile them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.settings.Server.GatewayDir == "" {
				return errors.New("--gateway-dir is required for refresh")
			}
			svc, store, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			results, err := svc.RefreshAll(cmd.Context(), args)
			if err != nil {
				return err
			}
			summary := map[string]map[string]any{}
			for key, res := range results {
				summary[key] = map[string]any{
					"messages":     len(res.Messages),
					"wasCompacted": res.WasCompacted,
				}
			}
			return writeJSON(cmd.OutOrStdout(), summary)
		},
	}
	return cmd
}

func newHistoryStatsCommand(a *app) *cobra.Command {
	var approx bool
	cmd := &cobra.Command{
		Use:   "stats <session-key>",
		Short: "Count live, archived and separator records and their tokens",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, store, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			msgs, err := svc.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var counter export.TokenCounter = export.ApproxCounter{}
			if !approx {
				counter = tokenCounter()
			}
			stats := export.ComputeStats(msgs, counter)
			tr := i18n.Default()
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				tr.T("stats.messages"):   stats.Messages,
				tr.T("stats.live"):       stats.Live,
				tr.T("stats.archived"):   stats.Archived,
				tr.T("stats.separators"): stats.Separators,
				tr.T("stats.tokens"):     stats.Tokens(),
			})
		},
	}
	cmd.Flags().BoolVar(&approx, "approx", false, "Use the 4-characters-per-token estimate instead of tiktoken")
	return cmd
}

func newHistoryExportCommand(a *app) *cobra.Command {
	var (
		label  string
		pretty bool
		style  string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export <session-key>",
		Short: "Export a cached history as Markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, store, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			msgs, err := svc.History(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			md := export.Markdown(msgs, label, i18n.Default())
			if pretty {
				if md, err = export.Pretty(md, style); err != nil {
					return err
				}
			}
			if output == "" || output == "-" {
				_, err = io.WriteString(cmd.OutOrStdout(), md)
				return err
			}
			return errors.Wrapf(os.WriteFile(output, []byte(md), 0o644), "write %q", output)
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "Document title (default: Conversation)")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "Render for the terminal with glamour")
	cmd.Flags().StringVar(&style, "style", export.DefaultStyle, "glamour style for --pretty")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if strings.TrimSpace(path) == "" || path == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		return b, errors.Wrap(err, "read stdin")
	}
	b, err := os.ReadFile(path)
	return b, errors.Wrapf(err, "read %q", path)
}
