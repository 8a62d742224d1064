// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/groundchat/internal/export"
	"github.com/jeranaias/groundchat/internal/history"
	"github.com/jeranaias/groundchat/internal/util"
)

func newHistoryCmd(opts *rootOptions) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Manage saved conversations",
		Long: `View and manage the conversations kept by the history service.

The service is the backend's chat history by default. Set history.backend to
"sqlite" to keep conversations in a local database instead.`,
	}

	historyCmd.AddCommand(
		newHistoryStatusCmd(opts),
		newHistoryListCmd(opts),
		newHistoryShowCmd(opts),
		newHistoryRenameCmd(opts),
		newHistoryDeleteCmd(opts),
		newHistoryDeleteAllCmd(opts),
		newHistoryClearCmd(opts),
		newHistoryExportCmd(opts),
	)
	return historyCmd
}

// historyApp builds an App and requires a working history service.
func (o *rootOptions) historyApp(cmd *cobra.Command, action string) (*App, error) {
	app, err := o.app()
	if err != nil {
		return nil, err
	}
	status, err := app.Session.RefreshHistory(cmd.Context())
	if !status.Available() {
		app.Close()
		return nil, NewCommandError("history", action, status.String(), err)
	}
	if err != nil {
		app.Close()
		return nil, NewCommandError("history", action, "could not load conversations", err)
	}
	return app, nil
}

// =============================================================================
// STATUS
// =============================================================================

func newHistoryStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check whether chat history is available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.app()
			if err != nil {
				return err
			}
			defer app.Close()

			status, ensureErr := app.Store.Ensure(cmd.Context())
			data := StatusData{
				Backend: app.Config.History.Backend,
				Status:  status.String(),
				Mode:    app.Session.Mode().String(),
			}
			if ensureErr != nil && status != history.StatusNotConfigured {
				data.Error = ensureErr.Error()
			}

			out := cmd.OutOrStdout()
			if opts.jsonOutput {
				return NewJSONResponse("history status", data).Write(out)
			}
			fmt.Fprintf(out, "%s %s\n", RenderLabel("Backend"), data.Backend)
			fmt.Fprintf(out, "%s %s %s\n", RenderLabel("Status"), statusMarker(status), data.Status)
			fmt.Fprintf(out, "%s %s\n", RenderLabel("Next question"), data.Mode)
			if data.Error != "" {
				fmt.Fprintf(out, "%s %s\n", RenderLabel("Error"), ErrorStyle.Render(data.Error))
			}
			return nil
		},
	}
}

func statusMarker(s history.Status) string {
	switch s {
	case history.StatusWorking:
		return RenderStatus("ok")
	case history.StatusNotConfigured:
		return RenderStatus("warning")
	default:
		return RenderStatus("fail")
	}
}

// =============================================================================
// LIST AND SHOW
// =============================================================================

func newHistoryListCmd(opts *rootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved conversations, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.historyApp(cmd, "list")
			if err != nil {
				return err
			}
			defer app.Close()

			return OutputJSON(cmd.OutOrStdout(), opts.jsonOutput, "history list", func() (any, error) {
				if all {
					for {
						added, err := app.Store.LoadMore(cmd.Context())
						if err != nil {
							return nil, err
						}
						if added == 0 {
							break
						}
					}
				}
				convs := app.Store.Conversations()
				rows := make([]ConversationData, 0, len(convs))
				for _, c := range convs {
					rows = append(rows, conversationData(c))
				}
				if !opts.jsonOutput {
					printConversationTable(cmd.OutOrStdout(), rows)
				}
				return rows, nil
			})
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "load every page, not just the first")
	return cmd
}

func printConversationTable(w io.Writer, rows []ConversationData) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No conversations found.")
		return
	}
	fmt.Fprintf(w, "%3s  %s  %s  %s\n", "#", util.PadWidth("TITLE", 40), util.PadWidth("CREATED", 16), "ID")
	for i, r := range rows {
		fmt.Fprintf(w, "%3d  %s  %s  %s\n", i+1,
			util.PadWidth(r.Title, 40),
			util.PadWidth(r.CreatedAt.Local().Format("2006-01-02 15:04"), 16),
			r.ID)
	}
}

func newHistoryShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <n|id>",
		Short: "Show a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.historyApp(cmd, "show")
			if err != nil {
				return err
			}
			defer app.Close()

			conv, err := openConversation(cmd.Context(), app.Session, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			render := NewRenderer(app.Config.UI, isTerminalWriter(out))
			if opts.jsonOutput {
				return render.JSON(out, conv)
			}

			fmt.Fprintln(out, TitleStyle.Render(conv.Title))
			fmt.Fprintf(out, "%s %s\n", RenderLabel("ID"), conv.ID)
			fmt.Fprintf(out, "%s %s\n", RenderLabel("Created"), conv.CreatedAt.Local().Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "%s %d\n", RenderLabel("Messages"), len(conv.Messages))
			fmt.Fprintln(out, RenderSeparator())
			render.Messages(out, conv.Messages)
			return nil
		},
	}
}

// =============================================================================
// MUTATIONS
// =============================================================================

func newHistoryRenameCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <n|id> <title...>",
		Short: "Rename a conversation",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.historyApp(cmd, "rename")
			if err != nil {
				return err
			}
			defer app.Close()

			id, err := resolveConversation(cmd.Context(), app.Store, args[0])
			if err != nil {
				return err
			}
			title := strings.Join(args[1:], " ")
			if err := app.Store.Rename(cmd.Context(), id, title); err != nil {
				return NewCommandError("history", "rename", "the history service rejected the change", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s to %q\n", id, title)
			return nil
		},
	}
}

func newHistoryDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <n|id>",
		Short: "Delete a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.historyApp(cmd, "delete")
			if err != nil {
				return err
			}
			defer app.Close()

			id, err := resolveConversation(cmd.Context(), app.Store, args[0])
			if err != nil {
				return err
			}
			if err := app.Store.Delete(cmd.Context(), id); err != nil {
				return NewCommandError("history", "delete", "the history service rejected the change", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", id)
			return nil
		},
	}
}

func newHistoryDeleteAllCmd(opts *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete-all",
		Short: "Delete every conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), "Delete all conversations?", yes || opts.jsonOutput)
			if err != nil || !ok {
				return err
			}

			app, err := opts.historyApp(cmd, "delete-all")
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Store.DeleteAll(cmd.Context()); err != nil {
				return NewCommandError("history", "delete-all", "the history service rejected the change", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All conversations deleted.")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func newHistoryClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <n|id>",
		Short: "Remove the messages of a conversation but keep it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.historyApp(cmd, "clear")
			if err != nil {
				return err
			}
			defer app.Close()

			id, err := resolveConversation(cmd.Context(), app.Store, args[0])
			if err != nil {
				return err
			}
			if err := app.Store.Clear(cmd.Context(), id); err != nil {
				return NewCommandError("history", "clear", "the history service rejected the change", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", id)
			return nil
		},
	}
}

// =============================================================================
// EXPORT
// =============================================================================

func newHistoryExportCmd(opts *rootOptions) *cobra.Command {
	var (
		format   string
		dir      string
		toStdout bool
		light    bool
	)
	cmd := &cobra.Command{
		Use:   "export <n|id>",
		Short: "Write a conversation to a Markdown, HTML or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exportOpts := export.DefaultOptions()
			exportOpts.OutputDir = dir
			if light {
				exportOpts.Theme = "light"
			}
			exporter, err := export.ForFormat(format, exportOpts)
			if err != nil {
				return &UsageError{Message: err.Error()}
			}

			app, err := opts.historyApp(cmd, "export")
			if err != nil {
				return err
			}
			defer app.Close()

			conv, err := openConversation(cmd.Context(), app.Session, args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if toStdout {
				data, err := exporter.Export(conv)
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err
			}
			path, err := export.ToFile(conv, exporter, exportOpts)
			if err != nil {
				return err
			}
			return OutputJSON(out, opts.jsonOutput, "history export", func() (any, error) {
				if !opts.jsonOutput {
					fmt.Fprintf(out, "Exported %s to %s\n", conv.ID, path)
				}
				return ExportData{ID: conv.ID, Format: format, Path: path}, nil
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "md", "output format: "+strings.Join(export.Formats(), ", "))
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "directory to write the file to")
	cmd.Flags().BoolVar(&toStdout, "stdout", false, "write to standard output instead of a file")
	cmd.Flags().BoolVar(&light, "light", false, "light theme for HTML output")
	_ = cmd.RegisterFlagCompletionFunc("format", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return export.Formats(), cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

// confirm asks a yes/no question. Without a terminal it refuses unless
// assumeYes is set.
func confirm(in io.Reader, out io.Writer, question string, assumeYes bool) (bool, error) {
	if assumeYes {
		return true, nil
	}
	if !isTerminalReader(in) {
		return false, &UsageError{Message: "refusing to continue without confirmation; pass --yes"}
	}
	fmt.Fprintf(out, "%s [y/N] ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	if answer == "y" || answer == "yes" {
		return true, nil
	}
	fmt.Fprintln(out, "Cancelled.")
	return false, nil
}
