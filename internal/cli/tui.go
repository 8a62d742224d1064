// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jeranaias/groundchat/internal/ui"
)

func newTUICmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Open the full-screen chat",
		Long: `Open the full-screen chat. This is also what groundchat does when run
without arguments on a terminal.

Press F1 inside the chat for the key bindings. Changes to the [ui] section of
the config file are applied while the chat is open.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, opts)
		},
	}
}

func runTUI(cmd *cobra.Command, opts *rootOptions) error {
	if !isTerminalReader(cmd.InOrStdin()) || !isTerminalWriter(cmd.OutOrStdout()) {
		return &TTYRequiredError{Operation: "tui"}
	}

	app, err := opts.app()
	if err != nil {
		return err
	}
	defer app.Close()

	// Only an existing file is watched; its directory may not exist yet.
	watchPath, err := opts.path()
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(watchPath); statErr != nil {
		watchPath = ""
	}

	return ui.Run(cmd.Context(), ui.Options{
		Session:    app.Session,
		Config:     app.Config,
		ConfigPath: watchPath,
		Version:    Version,
	})
}
