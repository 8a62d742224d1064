// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/groundchat/internal/config"
	"github.com/jeranaias/groundchat/internal/model"
)

// Version information, set by main.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	model      string
	history    string
	baseURL    string
	debug      bool
	jsonOutput bool
}

// NewRootCmd builds the full command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "groundchat [question]",
		Short: "Terminal client for a grounded chat backend",
		Long: `groundchat talks to a grounded chat backend: it streams answers with their
citations and keeps conversations in the backend's chat history, or in a local
SQLite database when no history service is available.

Examples:
  groundchat                          Open the full-screen chat
  groundchat "What is our VPN policy?" Ask one question
  echo "Summarize the memo" | groundchat ask
  groundchat chat                     Line-based chat with input history
  groundchat history list             List saved conversations
  groundchat config init              Write a default config file
  groundchat doctor                   Check the setup`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 || !isTerminalReader(cmd.InOrStdin()) {
				return runAsk(cmd, opts, args, askOptions{})
			}
			return runTUI(cmd, opts)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (default ~/.groundchat/config.toml)")
	flags.StringVarP(&opts.model, "model", "m", "", "model to ask (gpt-4, dall-e-3)")
	flags.StringVar(&opts.history, "history", "", "history backend: remote, sqlite or none")
	flags.StringVar(&opts.baseURL, "base-url", "", "backend URL")
	flags.BoolVar(&opts.debug, "debug", false, "log every stream fragment")
	flags.BoolVar(&opts.jsonOutput, "json", false, "machine-readable output")

	_ = rootCmd.RegisterFlagCompletionFunc("model", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return model.ModelIDs(), cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("history", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{config.HistoryRemote, config.HistorySQLite, config.HistoryNone}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(
		newAskCmd(opts),
		newChatCmd(opts),
		newTUICmd(opts),
		newHistoryCmd(opts),
		newConfigCmd(opts),
		newDoctorCmd(opts),
		newVersionCmd(opts),
	)
	return rootCmd
}

// Execute runs the command tree against os.Args and exits with the code
// ExitCode assigns to the result.
func Execute() {
	cmd := NewRootCmd()
	err := cmd.ExecuteContext(context.Background())
	if err != nil && !silent(err) {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error:"), err)
	}
	os.Exit(ExitCode(err))
}

// =============================================================================
// CONFIG AND APP LOADING
// =============================================================================

// path returns the config file commands read and write.
func (o *rootOptions) path() (string, error) {
	if o.configPath != "" {
		return o.configPath, nil
	}
	return config.ConfigPathTOML()
}

// loadConfig reads the configuration and applies flag overrides, which win
// over both the file and the environment.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = config.LoadFromPath(o.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if o.model != "" {
		cfg.Chat.Model = o.model
	}
	if o.history != "" {
		cfg.History.Backend = strings.ToLower(o.history)
	}
	if o.baseURL != "" {
		cfg.Backend.BaseURL = o.baseURL
	}
	if o.debug {
		cfg.Log.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// app loads the configuration and builds an App from it.
func (o *rootOptions) app() (*App, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return NewApp(cfg)
}

// =============================================================================
// VERSION
// =============================================================================

func newVersionCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data := VersionData{
				Version:   Version,
				GitCommit: GitCommit,
				BuildDate: BuildDate,
				GoVersion: runtime.Version(),
			}
			if opts.jsonOutput {
				return NewJSONResponse("version", data).Write(cmd.OutOrStdout())
			}
			fmt.Fprintf(cmd.OutOrStdout(), "groundchat %s (commit %s, built %s, %s)\n",
				data.Version, data.GitCommit, data.BuildDate, data.GoVersion)
			return nil
		},
	}
}
