// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// doctor.go - health checks for the groundchat setup.
//
// Checks performed:
//  1. Config Valid      - the config file loads and validates
//  2. Request Log       - the request log can be opened (when enabled)
//  3. Backend Reachable - the backend answers HTTP at its base URL
//  4. Chat History      - the history service reports working
//  5. Clipboard         - --copy and /copy have a clipboard to write to
//
// Exit Codes:
//
//	0   no check failed
//	1   one or more checks failed

package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/jeranaias/groundchat/internal/config"
	"github.com/jeranaias/groundchat/internal/history"
	"github.com/jeranaias/groundchat/internal/logging"
)

const doctorTimeout = 5 * time.Second

// =============================================================================
// HEALTH CHECK TYPES
// =============================================================================

// CheckStatus represents the status of a health check.
type CheckStatus int

const (
	CheckPass CheckStatus = iota
	CheckWarn
	CheckFail
)

func (s CheckStatus) String() string {
	switch s {
	case CheckPass:
		return "pass"
	case CheckWarn:
		return "warn"
	case CheckFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Symbol returns the marker printed before the check message.
func (s CheckStatus) Symbol() string {
	switch s {
	case CheckPass:
		return SuccessStyle.Render("[OK]")
	case CheckWarn:
		return WarningStyle.Render("[!!]")
	case CheckFail:
		return ErrorStyle.Render("[FAIL]")
	default:
		return "?"
	}
}

// HealthCheck represents a single health check result.
type HealthCheck struct {
	Name    string      `json:"name"`
	Status  CheckStatus `json:"-"`
	Message string      `json:"message"`
	Fix     string      `json:"fix,omitempty"` // suggested command or instruction
}

// Render returns the check as one or two lines of text.
func (c *HealthCheck) Render() string {
	result := fmt.Sprintf("%s %s", c.Status.Symbol(), c.Message)
	if c.Status != CheckPass && c.Fix != "" {
		result += "\n" + DimStyle.Render("    -> "+c.Fix)
	}
	return result
}

// DoctorData is the JSON payload of the doctor command.
type DoctorData struct {
	Checks  []DoctorCheck `json:"checks"`
	Passed  int           `json:"passed"`
	Warned  int           `json:"warned"`
	Failed  int           `json:"failed"`
	Healthy bool          `json:"healthy"`
}

// DoctorCheck is one check in DoctorData.
type DoctorCheck struct {
	HealthCheck
	Status string `json:"status"`
}

// =============================================================================
// COMMAND
// =============================================================================

func newDoctorCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "doctor",
		Aliases: []string{"diag"},
		Short:   "Check the configuration, backend and chat history",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			checks := runChecks(cmd.Context(), opts)
			return reportChecks(cmd.OutOrStdout(), checks, opts.jsonOutput)
		},
	}
}

func reportChecks(w io.Writer, checks []*HealthCheck, jsonMode bool) error {
	data := DoctorData{}
	for _, c := range checks {
		switch c.Status {
		case CheckPass:
			data.Passed++
		case CheckWarn:
			data.Warned++
		case CheckFail:
			data.Failed++
		}
		data.Checks = append(data.Checks, DoctorCheck{HealthCheck: *c, Status: c.Status.String()})
	}
	data.Healthy = data.Failed == 0

	var failure error
	if data.Failed > 0 {
		failure = fmt.Errorf("%d health check(s) failed", data.Failed)
	}

	if jsonMode {
		resp := NewJSONResponse("doctor", data)
		if failure != nil {
			msg := failure.Error()
			resp.Success = false
			resp.Error = &msg
		}
		if err := resp.Write(w); err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(w, TitleStyle.Render("groundchat doctor"))
	fmt.Fprintln(w, RenderSeparator(41))
	for _, c := range checks {
		fmt.Fprintln(w, c.Render())
	}
	fmt.Fprintln(w, RenderSeparator(41))

	summary := []string{fmt.Sprintf("%d passed", data.Passed)}
	if data.Warned > 0 {
		summary = append(summary, WarningStyle.Render(fmt.Sprintf("%d warning", data.Warned)))
	}
	if data.Failed > 0 {
		summary = append(summary, ErrorStyle.Render(fmt.Sprintf("%d failed", data.Failed)))
	}
	fmt.Fprintln(w, strings.Join(summary, ", "))
	return failure
}

// =============================================================================
// HEALTH CHECK FUNCTIONS
// =============================================================================

// runChecks runs every check. Checks that need a valid configuration are
// skipped when it does not load.
func runChecks(ctx context.Context, opts *rootOptions) []*HealthCheck {
	cfgCheck, cfg := checkConfigValid(opts)
	checks := []*HealthCheck{cfgCheck}
	if cfg == nil {
		return append(checks, checkClipboard())
	}

	checks = append(checks,
		checkRequestLog(cfg.Log),
		checkBackendReachable(ctx, cfg.Backend.BaseURL),
		checkHistory(ctx, cfg),
		checkClipboard(),
	)
	return checks
}

func checkConfigValid(opts *rootOptions) (*HealthCheck, *config.Config) {
	check := &HealthCheck{Name: "Config Valid"}

	path, err := opts.path()
	if err != nil {
		check.Status = CheckWarn
		check.Message = "Could not determine config path: " + err.Error()
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		check.Status = CheckFail
		check.Message = "Config invalid: " + err.Error()
		check.Fix = "Run: groundchat config init --force"
		return check, nil
	}
	if check.Status == CheckPass {
		check.Message = "Config valid (" + path + ")"
	}
	return check, cfg
}

func checkRequestLog(cfg config.LogConfig) *HealthCheck {
	check := &HealthCheck{Name: "Request Log"}
	if !cfg.Enabled {
		check.Message = "Request log disabled"
		return check
	}
	logger, err := logging.New(cfg)
	if err != nil {
		check.Status = CheckFail
		check.Message = "Request log not writable: " + err.Error()
		check.Fix = "Run: groundchat config set log.enabled false"
		return check
	}
	defer logger.Close()
	check.Message = "Request log at " + logger.Path()
	return check
}

// checkBackendReachable only needs an HTTP response; the status code does
// not matter.
func checkBackendReachable(ctx context.Context, baseURL string) *HealthCheck {
	check := &HealthCheck{Name: "Backend Reachable"}

	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		check.Status = CheckFail
		check.Message = "Invalid backend URL: " + err.Error()
		check.Fix = "Run: groundchat config set backend.base_url <url>"
		return check
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("Backend not reachable at %s", baseURL)
		check.Fix = "Check that the backend is running and backend.base_url is correct"
		return check
	}
	resp.Body.Close()
	check.Message = fmt.Sprintf("Backend reachable at %s (HTTP %d)", baseURL, resp.StatusCode)
	return check
}

func checkHistory(ctx context.Context, cfg *config.Config) *HealthCheck {
	check := &HealthCheck{Name: "Chat History"}

	app, err := NewApp(cfg)
	if err != nil {
		check.Status = CheckFail
		check.Message = "Could not open chat history: " + err.Error()
		return check
	}
	defer app.Close()

	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()

	status, _ := app.Store.Ensure(ctx)
	check.Message = fmt.Sprintf("%s (%s)", status, cfg.History.Backend)
	switch status {
	case history.StatusWorking:
	case history.StatusNotConfigured:
		check.Status = CheckWarn
		check.Fix = "Answers will not be saved. Run: groundchat config set history.backend sqlite"
	default:
		check.Status = CheckFail
		check.Fix = "Contact the site administrator, or keep history locally with history.backend = sqlite"
	}
	return check
}

func checkClipboard() *HealthCheck {
	check := &HealthCheck{Name: "Clipboard"}
	if clipboard.Unsupported {
		check.Status = CheckWarn
		check.Message = "No clipboard available; --copy and /copy will not work"
		check.Fix = "Install xclip, xsel or wl-clipboard"
		return check
	}
	check.Message = "Clipboard available"
	return check
}
