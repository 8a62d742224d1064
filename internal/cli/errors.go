// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"

	"github.com/jeranaias/groundchat/internal/backend"
	"github.com/jeranaias/groundchat/internal/chat"
	"github.com/jeranaias/groundchat/internal/config"
	"github.com/jeranaias/groundchat/internal/history"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitUsageError   = 2
	ExitConfigError  = 3
	ExitNetworkError = 5
	ExitNotFound     = 7
	ExitTimeoutError = 8

	// ExitStopped is used when the user interrupted an answer.
	ExitStopped = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError is a command failure with context for the user.
type CommandError struct {
	Command string // e.g. "history"
	Action  string // e.g. "rename"
	Reason  string
	Err     error
}

func (e *CommandError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s failed: %s: %v", e.Command, e.Action, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s %s failed: %s", e.Command, e.Action, e.Reason)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError creates a CommandError.
func NewCommandError(command, action, reason string, err error) *CommandError {
	return &CommandError{Command: command, Action: action, Reason: reason, Err: err}
}

// UsageError reports invalid arguments.
type UsageError struct {
	Message string
}

func (e *UsageError) Error() string {
	return e.Message
}

// errAnswerFailed is returned once a failure notice has been shown, so the
// command exits non-zero without printing it twice.
var errAnswerFailed = errors.New("answer failed")

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// ExitCode maps an error returned by a command onto a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var usage *UsageError
	var tty *TTYRequiredError
	var verrs config.ValidateErrors
	switch {
	case errors.As(err, &usage), errors.As(err, &tty):
		return ExitUsageError
	case errors.As(err, &verrs):
		return ExitConfigError
	case chat.IsStopped(err):
		return ExitStopped
	case errors.Is(err, backend.ErrTimeout):
		return ExitTimeoutError
	case errors.Is(err, backend.ErrConnection):
		return ExitNetworkError
	case errors.Is(err, history.ErrConversationNotFound):
		return ExitNotFound
	default:
		return ExitGeneralError
	}
}

// silent reports whether err was already shown to the user.
func silent(err error) bool {
	return errors.Is(err, errAnswerFailed) || chat.IsStopped(err)
}
