// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui runs the full-screen terminal interface.
package ui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/groundchat/internal/chat"
	"github.com/jeranaias/groundchat/internal/config"
	chatview "github.com/jeranaias/groundchat/internal/ui/chat"
)

// Options configures Run.
type Options struct {
	Session *chat.Session
	Config  *config.Config

	// ConfigPath is watched for changes to the UI settings. Empty disables
	// reloading.
	ConfigPath string
	Version    string
}

// Run shows the chat view until the user quits or ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	if opts.Session == nil {
		return errors.New("ui: no session")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := chatview.New(ctx, opts.Session, chatview.Options{
		UI:          cfg.UI,
		ProductName: cfg.Chat.ProductName,
		Version:     opts.Version,
	})
	p := tea.NewProgram(m,
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)

	// Listeners run on session goroutines and sometimes inside Update, so
	// Send must not block them. Ordering is restored by snapshot Seq.
	opts.Session.Subscribe(func(snap chat.Snapshot) {
		go p.Send(chatview.SnapshotMsg{Snapshot: snap})
	})

	if opts.ConfigPath != "" {
		err := config.Watch(ctx, opts.ConfigPath, func(cfg *config.Config, err error) {
			go p.Send(chatview.ConfigMsg{Config: cfg, Err: err})
		})
		if err != nil {
			return fmt.Errorf("failed to watch config: %w", err)
		}
	}

	_, err := p.Run()
	opts.Session.StopGenerating()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
