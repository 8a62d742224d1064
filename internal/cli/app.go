// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/groundchat/internal/backend"
	"github.com/jeranaias/groundchat/internal/chat"
	"github.com/jeranaias/groundchat/internal/config"
	"github.com/jeranaias/groundchat/internal/history"
	"github.com/jeranaias/groundchat/internal/logging"
)

// App is everything a command needs, built from one configuration.
type App struct {
	Config  *config.Config
	Log     *logging.Logger
	Client  *backend.Client
	Store   *history.Store
	Session *chat.Session

	closers []io.Closer
}

// NewApp wires the backend client, history service and chat session
// described by cfg.
func NewApp(cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	app := &App{Config: cfg, Log: logger, closers: []io.Closer{logger}}

	app.Client = backend.NewClientWithConfig(&backend.ClientConfig{
		BaseURL:           cfg.Backend.BaseURL,
		AuthToken:         cfg.Backend.AuthToken,
		Timeout:           cfg.Backend.Timeout(),
		StreamTimeout:     cfg.Backend.StreamTimeout(),
		RequestsPerSecond: cfg.Backend.RequestsPerSecond,
		Burst:             cfg.Backend.Burst,
	})

	svc, err := app.openHistory()
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Store = history.NewStore(svc)

	app.Session = chat.NewSession(app.Client, app.Store, chat.Options{
		Model:         cfg.Chat.ModelType(),
		ContextWindow: cfg.Chat.ContextWindow,
		FlushTimeout:  cfg.History.FlushTimeout(),
		ProductName:   cfg.Chat.ProductName,
		Logger:        logger.Logger,
		Debug:         logger.Debug(),
	})
	return app, nil
}

// openHistory returns the configured history service, or nil when history
// is disabled.
func (a *App) openHistory() (history.Service, error) {
	switch a.Config.History.Backend {
	case config.HistoryRemote:
		return a.Client, nil
	case config.HistorySQLite:
		path, err := a.Config.SQLitePath()
		if err != nil {
			return nil, err
		}
		db, err := history.OpenSQLite(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open history database: %w", err)
		}
		a.closers = append(a.closers, db)
		return db, nil
	default:
		return nil, nil
	}
}

// Close releases the log file and history database.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
