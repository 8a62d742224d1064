// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging opens the request log used by the chat session.
//
// Entries are written with the standard log package in the form
//
//	2025/01/02 15:04:05.000000 REQUEST_START | request=1 mode=persisted ...
//
// When logging is disabled the returned logger discards everything.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/jeranaias/groundchat/internal/config"
)

// Logger is a request logger together with the file it writes to.
type Logger struct {
	*log.Logger
	file  *os.File
	path  string
	debug bool
}

// New opens the log described by cfg. The file is created under
// ~/.groundchat/logs unless cfg.Path names another location.
func New(cfg config.LogConfig) (*Logger, error) {
	if !cfg.Enabled {
		return Discard(), nil
	}

	path := cfg.Path
	if path == "" {
		dir, err := config.ConfigDir()
		if err != nil {
			return Discard(), err
		}
		path = filepath.Join(dir, "logs", "groundchat.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return Discard(), fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return Discard(), fmt.Errorf("failed to open log file %s: %w", path, err)
	}

	l := &Logger{
		Logger: log.New(file, "", log.LstdFlags|log.Lmicroseconds),
		file:   file,
		path:   path,
		debug:  cfg.Debug,
	}
	l.Printf("LOG_OPENED | path=%s debug=%t", path, cfg.Debug)
	return l, nil
}

// Discard returns a logger that writes nowhere.
func Discard() *Logger {
	return &Logger{Logger: log.New(io.Discard, "", 0)}
}

// Path returns the log file path, or "" when logging is disabled.
func (l *Logger) Path() string {
	return l.path
}

// Debug reports whether per-fragment entries should be written.
func (l *Logger) Debug() bool {
	return l.debug && l.file != nil
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
