// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jeranaias/groundchat/internal/config"
)

func TestNew_Disabled(t *testing.T) {
	l, err := New(config.LogConfig{Enabled: false, Debug: true})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer l.Close()

	l.Printf("REQUEST_START | request=1")
	if l.Path() != "" {
		t.Errorf("disabled logger has path %q", l.Path())
	}
	if l.Debug() {
		t.Error("disabled logger should not report debug")
	}
}

func TestNew_WritesEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "chat.log")

	l, err := New(config.LogConfig{Enabled: true, Path: path, Debug: true})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if l.Path() != path {
		t.Errorf("Path() = %q, want %q", l.Path(), path)
	}
	if !l.Debug() {
		t.Error("expected debug enabled")
	}

	l.Printf("REQUEST_COMPLETE | request=%d envelopes=%d", 7, 3)
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"LOG_OPENED | path=" + path, "REQUEST_COMPLETE | request=7 envelopes=3"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("log missing %q:\n%s", want, data)
		}
	}
}

func TestNew_UnwritableDirectory(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0600); err != nil {
		t.Fatal(err)
	}

	l, err := New(config.LogConfig{Enabled: true, Path: filepath.Join(blocker, "x.log")})
	if err == nil {
		t.Error("expected an error for a path under a regular file")
	}
	if l == nil {
		t.Fatal("New() should still return a usable logger")
	}
	l.Printf("still usable")
}
