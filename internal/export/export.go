// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/groundchat/internal/model"
	"github.com/jeranaias/groundchat/internal/util"
)

// Generator names the program in exported files.
const Generator = "groundchat"

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter converts a conversation to one file format.
type Exporter interface {
	// Export returns the encoded conversation.
	Export(conv *model.Conversation) ([]byte, error)

	// FileExtension returns the extension including the dot.
	FileExtension() string

	// MimeType returns the MIME type of the format.
	MimeType() string
}

// Options configures export behavior.
type Options struct {
	// OutputDir is where ToFile writes. Default: current directory.
	OutputDir string

	// IncludeMetadata adds the front matter and header block.
	IncludeMetadata bool

	// IncludeTimestamps adds the time of each message.
	IncludeTimestamps bool

	// Theme for HTML export ("light" or "dark").
	Theme string

	// now is stubbed by tests.
	now func() time.Time
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:         ".",
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		Theme:             "dark",
	}
}

func (o *Options) clock() time.Time {
	if o.now != nil {
		return o.now()
	}
	return time.Now()
}

// Formats lists the names ForFormat accepts.
func Formats() []string {
	return []string{"md", "html", "json"}
}

// ForFormat returns the exporter for a format name.
func ForFormat(name string, opts *Options) (Exporter, error) {
	switch strings.ToLower(name) {
	case "md", "markdown":
		return NewMarkdownExporter(opts), nil
	case "html", "htm":
		return NewHTMLExporter(opts), nil
	case "json":
		return NewJSONExporter(opts), nil
	default:
		return nil, fmt.Errorf("unknown export format %q, must be one of: %s", name, strings.Join(Formats(), ", "))
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ToFile exports conv into opts.OutputDir and returns the written path.
// The file name is derived from the title and the export time.
func ToFile(conv *model.Conversation, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	content, err := exporter.Export(conv)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	filename := fmt.Sprintf("conversation_%s_%s%s",
		sanitizeFilename(conv.Title),
		opts.clock().Format("20060102_150405"),
		exporter.FileExtension(),
	)
	path := filepath.Join(opts.OutputDir, filename)
	if err := util.AtomicWriteFileWithDir(path, content, 0644, 0755); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return path, nil
}

// validate rejects conversations that would produce an empty document.
func validate(conv *model.Conversation) error {
	switch {
	case conv == nil:
		return errors.New("conversation is nil")
	case conv.IsEmpty():
		return errors.New("conversation has no messages")
	}
	return nil
}

// =============================================================================
// TURNS
// =============================================================================

// entry is one message as exporters see it. Citations from a preceding tool
// message are attached to the answer they support.
type entry struct {
	Message   model.Message
	Citations []model.Citation
}

// entries folds tool messages into the next assistant message. Citations
// with no answer after them are dropped.
func entries(msgs []model.Message) []entry {
	var (
		out     []entry
		pending []model.Citation
	)
	for _, m := range msgs {
		switch m.Role {
		case model.RoleTool:
			pending = append(pending, model.ParseCitations(m)...)
		case model.RoleAssistant:
			out = append(out, entry{Message: m, Citations: pending})
			pending = nil
		default:
			out = append(out, entry{Message: m})
		}
	}
	return out
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename replaces characters that are invalid in file names on
// Windows or Unix.
func sanitizeFilename(s string) string {
	s = util.TruncateRunes(s, 50)

	var b strings.Builder
	for _, r := range s {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			b.WriteRune('_')
		case r < 32 || r == 127:
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "conversation"
	}
	return b.String()
}

func formatTimestamp(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatShortTimestamp(t time.Time) string {
	return t.Local().Format("15:04:05")
}
