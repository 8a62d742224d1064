// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/groundchat/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports conversations to Markdown.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a conversation to Markdown.
func (e *MarkdownExporter) Export(conv *model.Conversation) ([]byte, error) {
	if err := validate(conv); err != nil {
		return nil, err
	}
	now := e.options.clock()

	var sb strings.Builder
	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(conv.Title))
		fmt.Fprintf(&sb, "id: %s\n", escapeYAML(conv.ID))
		if !conv.CreatedAt.IsZero() {
			fmt.Fprintf(&sb, "date: %s\n", conv.CreatedAt.Format(time.RFC3339))
		}
		fmt.Fprintf(&sb, "messages: %d\n", len(conv.Messages))
		fmt.Fprintf(&sb, "exported: %s\n", now.Format(time.RFC3339))
		fmt.Fprintf(&sb, "generator: %s\n", Generator)
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(conv.Title))

	list := entries(conv.Messages)
	for i, en := range list {
		msg := en.Message
		if e.options.IncludeTimestamps && !msg.Date.IsZero() {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", msg.Role.DisplayName(), formatShortTimestamp(msg.Date))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", msg.Role.DisplayName())
		}

		switch msg.Role {
		case model.RoleImage:
			fmt.Fprintf(&sb, "![Generated image](%s)\n\n", msg.Content)
		case model.RoleError:
			for _, line := range strings.Split(strings.TrimSpace(msg.Content), "\n") {
				sb.WriteString("> " + line + "\n")
			}
			sb.WriteString("\n")
		default:
			sb.WriteString(strings.TrimSpace(msg.Content))
			sb.WriteString("\n\n")
		}

		if len(en.Citations) > 0 {
			sb.WriteString(e.formatCitations(en.Citations))
			sb.WriteString("\n")
		}
		if i < len(list)-1 {
			sb.WriteString("---\n\n")
		}
	}

	fmt.Fprintf(&sb, "\n*Exported from %s on %s*\n", Generator, now.Format("January 2, 2006 at 3:04 PM"))
	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// formatCitations lists sources as a numbered list. Only viewable links are
// written as links.
func (e *MarkdownExporter) formatCitations(cites []model.Citation) string {
	var sb strings.Builder
	sb.WriteString("**Sources**\n\n")
	for i, c := range cites {
		title := escapeMarkdown(c.DisplayTitle())
		if c.Viewable() {
			fmt.Fprintf(&sb, "%d. [%s](%s)\n", i+1, title, c.URL)
		} else {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, title)
		}
	}
	return sb.String()
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes characters that break titles and list items.
func escapeMarkdown(s string) string {
	return strings.NewReplacer(
		"#", `\#`,
		"*", `\*`,
		"_", `\_`,
		"[", `\[`,
		"]", `\]`,
	).Replace(s)
}

// escapeYAML quotes a front matter value when it holds special characters.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.NewReplacer(
			`\`, `\\`,
			`"`, `\"`,
			"\n", `\n`,
			"\r", `\r`,
		).Replace(s)
		return `"` + s + `"`
	}
	return s
}
