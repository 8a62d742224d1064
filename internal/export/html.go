// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/jeranaias/groundchat/internal/model"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports conversations to a standalone HTML page. Answers are
// rendered from markdown with goldmark and sanitized with bluemonday, since
// backend output is untrusted.
type HTMLExporter struct {
	options *Options
	md      goldmark.Markdown
	policy  *bluemonday.Policy
}

// NewHTMLExporter creates an HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{
		options: opts,
		md:      goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy:  bluemonday.UGCPolicy(),
	}
}

// Export converts a conversation to HTML.
func (e *HTMLExporter) Export(conv *model.Conversation) ([]byte, error) {
	if err := validate(conv); err != nil {
		return nil, err
	}
	theme := e.options.Theme
	if theme != "light" {
		theme = "dark"
	}

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("<meta charset=\"UTF-8\">\n")
	sb.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n", html.EscapeString(conv.Title))
	fmt.Fprintf(&sb, "<meta name=\"generator\" content=\"%s\">\n", Generator)
	sb.WriteString(pageCSS)
	sb.WriteString("</head>\n")
	fmt.Fprintf(&sb, "<body class=\"%s-theme\">\n<div class=\"container\">\n", theme)

	if e.options.IncludeMetadata {
		sb.WriteString(e.renderHeader(conv))
	} else {
		fmt.Fprintf(&sb, "<header class=\"header\"><h1>%s</h1></header>\n", html.EscapeString(conv.Title))
	}

	sb.WriteString("<main class=\"conversation\">\n")
	for _, en := range entries(conv.Messages) {
		body, err := e.renderEntry(en)
		if err != nil {
			return nil, err
		}
		sb.WriteString(body)
	}
	sb.WriteString("</main>\n")

	fmt.Fprintf(&sb, "<footer class=\"footer\">Exported from <strong>%s</strong> on %s</footer>\n",
		Generator, e.options.clock().Format("January 2, 2006 at 3:04 PM"))
	sb.WriteString("</div>\n</body>\n</html>\n")
	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for HTML.
func (e *HTMLExporter) FileExtension() string {
	return ".html"
}

// MimeType returns the MIME type for HTML.
func (e *HTMLExporter) MimeType() string {
	return "text/html"
}

// =============================================================================
// RENDERING FUNCTIONS
// =============================================================================

func (e *HTMLExporter) renderHeader(conv *model.Conversation) string {
	var sb strings.Builder
	sb.WriteString("<header class=\"header\">\n")
	fmt.Fprintf(&sb, "<h1>%s</h1>\n<div class=\"metadata\">\n", html.EscapeString(conv.Title))
	if !conv.CreatedAt.IsZero() {
		fmt.Fprintf(&sb, "<span><strong>Created:</strong> <time datetime=\"%s\">%s</time></span>\n",
			conv.CreatedAt.Format(time.RFC3339), formatTimestamp(conv.CreatedAt))
	}
	fmt.Fprintf(&sb, "<span><strong>Messages:</strong> %d</span>\n", len(conv.Messages))
	sb.WriteString("</div>\n</header>\n")
	return sb.String()
}

func (e *HTMLExporter) renderEntry(en entry) (string, error) {
	msg := en.Message
	var sb strings.Builder

	fmt.Fprintf(&sb, "<section class=\"message %s-message\">\n<div class=\"message-header\">\n", html.EscapeString(string(msg.Role)))
	fmt.Fprintf(&sb, "<span class=\"role-label\">%s</span>\n", html.EscapeString(msg.Role.DisplayName()))
	if e.options.IncludeTimestamps && !msg.Date.IsZero() {
		fmt.Fprintf(&sb, "<span class=\"timestamp\">%s</span>\n", formatShortTimestamp(msg.Date))
	}
	sb.WriteString("</div>\n<div class=\"message-content\">\n")

	switch msg.Role {
	case model.RoleAssistant:
		body, err := e.markdown(msg.Content)
		if err != nil {
			return "", err
		}
		sb.WriteString(body)
	case model.RoleImage:
		fmt.Fprintf(&sb, "<img src=\"%s\" alt=\"Generated image\">\n", html.EscapeString(msg.Content))
	default:
		fmt.Fprintf(&sb, "<p>%s</p>\n", strings.ReplaceAll(html.EscapeString(strings.TrimSpace(msg.Content)), "\n", "<br>\n"))
	}
	sb.WriteString("</div>\n")

	if len(en.Citations) > 0 {
		sb.WriteString(e.renderCitations(en.Citations))
	}
	sb.WriteString("</section>\n")
	return sb.String(), nil
}

// markdown renders answer text to sanitized HTML.
func (e *HTMLExporter) markdown(text string) (string, error) {
	var buf bytes.Buffer
	if err := e.md.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("render markdown: %w", err)
	}
	return e.policy.Sanitize(buf.String()), nil
}

func (e *HTMLExporter) renderCitations(cites []model.Citation) string {
	var sb strings.Builder
	sb.WriteString("<div class=\"citations\">\n<strong>Sources</strong>\n<ol>\n")
	for _, c := range cites {
		title := html.EscapeString(c.DisplayTitle())
		if c.Viewable() {
			fmt.Fprintf(&sb, "<li><a href=\"%s\" rel=\"noopener\">%s</a></li>\n", html.EscapeString(c.URL), title)
		} else {
			fmt.Fprintf(&sb, "<li>%s</li>\n", title)
		}
	}
	sb.WriteString("</ol>\n</div>\n")
	return sb.String()
}

// =============================================================================
// EMBEDDED CSS
// =============================================================================

const pageCSS = `<style>
* { margin: 0; padding: 0; box-sizing: border-box; }
.dark-theme {
  --bg: #1a1b26; --panel: #24283b; --text: #c0caf5; --muted: #565f89;
  --border: #414868; --user: #1f2335; --accent: #7aa2f7; --error: #f7768e;
}
.light-theme {
  --bg: #ffffff; --panel: #f7f8fa; --text: #24292e; --muted: #6a737d;
  --border: #e1e4e8; --user: #f6f8fa; --accent: #0366d6; --error: #d73a49;
}
body { font-family: -apple-system, "Segoe UI", Roboto, sans-serif; line-height: 1.6;
  color: var(--text); background: var(--bg); padding: 20px; }
.container { max-width: 900px; margin: 0 auto; background: var(--panel); border-radius: 12px; overflow: hidden; }
.header { padding: 24px 32px; border-bottom: 2px solid var(--border); }
.header h1 { font-size: 26px; margin-bottom: 8px; }
.metadata { display: flex; gap: 16px; font-size: 14px; color: var(--muted); }
.conversation { padding: 24px 32px; }
.message { margin-bottom: 24px; padding: 16px; border: 1px solid var(--border); border-radius: 8px; }
.user-message { background: var(--user); }
.error-message { border-color: var(--error); }
.message-header { display: flex; justify-content: space-between; margin-bottom: 8px; }
.role-label { font-weight: 700; color: var(--accent); }
.timestamp { font-size: 12px; color: var(--muted); }
.message-content p { margin-bottom: 8px; }
.message-content pre { padding: 12px; overflow-x: auto; border-radius: 6px; background: var(--bg); }
.message-content img { max-width: 100%; }
.citations { margin-top: 12px; font-size: 14px; color: var(--muted); }
.citations ol { margin-left: 20px; }
.citations a { color: var(--accent); }
.footer { padding: 16px 32px; font-size: 13px; color: var(--muted); border-top: 1px solid var(--border); }
</style>
`
