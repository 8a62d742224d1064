// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/jeranaias/groundchat/internal/config"
	"github.com/jeranaias/groundchat/internal/model"
	"github.com/jeranaias/groundchat/internal/util"
)

// Renderer turns messages into terminal text. Without a terminal it writes
// plain text so output can be piped.
type Renderer struct {
	md    *glamour.TermRenderer
	color bool
}

// NewRenderer creates a renderer for the given UI settings. Markdown and
// colors are only used when tty is set.
func NewRenderer(ui config.UIConfig, tty bool) *Renderer {
	r := &Renderer{color: tty && ColorsEnabled()}
	if ui.Markdown && tty {
		md, err := glamour.NewTermRenderer(
			glamourStyle(ui.GlamourStyle),
			glamour.WithWordWrap(ui.WordWrap),
		)
		if err == nil {
			r.md = md
		}
	}
	return r
}

// glamourStyle resolves "auto" against the terminal background. Any other
// value is a standard style name or a path to a style file.
func glamourStyle(name string) glamour.TermRendererOption {
	switch strings.ToLower(name) {
	case "", "auto":
		if termenv.HasDarkBackground() {
			return glamour.WithStandardStyle("dark")
		}
		return glamour.WithStandardStyle("light")
	default:
		return glamour.WithStylePath(name)
	}
}

// Markdown reports whether answers are rendered as markdown. Streaming is
// only possible when they are not.
func (r *Renderer) Markdown() bool {
	return r.md != nil
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if !r.color {
		return text
	}
	return s.Render(text)
}

// markdown renders text, falling back to the raw text on any error.
func (r *Renderer) markdown(text string) string {
	if r.md == nil {
		return text
	}
	out, err := r.md.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}

// Label returns the speaker label for role.
func (r *Renderer) Label(role model.Role) string {
	return r.style(RoleStyle(role), role.DisplayName())
}

// Message renders one message with its label.
func (r *Renderer) Message(m model.Message) string {
	switch m.Role {
	case model.RoleTool:
		cites := model.ParseCitations(m)
		if len(cites) == 0 {
			return ""
		}
		return r.Label(m.Role) + "\n" + r.Citations(cites)
	case model.RoleImage:
		return r.Label(m.Role) + ": " + m.Content
	case model.RoleError:
		return r.style(ErrorStyle, m.Content)
	case model.RoleAssistant:
		return r.Label(m.Role) + "\n" + r.markdown(m.Content)
	default:
		return r.Label(m.Role) + "\n" + m.Content
	}
}

// Body renders a message without its label, for output that follows a
// streamed answer.
func (r *Renderer) Body(m model.Message) string {
	switch m.Role {
	case model.RoleTool:
		return r.Citations(model.ParseCitations(m))
	case model.RoleError:
		return r.style(ErrorStyle, m.Content)
	case model.RoleAssistant:
		return r.markdown(m.Content)
	default:
		return m.Content
	}
}

// Messages renders a conversation, one blank line between messages.
func (r *Renderer) Messages(w io.Writer, msgs []model.Message) {
	for _, m := range msgs {
		if text := r.Message(m); text != "" {
			fmt.Fprintln(w, text)
			fmt.Fprintln(w)
		}
	}
}

// Citations renders a numbered citation list.
func (r *Renderer) Citations(cites []model.Citation) string {
	if len(cites) == 0 {
		return r.style(DimStyle, "No citations.")
	}
	var b strings.Builder
	for i, c := range cites {
		fmt.Fprintf(&b, "  [%d] %s", i+1, util.TruncateWidth(c.DisplayTitle(), 60))
		switch {
		case c.Viewable():
			b.WriteString("  " + r.style(DimStyle, c.URL))
		case c.URL != "":
			b.WriteString("  " + r.style(DimStyle, "(not viewable)"))
		}
		if i < len(cites)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// JSON writes v as indented JSON, syntax-highlighted on a color terminal.
func (r *Renderer) JSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	if r.color {
		if out, ok := highlight(string(data), "json"); ok {
			_, err = fmt.Fprintln(w, out)
			return err
		}
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// highlight colors code with chroma for a 256-color terminal.
func highlight(code, language string) (string, bool) {
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get("monokai")
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code, false
	}
	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code, false
	}
	return strings.TrimRight(buf.String(), "\n"), true
}
