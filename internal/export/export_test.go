// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/groundchat/internal/model"
)

var fixed = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func testOptions() *Options {
	opts := DefaultOptions()
	opts.now = func() time.Time { return fixed }
	return opts
}

func travelConversation() *model.Conversation {
	tool := `{"citations":[{"title":"Travel Policy","url":"https://intranet/travel"},{"title":"Expense Rules","url":"https://acct.blob.core.windows.net/rules.pdf"}]}`
	return &model.Conversation{
		ID:        "conv-1",
		Title:     "Booking travel",
		CreatedAt: fixed,
		Messages: []model.Message{
			{ID: "u1", Role: model.RoleUser, Content: "How do I book travel?", Date: fixed},
			{ID: "t1", Role: model.RoleTool, Content: tool, Date: fixed},
			{ID: "a1", Role: model.RoleAssistant, Content: "Book through the **portal**.", Date: fixed},
		},
	}
}

func TestForFormat(t *testing.T) {
	for _, name := range []string{"md", "markdown", "HTML", "json"} {
		exp, err := ForFormat(name, nil)
		require.NoError(t, err, name)
		assert.NotNil(t, exp)
	}
	_, err := ForFormat("pdf", nil)
	assert.ErrorContains(t, err, "md, html, json")
}

func TestEntriesAttachCitationsToAnswer(t *testing.T) {
	list := entries(travelConversation().Messages)
	require.Len(t, list, 2)
	assert.Equal(t, model.RoleUser, list[0].Message.Role)
	assert.Empty(t, list[0].Citations)
	assert.Equal(t, model.RoleAssistant, list[1].Message.Role)
	require.Len(t, list[1].Citations, 2)
	assert.Equal(t, "Travel Policy", list[1].Citations[0].Title)
}

func TestMarkdownExport(t *testing.T) {
	out, err := NewMarkdownExporter(testOptions()).Export(travelConversation())
	require.NoError(t, err)
	md := string(out)

	assert.True(t, strings.HasPrefix(md, "---\ntitle: Booking travel\n"))
	assert.Contains(t, md, "# Booking travel")
	assert.Contains(t, md, "### You")
	assert.Contains(t, md, "Book through the **portal**.")
	assert.Contains(t, md, "1. [Travel Policy](https://intranet/travel)")
	assert.Contains(t, md, "2. Expense Rules\n", "blob links are not written as links")
	assert.NotContains(t, md, `"citations"`)
}

func TestMarkdownEscapesFrontMatter(t *testing.T) {
	conv := travelConversation()
	conv.Title = "Test\nInjection: malicious"
	out, err := NewMarkdownExporter(testOptions()).Export(conv)
	require.NoError(t, err)

	for _, line := range strings.Split(string(out), "\n")[:8] {
		assert.False(t, strings.HasPrefix(line, "Injection:"))
	}
	assert.Equal(t, `"C:\\temp"`, escapeYAML(`C:\temp`))
}

func TestHTMLExportSanitizesAnswers(t *testing.T) {
	conv := travelConversation()
	conv.Messages = append(conv.Messages,
		model.Message{ID: "u2", Role: model.RoleUser, Content: "<b>bold?</b>"},
		model.Message{ID: "a2", Role: model.RoleAssistant, Content: "Hi <script>alert('xss')</script> there"},
	)
	out, err := NewHTMLExporter(testOptions()).Export(conv)
	require.NoError(t, err)
	page := string(out)

	assert.Contains(t, page, "<strong>portal</strong>")
	assert.NotContains(t, page, "<script>")
	assert.Contains(t, page, "&lt;b&gt;bold?&lt;/b&gt;")
	assert.Contains(t, page, `<a href="https://intranet/travel" rel="noopener">Travel Policy</a>`)
	assert.Contains(t, page, "<li>Expense Rules</li>")
	assert.Contains(t, page, `class="dark-theme"`)
}

func TestJSONExport(t *testing.T) {
	out, err := NewJSONExporter(testOptions()).Export(travelConversation())
	require.NoError(t, err)

	var doc jsonDocument
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Equal(t, "conv-1", doc.ID)
	assert.Equal(t, Generator, doc.Generator)
	require.Len(t, doc.Messages, 2)
	assert.Len(t, doc.Messages[1].Citations, 2)
}

func TestEmptyConversationIsRejected(t *testing.T) {
	for _, name := range Formats() {
		exp, err := ForFormat(name, nil)
		require.NoError(t, err)
		_, err = exp.Export(&model.Conversation{ID: "empty"})
		assert.Error(t, err, name)
		_, err = exp.Export(nil)
		assert.Error(t, err, name)
	}
}

func TestToFile(t *testing.T) {
	opts := testOptions()
	opts.OutputDir = filepath.Join(t.TempDir(), "exports")

	path, err := ToFile(travelConversation(), NewMarkdownExporter(opts), opts)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(opts.OutputDir, "conversation_Booking_travel_20240501_100000.md"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Travel Policy")
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "a-b-c_d", sanitizeFilename(`a/b:c d`))
	assert.Equal(t, "conversation", sanitizeFilename(""))
	assert.LessOrEqual(t, len([]rune(sanitizeFilename(strings.Repeat("x", 80)))), 50)
}
