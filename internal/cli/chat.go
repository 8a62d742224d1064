// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive line-based chat.
//
// Interactive Commands (during chat):
//
//	/help, /h            Show available commands
//	/new, /n             Start a new chat
//	/clear, /c           Clear the current chat
//	/history [more]      List saved conversations
//	/open <n|id>         Open a saved conversation
//	/rename <title>      Rename the current conversation
//	/delete [n|id]       Delete a conversation (default: current)
//	/citations [n]       Show the citations of the last (or n-th) answer
//	/copy                Copy the last answer to the clipboard
//	/export [format]     Write the chat to a file (md, html, json)
//	/model [name]        Show or switch model
//	/quit, /q            Exit chat
//	Ctrl+C               Stop the current answer
//	Ctrl+D               Exit chat
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/groundchat/internal/config"
	"github.com/jeranaias/groundchat/internal/export"
	"github.com/jeranaias/groundchat/internal/model"
	"github.com/jeranaias/groundchat/internal/util"
)

const chatPrompt = "groundchat> "

func newChatCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start a line-based chat session",
		Long: `Start an interactive chat with line editing and input history.

Type a question and press Enter. Commands start with a slash; /help lists them.
Ctrl+C stops the current answer, Ctrl+D exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, opts)
		},
	}
}

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineReader provides line editing and persisted input history.
type lineReader struct {
	line        *liner.State
	historyFile string
}

func newLineReader() *lineReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	r := &lineReader{line: line, historyFile: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(r.historyFile); err == nil {
		r.line.ReadHistory(f)
		f.Close()
	}
	return r
}

// ReadInput reads one line; non-empty lines are added to the history.
func (r *lineReader) ReadInput(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves the history with owner-only permissions and restores the
// terminal.
func (r *lineReader) Close() {
	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			r.line.WriteHistory(f)
			f.Close()
		}
	}
	r.line.Close()
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

func runChat(cmd *cobra.Command, opts *rootOptions) error {
	if !isTerminalReader(cmd.InOrStdin()) {
		return &TTYRequiredError{Operation: "chat"}
	}

	app, err := opts.app()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	repl := newChatREPL(app, out, errOut)

	refreshHistory(ctx, app.Session, errOut)
	repl.printWelcome()

	input := newLineReader()
	defer input.Close()

	// While liner is not reading, Ctrl+C arrives as a signal and stops the
	// current answer. At the prompt it aborts the prompt instead.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			if app.Session.StopGenerating() > 0 {
				fmt.Fprintln(errOut, "\n"+WarningStyle.Render("[Stopped]"))
			}
		}
	}()

	for {
		line, err := input.ReadInput(chatPrompt)
		if err != nil {
			if !errors.Is(err, liner.ErrPromptAborted) && !errors.Is(err, io.EOF) {
				return err
			}
			fmt.Fprintln(out)
			return nil
		}

		cont, err := repl.handle(ctx, line)
		if err != nil {
			if !silent(err) {
				fmt.Fprintln(errOut, ErrorStyle.Render("[Error]"), err)
			}
		}
		if !cont {
			return nil
		}
	}
}

// =============================================================================
// REPL
// =============================================================================

// chatREPL interprets chat input. It is separate from the line reader so it
// can be driven without a terminal.
type chatREPL struct {
	app    *App
	ans    *answerer
	render *Renderer
	out    io.Writer
	errOut io.Writer
}

func newChatREPL(app *App, out, errOut io.Writer) *chatREPL {
	render := NewRenderer(app.Config.UI, isTerminalWriter(out))
	return &chatREPL{
		app:    app,
		ans:    newAnswerer(app.Session, render, out, errOut),
		render: render,
		out:    out,
		errOut: errOut,
	}
}

func (r *chatREPL) printWelcome() {
	fmt.Fprintln(r.out, TitleStyle.Render("groundchat "+Version))
	fmt.Fprintf(r.out, "%s %s  %s %s\n",
		DimStyle.Render("model:"), r.app.Session.Model(),
		DimStyle.Render("mode:"), r.app.Session.Mode())
	fmt.Fprintln(r.out, DimStyle.Render("Type /help for commands, Ctrl+D to exit."))
	fmt.Fprintln(r.out)
}

// handle processes one input line. It returns false when the session
// should end.
func (r *chatREPL) handle(ctx context.Context, input string) (bool, error) {
	input = strings.TrimSpace(input)
	switch {
	case input == "":
		return true, nil
	case strings.HasPrefix(input, "/"):
		return r.command(ctx, input)
	case strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit"):
		return false, nil
	}

	_, res, err := r.ans.ask(ctx, input)
	if err != nil {
		return true, err
	}
	fmt.Fprintln(r.out)
	return true, resultError(res)
}

func (r *chatREPL) command(ctx context.Context, input string) (bool, error) {
	fields := strings.Fields(input)
	name := strings.ToLower(fields[0])
	arg := strings.TrimSpace(strings.TrimPrefix(input, fields[0]))
	sess := r.app.Session

	switch name {
	case "/help", "/h", "/?":
		r.printHelp()

	case "/quit", "/q", "/exit":
		return false, nil

	case "/new", "/n":
		if err := sess.NewChat(); err != nil {
			return true, err
		}
		fmt.Fprintln(r.out, DimStyle.Render("Started a new chat."))

	case "/clear", "/c":
		if err := sess.ClearChat(ctx); err != nil {
			if b := sess.Banner(); b != nil {
				printBanner(r.errOut, b)
				sess.DismissBanner()
			}
			return true, err
		}
		fmt.Fprintln(r.out, DimStyle.Render("Chat cleared."))

	case "/history":
		return true, r.listConversations(ctx, arg == "more")

	case "/open", "/o":
		if arg == "" {
			return true, &UsageError{Message: "usage: /open <n|id>"}
		}
		conv, err := openConversation(ctx, sess, arg)
		if err != nil {
			return true, err
		}
		fmt.Fprintln(r.out, TitleStyle.Render(conv.Title))
		fmt.Fprintln(r.out)
		r.render.Messages(r.out, conv.Messages)

	case "/rename":
		id := sess.Store().CurrentID()
		switch {
		case arg == "":
			return true, &UsageError{Message: "usage: /rename <title>"}
		case id == "":
			return true, errors.New("no saved conversation is open")
		}
		if err := sess.Store().Rename(ctx, id, arg); err != nil {
			return true, err
		}
		fmt.Fprintln(r.out, DimStyle.Render("Renamed to "+strconv.Quote(arg)+"."))

	case "/delete":
		return true, r.deleteConversation(ctx, arg)

	case "/citations":
		return true, r.showCitations(arg)

	case "/copy":
		answer := lastOfRole(sess.Messages(), model.RoleAssistant)
		if answer == "" {
			return true, errors.New("no answer to copy")
		}
		if err := clipboard.WriteAll(answer); err != nil {
			return true, fmt.Errorf("failed to copy: %w", err)
		}
		fmt.Fprintln(r.out, DimStyle.Render("Copied the last answer."))

	case "/export":
		return true, r.exportChat(arg)

	case "/model", "/m":
		if arg == "" {
			for _, id := range model.ModelIDs() {
				marker := "  "
				if id == sess.Model().String() {
					marker = "* "
				}
				mt, _ := model.ParseModelType(id)
				fmt.Fprintf(r.out, "%s%-10s %s\n", marker, id, DimStyle.Render(mt.Info().Description))
			}
			return true, nil
		}
		mt, err := model.ParseModelType(arg)
		if err != nil {
			return true, err
		}
		sess.SetModel(mt)
		fmt.Fprintf(r.out, "%s %s (%s mode)\n", DimStyle.Render("Model:"), mt, sess.Mode())

	default:
		return true, &UsageError{Message: "unknown command " + name + " (try /help)"}
	}
	return true, nil
}

func (r *chatREPL) printHelp() {
	rows := [][2]string{
		{"/new", "Start a new chat"},
		{"/clear", "Clear the current chat"},
		{"/history [more]", "List saved conversations"},
		{"/open <n|id>", "Open a saved conversation"},
		{"/rename <title>", "Rename the current conversation"},
		{"/delete [n|id]", "Delete a conversation"},
		{"/citations [n]", "Show the citations of an answer"},
		{"/copy", "Copy the last answer"},
		{"/export [format]", "Write the chat to a file (md, html, json)"},
		{"/model [name]", "Show or switch model"},
		{"/quit", "Exit"},
	}
	for _, row := range rows {
		fmt.Fprintf(r.out, "  %s %s\n", RenderLabel(row[0]), row[1])
	}
}

func (r *chatREPL) listConversations(ctx context.Context, more bool) error {
	store := r.app.Session.Store()
	if store == nil || !store.Available() {
		return errors.New("chat history is not available")
	}
	if more {
		added, err := store.LoadMore(ctx)
		if err != nil {
			return err
		}
		if added == 0 {
			fmt.Fprintln(r.out, DimStyle.Render("No more conversations."))
		}
	}
	convs := store.Conversations()
	if len(convs) == 0 {
		fmt.Fprintln(r.out, DimStyle.Render("No saved conversations."))
		return nil
	}
	current := store.CurrentID()
	for i, c := range convs {
		marker := " "
		if c.ID == current {
			marker = "*"
		}
		fmt.Fprintf(r.out, "%s%3d  %s  %s\n", marker, i+1,
			util.PadWidth(c.Title, 40), DimStyle.Render(c.CreatedAt.Local().Format("2006-01-02 15:04")))
	}
	return nil
}

func (r *chatREPL) deleteConversation(ctx context.Context, ref string) error {
	sess := r.app.Session
	store := sess.Store()
	if store == nil || !store.Available() {
		return errors.New("chat history is not available")
	}
	id := store.CurrentID()
	if ref != "" {
		var err error
		if id, err = resolveConversation(ctx, store, ref); err != nil {
			return err
		}
	}
	if id == "" {
		return errors.New("no saved conversation is open")
	}

	wasCurrent := id == store.CurrentID()
	if err := store.Delete(ctx, id); err != nil {
		return err
	}
	if wasCurrent {
		if err := sess.NewChat(); err != nil {
			return err
		}
	}
	fmt.Fprintln(r.out, DimStyle.Render("Conversation deleted."))
	return nil
}

// exportChat writes the open chat to the working directory. Chats that were
// never saved are exported too.
func (r *chatREPL) exportChat(format string) error {
	if format == "" {
		format = "md"
	}
	opts := export.DefaultOptions()
	exporter, err := export.ForFormat(format, opts)
	if err != nil {
		return &UsageError{Message: err.Error()}
	}

	msgs := r.app.Session.Messages()
	if len(msgs) == 0 {
		return errors.New("nothing to export yet")
	}
	var conv *model.Conversation
	if store := r.app.Session.Store(); store != nil {
		if current, ok := store.Current(); ok {
			conv = current
		}
	}
	if conv == nil {
		conv = model.NewConversation("", model.TitleFrom(msgs[0].Content), time.Now())
	}
	conv.Messages = msgs

	path, err := export.ToFile(conv, exporter, opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, DimStyle.Render("Exported to "+path))
	return nil
}

// showCitations prints the citations of the n-th answer, or the last one.
func (r *chatREPL) showCitations(arg string) error {
	msgs := r.app.Session.Messages()
	var answers []int
	for i, m := range msgs {
		if m.IsAssistant() {
			answers = append(answers, i)
		}
	}
	if len(answers) == 0 {
		return errors.New("no answers yet")
	}

	pick := len(answers)
	if arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > len(answers) {
			return &UsageError{Message: fmt.Sprintf("answer number must be between 1 and %d", len(answers))}
		}
		pick = n
	}
	fmt.Fprintln(r.out, r.render.Citations(r.app.Session.Citations(answers[pick-1])))
	return nil
}
