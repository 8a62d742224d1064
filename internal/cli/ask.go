// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/jeranaias/groundchat/internal/chat"
	"github.com/jeranaias/groundchat/internal/history"
	"github.com/jeranaias/groundchat/internal/model"
)

// askOptions holds the flags of the ask command.
type askOptions struct {
	file         string
	conversation string
	copy         bool
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	ao := askOptions{}
	cmd := &cobra.Command{
		Use:   "ask [question...]",
		Short: "Ask one question and print the answer",
		Long: `Ask one question and print the answer with its citations.

The question is taken from the arguments, from --file, or from stdin when it is
not a terminal. Answers stream as they arrive unless markdown rendering is on.
Press Ctrl+C to stop the answer; what arrived so far is kept.

Examples:
  groundchat ask "What changed in the travel policy?"
  groundchat ask -f question.md
  groundchat ask --conversation 3f2a... "And for contractors?"
  groundchat ask --json "List the holidays" | jq .data.answer`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, opts, args, ao)
		},
	}
	cmd.Flags().StringVarP(&ao.file, "file", "f", "", "read the question from a file")
	cmd.Flags().StringVar(&ao.conversation, "conversation", "", "continue a saved conversation")
	cmd.Flags().BoolVar(&ao.copy, "copy", false, "copy the answer to the clipboard")
	return cmd
}

func runAsk(cmd *cobra.Command, opts *rootOptions, args []string, ao askOptions) error {
	question, err := readQuestion(cmd.InOrStdin(), args, ao.file)
	if err != nil {
		return err
	}

	app, err := opts.app()
	if err != nil {
		return err
	}
	defer app.Close()

	ctx := cmd.Context()
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()

	stopOnInterrupt(ctx, app.Session, errOut)
	refreshHistory(ctx, app.Session, errOut)

	if ao.conversation != "" {
		if _, err := openConversation(ctx, app.Session, ao.conversation); err != nil {
			return err
		}
	}

	render := NewRenderer(app.Config.UI, isTerminalWriter(out))
	if opts.jsonOutput {
		render = NewRenderer(app.Config.UI, false)
	}
	ans := newAnswerer(app.Session, render, out, errOut)
	ans.quiet = opts.jsonOutput

	req, res, err := ans.ask(ctx, question)
	if err != nil {
		return err
	}

	answer := lastOfRole(res.Messages, model.RoleAssistant)
	if ao.copy && answer != "" {
		if err := clipboard.WriteAll(answer); err != nil {
			fmt.Fprintln(errOut, WarningStyle.Render("Could not copy to clipboard:"), err)
		}
	}

	if opts.jsonOutput {
		data := askData(req, res, ans.fresh(res.Messages))
		data.Model = app.Session.Model().String()
		if err := NewJSONResponse("ask", data).Write(out); err != nil {
			return err
		}
	}
	return resultError(res)
}

// readQuestion takes the question from a file, the arguments or stdin.
func readQuestion(stdin io.Reader, args []string, file string) (string, error) {
	var question string
	switch {
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read question file: %w", err)
		}
		question = string(data)
	case len(args) > 0:
		question = strings.Join(args, " ")
	case !isTerminalReader(stdin):
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		question = string(data)
	}
	question = strings.TrimSpace(question)
	if question == "" {
		return "", &UsageError{Message: "no question given"}
	}
	return question, nil
}

// resultError turns a finished request into the command's error.
func resultError(res chat.Result) error {
	switch res.State {
	case chat.StateFailed:
		return errAnswerFailed
	case chat.StateAborted:
		return chat.ErrStopped
	default:
		return nil
	}
}

func askData(req *chat.Request, res chat.Result, fresh []model.Message) AskData {
	data := AskData{
		State:          res.State.String(),
		Mode:           req.Mode().String(),
		ConversationID: res.ConversationID,
	}
	for _, m := range fresh {
		switch m.Role {
		case model.RoleAssistant:
			data.Answer = m.Content
		case model.RoleTool:
			data.Citations = model.ParseCitations(m)
		case model.RoleImage:
			data.Images = append(data.Images, m.Content)
		case model.RoleError:
			data.Failure = m.Content
		}
	}
	if data.Failure == "" && res.Failure != chat.FailureNone {
		data.Failure = res.Failure.String()
	}
	return data
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// stopOnInterrupt stops generation on Ctrl+C until ctx ends.
func stopOnInterrupt(ctx context.Context, sess *chat.Session, errOut io.Writer) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigCh:
				if sess.StopGenerating() > 0 {
					fmt.Fprintln(errOut, "\n"+WarningStyle.Render("[Stopped]"))
				}
			}
		}
	}()
}

// refreshHistory probes the history service and prints any banner.
func refreshHistory(ctx context.Context, sess *chat.Session, errOut io.Writer) history.Status {
	status, err := sess.RefreshHistory(ctx)
	if b := sess.Banner(); b != nil {
		printBanner(errOut, b)
	} else if err != nil && status.Available() {
		fmt.Fprintln(errOut, WarningStyle.Render("Could not load conversations:"), err)
	}
	return status
}

func printBanner(w io.Writer, b *chat.Banner) {
	fmt.Fprintln(w, WarningStyle.Render(b.Title))
	if b.Subtitle != "" {
		fmt.Fprintln(w, DimStyle.Render(b.Subtitle))
	}
}

// openConversation makes ref current. ref is a conversation ID or a 1-based
// position in the listing; pages are loaded until the ID is found.
func openConversation(ctx context.Context, sess *chat.Session, ref string) (*model.Conversation, error) {
	store := sess.Store()
	if store == nil || !store.Available() {
		return nil, history.ErrUnavailable
	}
	id, err := resolveConversation(ctx, store, ref)
	if err != nil {
		return nil, err
	}
	return sess.SelectConversation(ctx, id)
}

func resolveConversation(ctx context.Context, store *history.Store, ref string) (string, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		convs := store.Conversations()
		if n >= 1 && n <= len(convs) {
			return convs[n-1].ID, nil
		}
	}
	for {
		if _, ok := store.Find(ref); ok {
			return ref, nil
		}
		added, err := store.LoadMore(ctx)
		if err != nil {
			return "", err
		}
		if added == 0 {
			return "", history.ErrConversationNotFound
		}
	}
}

func lastOfRole(msgs []model.Message, role model.Role) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == role {
			return msgs[i].Content
		}
	}
	return ""
}

// =============================================================================
// ANSWERER
// =============================================================================

// answerer submits questions and prints what comes back. Without markdown
// the answer is streamed; with it the answer is rendered once complete.
type answerer struct {
	session *chat.Session
	render  *Renderer
	out     io.Writer
	errOut  io.Writer
	printer *streamPrinter
	quiet   bool

	seen map[string]bool
}

func newAnswerer(sess *chat.Session, render *Renderer, out, errOut io.Writer) *answerer {
	a := &answerer{
		session: sess,
		render:  render,
		out:     out,
		errOut:  errOut,
		printer: &streamPrinter{w: out, label: render.Label(model.RoleAssistant)},
	}
	sess.Subscribe(a.printer.observe)
	return a
}

// ask submits question, waits for the answer and prints it.
func (a *answerer) ask(ctx context.Context, question string) (*chat.Request, chat.Result, error) {
	prior := a.session.Messages()
	a.seen = make(map[string]bool, len(prior))
	for _, m := range prior {
		a.seen[m.ID] = true
	}

	streaming := !a.quiet && !a.render.Markdown()
	if streaming {
		a.printer.start(a.seen)
	}
	req, err := a.session.Submit(ctx, question)
	if err != nil {
		a.printer.stop()
		return nil, chat.Result{}, err
	}
	res := req.Wait()
	streamed := a.printer.stop()

	if !a.quiet {
		a.show(res, streamed)
		if res.Err != nil && res.State == chat.StateCompleted && res.Failure == chat.FailureNone {
			fmt.Fprintln(a.errOut, WarningStyle.Render("Answer not saved:"), res.Err)
		}
	}
	return req, res, nil
}

// fresh returns the messages the request produced.
func (a *answerer) fresh(msgs []model.Message) []model.Message {
	var out []model.Message
	for _, m := range msgs {
		if !a.seen[m.ID] && !m.IsUser() {
			out = append(out, m)
		}
	}
	return out
}

// show prints whatever the stream printer has not.
func (a *answerer) show(res chat.Result, streamed string) {
	for _, m := range a.fresh(res.Messages) {
		if m.ID == streamed {
			continue
		}
		var text string
		if streamed != "" {
			text = a.render.Body(m)
		} else {
			text = a.render.Message(m)
		}
		if text == "" {
			continue
		}
		if m.IsError() {
			fmt.Fprintln(a.errOut, text)
		} else {
			fmt.Fprintln(a.out, text)
		}
	}
	if res.State == chat.StateAborted {
		fmt.Fprintln(a.errOut, DimStyle.Render("(answer stopped)"))
	}
}

// =============================================================================
// STREAM PRINTER
// =============================================================================

// streamPrinter writes the growing assistant message of the active request
// as snapshots arrive. Stale snapshots are dropped by sequence number.
type streamPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	label   string
	active  bool
	seen    map[string]bool
	id      string
	printed int
	lastSeq uint64
}

func (p *streamPrinter) start(seen map[string]bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = true
	p.seen = seen
	p.id = ""
	p.printed = 0
}

// stop ends streaming and returns the ID of the message that was streamed.
func (p *streamPrinter) stop() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active && p.id != "" {
		fmt.Fprintln(p.w)
	}
	p.active = false
	return p.id
}

func (p *streamPrinter) observe(snap chat.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if snap.Seq <= p.lastSeq {
		return
	}
	p.lastSeq = snap.Seq
	if !p.active {
		return
	}

	for i := len(snap.Messages) - 1; i >= 0; i-- {
		m := snap.Messages[i]
		if !m.IsAssistant() || p.seen[m.ID] {
			continue
		}
		if m.ID != p.id {
			if p.id != "" {
				fmt.Fprintln(p.w)
			}
			p.id = m.ID
			p.printed = 0
			fmt.Fprintln(p.w, p.label)
		}
		if len(m.Content) > p.printed {
			fmt.Fprint(p.w, m.Content[p.printed:])
			p.printed = len(m.Content)
		}
		return
	}
}
