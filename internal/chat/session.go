// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/groundchat/internal/history"
	"github.com/jeranaias/groundchat/internal/model"
)

// DefaultFlushTimeout bounds a single history write.
const DefaultFlushTimeout = 30 * time.Second

// Options configures a Session.
type Options struct {
	Model         model.ModelType
	ContextWindow int
	FlushTimeout  time.Duration
	ProductName   string
	Logger        *log.Logger

	// Debug logs every applied envelope.
	Debug bool
}

// Snapshot is the observable state of a session at one point in time.
// Seq increases with every snapshot so late deliveries can be dropped.
type Snapshot struct {
	Seq            uint64
	Messages       []model.Message
	Loading        bool
	ShowLoading    bool
	ConversationID string
	Model          model.ModelType
	Banner         *Banner
}

// Listener receives snapshots. It is called outside the session lock, from
// whichever goroutine changed the state.
type Listener func(Snapshot)

// =============================================================================
// SESSION
// =============================================================================

// Session owns the visible message list and runs requests against the backend.
type Session struct {
	be      Backend
	store   *history.Store
	opts    Options
	log     *log.Logger
	cancels *cancelSet

	mu          sync.Mutex
	messages    []model.Message
	loading     bool
	showLoading bool
	banner      *Banner
	model       model.ModelType
	seq         uint64
	listeners   []Listener
}

// NewSession creates a session. store may be nil, in which case every
// request is ephemeral.
func NewSession(be Backend, store *history.Store, opts Options) *Session {
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = DefaultContextWindow
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = DefaultFlushTimeout
	}
	if opts.ProductName == "" {
		opts.ProductName = DefaultProductName
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Session{
		be:      be,
		store:   store,
		opts:    opts,
		log:     logger,
		cancels: newCancelSet(),
		model:   opts.Model,
	}
}

// Subscribe registers fn for every future snapshot.
func (s *Session) Subscribe(fn Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	s.seq++
	snap := Snapshot{
		Seq:         s.seq,
		Messages:    model.CloneMessages(s.messages),
		Loading:     s.loading,
		ShowLoading: s.showLoading,
		Model:       s.model,
	}
	if s.store != nil {
		snap.ConversationID = s.store.CurrentID()
	}
	if s.banner != nil {
		b := *s.banner
		snap.Banner = &b
	}
	return snap
}

func (s *Session) emit(snap Snapshot) {
	s.mu.Lock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

// publish emits the current state.
func (s *Session) publish() {
	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap)
}

// Messages returns a copy of the visible message list.
func (s *Session) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.CloneMessages(s.messages)
}

// Loading reports whether an answer is being generated.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Model returns the selected model.
func (s *Session) Model() model.ModelType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// SetModel selects the model for future questions.
func (s *Session) SetModel(mt model.ModelType) {
	s.mu.Lock()
	s.model = mt
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap)
}

// Mode returns the mode the next question would be sent in.
func (s *Session) Mode() Mode {
	return SelectPolicy(s.Model(), s.store, s.be, s.opts.ContextWindow).Mode()
}

// Store returns the conversation store, or nil.
func (s *Session) Store() *history.Store {
	return s.store
}

// Banner returns the active banner, or nil.
func (s *Session) Banner() *Banner {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.banner == nil {
		return nil
	}
	b := *s.banner
	return &b
}

// DismissBanner hides the active banner.
func (s *Session) DismissBanner() {
	s.mu.Lock()
	s.banner = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap)
}

func (s *Session) setBanner(b *Banner) {
	s.mu.Lock()
	s.banner = b
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap)
}

// =============================================================================
// HISTORY
// =============================================================================

// RefreshHistory probes the history service and loads the first page of
// conversations when it is available. A service that is configured but not
// working raises a banner.
func (s *Session) RefreshHistory(ctx context.Context) (history.Status, error) {
	if s.store == nil {
		return history.StatusNotConfigured, nil
	}
	status, err := s.store.Ensure(ctx)
	s.log.Printf("HISTORY_STATUS | status=%q", status)

	switch {
	case status == history.StatusNotWorking:
		s.setBanner(&Banner{
			Title:    msgHistoryDisabled,
			Subtitle: status.String() + ". Please contact the site administrator.",
		})
		return status, err
	case status.Available():
		if err := s.store.Load(ctx); err != nil {
			return status, err
		}
	}
	s.publish()
	return status, nil
}

// NewChat forgets the current conversation and empties the visible list.
func (s *Session) NewChat() error {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return ErrBusy
	}
	if s.store != nil {
		s.store.NewChat()
	}
	s.messages = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap)
	return nil
}

// ClearChat removes the messages of the current conversation. A persisted
// conversation is cleared on the history service first; if that fails the
// messages stay and a banner is raised.
func (s *Session) ClearChat(ctx context.Context) error {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return ErrBusy
	}
	id := ""
	if s.store != nil {
		id = s.store.CurrentID()
	}
	s.mu.Unlock()

	if id != "" {
		if err := s.store.Clear(ctx, id); err != nil {
			s.log.Printf("HISTORY_CLEAR_FAILED | conversation=%q error=%q", id, err.Error())
			s.setBanner(&Banner{Title: msgClearFailedTitle, Subtitle: msgClearFailedBody})
			return err
		}
	}

	s.mu.Lock()
	s.messages = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap)
	return nil
}

// SelectConversation makes a stored conversation current and shows it.
func (s *Session) SelectConversation(ctx context.Context, id string) (*model.Conversation, error) {
	if s.store == nil {
		return nil, history.ErrUnavailable
	}
	if s.Loading() {
		return nil, ErrBusy
	}
	conv, err := s.store.Select(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.messages = model.CloneMessages(conv.Messages)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap)
	return conv, nil
}

// Citations returns the citations backing the visible message at index.
// For an assistant message the tool message just before it is used.
func (s *Session) Citations(index int) []model.Citation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.messages) {
		return []model.Citation{}
	}
	msg := s.messages[index]
	if msg.IsAssistant() && index > 0 && s.messages[index-1].IsTool() {
		msg = s.messages[index-1]
	}
	return model.ParseCitations(msg)
}

// =============================================================================
// REQUESTS
// =============================================================================

// Submit sends question and returns immediately. The request runs in its own
// goroutine; snapshots report its progress and Wait returns its result.
func (s *Session) Submit(ctx context.Context, question string) (*Request, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return nil, ErrBusy
	}

	policy := SelectPolicy(s.model, s.store, s.be, s.opts.ContextWindow)
	user := model.NewUserMessage(question)
	prior := model.CloneMessages(s.messages)

	convID := ""
	var conv *model.Conversation
	if policy.Mode() == ModePersisted {
		convID = s.store.CurrentID()
	}
	if convID != "" {
		c, ok := s.store.Append(convID, user)
		if !ok {
			s.mu.Unlock()
			return nil, ErrConversationNotFound
		}
		conv = c
		prior = model.CloneMessages(c.Messages)
	}

	payload := policy.Payload(prior, conv, user)
	reqCtx, cancel := context.WithCancelCause(ctx)
	id := s.cancels.add(cancel)

	r := &Request{
		id:             id,
		user:           user,
		policy:         policy,
		conversationID: convID,
		payload:        payload,
		turn:           NewTurn(prior, user, convID, policy.ErrorRole()).WithProductName(s.opts.ProductName),
		started:        time.Now(),
		done:           make(chan struct{}),
	}

	s.messages = r.turn.Visible()
	s.loading = true
	s.showLoading = true
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap)

	go s.run(reqCtx, r)
	return r, nil
}

// Ask submits question and waits for the result.
func (s *Session) Ask(ctx context.Context, question string) (Result, error) {
	r, err := s.Submit(ctx, question)
	if err != nil {
		return Result{}, err
	}
	return r.Wait(), nil
}

// StopGenerating stops every in-flight request. Messages received so far
// stay visible and nothing further is applied. It returns the number of
// requests stopped.
func (s *Session) StopGenerating() int {
	n := s.cancels.cancelAll(ErrStopped)

	s.mu.Lock()
	s.loading = false
	s.showLoading = false
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap)
	return n
}

// IsStopped reports whether err means the request was stopped by the user.
func IsStopped(err error) bool {
	return errors.Is(err, ErrStopped)
}
