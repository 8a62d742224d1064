// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jeranaias/groundchat/internal/backend"
	"github.com/jeranaias/groundchat/internal/model"
)

// =============================================================================
// REQUEST STATE
// =============================================================================

// State is the lifecycle position of a request.
type State int32

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateCompleted
	StateAborted
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted || s == StateFailed
}

// Result describes how a request ended.
type Result struct {
	State          State
	Failure        FailureKind
	Err            error
	ConversationID string
	Messages       []model.Message
	Envelopes      int
}

// Request is one submitted question travelling through the state machine.
type Request struct {
	id             uint64
	user           model.Message
	policy         Policy
	conversationID string
	payload        []model.Message
	turn           *Turn
	started        time.Time

	state  atomic.Int32
	done   chan struct{}
	result Result
}

// ID returns the request's handle within its session.
func (r *Request) ID() uint64 { return r.id }

// User returns the submitted question.
func (r *Request) User() model.Message { return r.user }

// Mode returns whether the request is persisted.
func (r *Request) Mode() Mode { return r.policy.Mode() }

// ConversationID returns the conversation the question was asked in, or ""
// for a new conversation.
func (r *Request) ConversationID() string { return r.conversationID }

// Payload returns a copy of the messages sent to the backend.
func (r *Request) Payload() []model.Message { return model.CloneMessages(r.payload) }

// State returns the current state.
func (r *Request) State() State { return State(r.state.Load()) }

func (r *Request) setState(s State) { r.state.Store(int32(s)) }

// Done is closed when the request reaches a terminal state.
func (r *Request) Done() <-chan struct{} { return r.done }

// Wait blocks until the request ends and returns its result.
func (r *Request) Wait() Result {
	<-r.done
	return r.result
}

// =============================================================================
// EXECUTION
// =============================================================================

// aborted reports whether the request context ended for any reason other
// than a deadline. Deadlines are failures, everything else is a stop.
func aborted(ctx context.Context) bool {
	if ctx.Err() == nil {
		return false
	}
	return !errors.Is(context.Cause(ctx), context.DeadlineExceeded)
}

func (s *Session) run(ctx context.Context, r *Request) {
	res := s.execute(ctx, r)
	res.Envelopes = r.turn.Applied()
	s.finish(r, res)
}

func (s *Session) execute(ctx context.Context, r *Request) Result {
	r.setState(StateSending)
	s.log.Printf("REQUEST_START | request=%d mode=%s model=%s conversation=%q messages=%d",
		r.id, r.policy.Mode(), s.Model(), r.conversationID, len(r.payload))

	stream, err := r.policy.Open(ctx, r.payload, r.conversationID)
	if err != nil {
		if aborted(ctx) {
			return s.abort(r)
		}
		return s.fail(ctx, r, classifyFailure(0, "", err), err)
	}
	defer stream.Close()

	if !stream.OK() {
		return s.rejected(ctx, r, stream)
	}

	r.setState(StateStreaming)
	for {
		env, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if aborted(ctx) {
				return s.abort(r)
			}
			return s.fail(ctx, r, classifyFailure(0, "", err), err)
		}
		if !s.apply(ctx, r, env) {
			return s.abort(r)
		}
	}

	if n := stream.Decoder().Noise(); n > 0 {
		s.log.Printf("DECODE_NOISE | request=%d discarded=%d", r.id, n)
	}
	return s.complete(ctx, r)
}

// rejected handles a non-2xx response. Ephemeral requests still reduce a body
// that decodes to envelopes, because the backend reports model errors that way.
func (s *Session) rejected(ctx context.Context, r *Request, stream *backend.Stream) Result {
	body := stream.ReadBody()
	if aborted(ctx) {
		return s.abort(r)
	}

	kind := classifyFailure(stream.StatusCode, body, nil)
	if kind == NetworkFailure && r.policy.Mode() == ModeEphemeral {
		if envs, _ := backend.DecodeAll(strings.NewReader(body)); len(envs) > 0 {
			r.setState(StateStreaming)
			for _, env := range envs {
				if !s.apply(ctx, r, env) {
					return s.abort(r)
				}
			}
			return s.complete(ctx, r)
		}
	}
	if kind == NetworkFailure && r.policy.Mode() == ModePersisted {
		kind = GenerationFailed
	}
	return s.fail(ctx, r, kind, fmt.Errorf("backend returned status %d", stream.StatusCode))
}

// apply folds one envelope under the session lock. It returns false, without
// applying anything, once the request has been stopped.
func (s *Session) apply(ctx context.Context, r *Request, env *backend.Envelope) bool {
	s.mu.Lock()
	if aborted(ctx) {
		s.mu.Unlock()
		return false
	}
	s.messages = r.turn.Apply(env)
	if s.opts.Debug {
		s.log.Printf("STREAM_FRAGMENT | request=%d envelope=%d fragments=%d error=%t",
			r.id, r.turn.Applied(), len(env.Fragments()), env.HasError())
	}
	if r.turn.Produced() {
		s.showLoading = false
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.emit(snap)
	return true
}

// complete commits a finished turn. Persisted turns are appended to their
// conversation, which becomes current and is flushed.
func (s *Session) complete(ctx context.Context, r *Request) Result {
	s.mu.Lock()
	if aborted(ctx) {
		s.mu.Unlock()
		return s.abort(r)
	}

	if r.policy.Mode() == ModeEphemeral {
		visible := r.turn.Visible()
		s.mu.Unlock()
		s.log.Printf("REQUEST_COMPLETE | request=%d mode=ephemeral envelopes=%d duration=%s",
			r.id, r.turn.Applied(), time.Since(r.started).Round(time.Millisecond))
		return Result{State: StateCompleted, Messages: visible}
	}

	var conv *model.Conversation
	if r.conversationID != "" {
		c, ok := s.store.Append(r.conversationID, r.turn.Outputs()...)
		if !ok {
			visible := r.turn.Visible()
			s.mu.Unlock()
			s.log.Printf("REQUEST_COMPLETE | request=%d conversation=%q error=conversation_missing", r.id, r.conversationID)
			return Result{State: StateCompleted, Err: ErrConversationNotFound, Messages: visible}
		}
		conv = c
	} else {
		c, ok := s.adopt(r.turn.Metadata(), r.user, true)
		if !ok {
			visible := r.turn.Visible()
			s.mu.Unlock()
			s.log.Printf("REQUEST_COMPLETE | request=%d error=history_metadata_missing", r.id)
			return Result{State: StateCompleted, Err: errors.New("response carried no history metadata"), Messages: visible}
		}
		c.Append(r.user)
		c.Append(r.turn.Outputs()...)
		conv = c
	}
	s.store.Put(conv)
	s.messages = model.CloneMessages(conv.Messages)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap)

	s.log.Printf("REQUEST_COMPLETE | request=%d mode=persisted conversation=%q envelopes=%d duration=%s",
		r.id, conv.ID, r.turn.Applied(), time.Since(r.started).Round(time.Millisecond))

	res := Result{State: StateCompleted, ConversationID: conv.ID, Messages: model.CloneMessages(conv.Messages)}
	if visible, err := s.flush(ctx, conv); err != nil {
		res.Err = err
		res.Failure = HistoryServiceUnavailable
		res.Messages = visible
	}
	return res
}

// fail shows exactly one error message. Persisted requests also append it to
// their conversation and flush.
func (s *Session) fail(ctx context.Context, r *Request, kind FailureKind, cause error) Result {
	msg := model.NewErrorMessage(kind.Message(s.opts.ProductName))
	s.log.Printf("REQUEST_FAILED | request=%d mode=%s kind=%s error=%q", r.id, r.policy.Mode(), kind, errString(cause))

	s.mu.Lock()
	if aborted(ctx) {
		s.mu.Unlock()
		return s.abort(r)
	}

	var conv *model.Conversation
	if r.policy.Mode() == ModePersisted {
		if r.conversationID != "" {
			conv, _ = s.store.Append(r.conversationID, msg)
		} else if c, ok := s.adopt(r.turn.Metadata(), r.user, false); ok {
			c.Append(r.user, msg)
			conv = c
		}
		if conv != nil {
			s.store.Put(conv)
		}
	}
	// A saved conversation drops any partial answer, so show exactly what was
	// stored.
	visible := model.Concat(r.turn.Visible(), msg)
	if conv != nil {
		visible = model.CloneMessages(conv.Messages)
	}
	s.messages = visible
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap)

	res := Result{State: StateFailed, Failure: kind, Err: cause, Messages: visible}
	if conv != nil {
		res.ConversationID = conv.ID
		if flushed, err := s.flush(ctx, conv); err != nil {
			res.Messages = flushed
		}
	}
	return res
}

// abort ends a stopped request. Nothing is written: whatever was applied
// before the stop stays visible and later requests may already own the list.
func (s *Session) abort(r *Request) Result {
	s.log.Printf("REQUEST_ABORTED | request=%d envelopes=%d", r.id, r.turn.Applied())
	return Result{
		State:          StateAborted,
		Failure:        AbortedByUser,
		Err:            ErrStopped,
		ConversationID: r.conversationID,
		Messages:       r.turn.Visible(),
	}
}

// flush writes conv to the history service. On failure the visible list
// gains a notice, but the stored conversation is left as is. It returns the
// visible list it published in that case.
func (s *Session) flush(ctx context.Context, conv *model.Conversation) ([]model.Message, error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.FlushTimeout)
	defer cancel()

	err := s.store.Flush(fctx, conv)
	if err == nil {
		return nil, nil
	}
	s.log.Printf("FLUSH_FAILED | conversation=%q error=%q", conv.ID, err.Error())

	visible := model.Concat(conv.Messages, model.NewErrorMessage(msgFlushFailed))
	s.mu.Lock()
	if aborted(ctx) {
		s.mu.Unlock()
		return visible, err
	}
	s.messages = visible
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap)
	return visible, err
}

// adopt creates the conversation for a first question. Server metadata wins;
// services that mint their own conversations get a local ID when mint is set.
func (s *Session) adopt(meta *backend.HistoryMetadata, user model.Message, mint bool) (*model.Conversation, bool) {
	if meta != nil && meta.ConversationID != "" {
		title := meta.Title
		if title == "" {
			title = model.TitleFrom(user.Content)
		}
		return model.NewConversation(meta.ConversationID, title, meta.CreatedAt()), true
	}
	if mint && s.store.MintsConversations() {
		return model.NewConversation(model.NewID(), model.TitleFrom(user.Content), time.Now().UTC()), true
	}
	return nil, false
}

// finish releases the request and publishes the loading state.
func (s *Session) finish(r *Request, res Result) {
	s.mu.Lock()
	s.cancels.remove(r.id)
	s.loading = s.cancels.len() > 0
	if !s.loading {
		s.showLoading = false
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(snap)

	r.result = res
	r.setState(res.State)
	close(r.done)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
