// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package history

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jeranaias/groundchat/internal/backend"
	"github.com/jeranaias/groundchat/internal/model"
)

// =============================================================================
// STORE
// =============================================================================

// Store is the in-memory conversation list and the pointer to the current
// conversation, mirrored to a Service.
//
// Conversations never leave the store by reference: readers get deep copies
// and writers hand in replacements. The Store is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	svc       Service
	status    Status
	convs     []*model.Conversation // most recently touched first
	current   string
	exhausted bool
}

// NewStore creates a store backed by svc. A nil svc yields a store whose
// status is StatusNotConfigured.
func NewStore(svc Service) *Store {
	s := &Store{svc: svc}
	if svc == nil {
		s.status = StatusNotConfigured
	}
	return s
}

// Service returns the backing service, or nil.
func (s *Store) Service() Service {
	return s.svc
}

// =============================================================================
// STATUS
// =============================================================================

// Ensure probes the service and records its status.
func (s *Store) Ensure(ctx context.Context) (Status, error) {
	if s.svc == nil {
		s.setStatus(StatusNotConfigured)
		return StatusNotConfigured, ErrUnavailable
	}

	err := s.svc.Ensure(ctx)
	status := StatusWorking
	switch {
	case err == nil:
	case errors.Is(err, backend.ErrNotConfigured):
		status = StatusNotConfigured
	default:
		status = StatusNotWorking
	}
	s.setStatus(status)
	return status, err
}

func (s *Store) setStatus(status Status) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// Status returns the last probed status.
func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Available reports whether the last probe found a working service.
func (s *Store) Available() bool {
	return s.Status().Available()
}

// MintsConversations reports whether conversation IDs are assigned locally.
func (s *Store) MintsConversations() bool {
	m, ok := s.svc.(Minter)
	return ok && m.MintsConversations()
}

// =============================================================================
// LISTING
// =============================================================================

// Load replaces the conversation list with the first page from the service.
// Conversations whose messages were already loaded keep them.
func (s *Store) Load(ctx context.Context) error {
	if s.svc == nil {
		return ErrUnavailable
	}
	page, err := s.svc.List(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]*model.Conversation, 0, len(page))
	for _, c := range page {
		if existing := s.findLocked(c.ID); existing != nil && len(existing.Messages) > 0 {
			c.Messages = existing.Messages
		}
		next = append(next, c)
	}
	s.convs = next
	s.exhausted = len(page) < PageSize
	return nil
}

// LoadMore appends the next page. It returns the number of new conversations.
func (s *Store) LoadMore(ctx context.Context) (int, error) {
	if s.svc == nil {
		return 0, ErrUnavailable
	}
	s.mu.RLock()
	offset, done := len(s.convs), s.exhausted
	s.mu.RUnlock()
	if done {
		return 0, nil
	}

	page, err := s.svc.List(ctx, offset)
	if err != nil {
		return 0, fmt.Errorf("failed to list conversations: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	added := 0
	for _, c := range page {
		if s.findLocked(c.ID) == nil {
			s.convs = append(s.convs, c)
			added++
		}
	}
	s.exhausted = len(page) < PageSize
	return added, nil
}

// Conversations returns copies of all known conversations.
func (s *Store) Conversations() []*model.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*model.Conversation, len(s.convs))
	for i, c := range s.convs {
		out[i] = c.Clone()
	}
	return out
}

// =============================================================================
// LOOKUP AND REPLACEMENT
// =============================================================================

// Find returns a copy of the conversation with the given ID.
func (s *Store) Find(id string) (*model.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c := s.findLocked(id); c != nil {
		return c.Clone(), true
	}
	return nil, false
}

func (s *Store) findLocked(id string) *model.Conversation {
	for _, c := range s.convs {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Append adds msgs to the stored conversation and returns a copy of the
// result. The previous value is replaced, not mutated.
func (s *Store) Append(id string, msgs ...model.Message) (*model.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.findLocked(id)
	if c == nil {
		return nil, false
	}
	next := c.Clone()
	next.Append(msgs...)
	s.replaceLocked(next)
	return next.Clone(), true
}

// Put inserts or replaces conv and makes it the current conversation.
func (s *Store) Put(conv *model.Conversation) {
	if conv == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceLocked(conv.Clone())
	s.current = conv.ID
}

// replaceLocked moves conv to the front of the list, dropping any older value.
func (s *Store) replaceLocked(conv *model.Conversation) {
	next := make([]*model.Conversation, 0, len(s.convs)+1)
	next = append(next, conv)
	for _, c := range s.convs {
		if c.ID != conv.ID {
			next = append(next, c)
		}
	}
	s.convs = next
}

// Current returns a copy of the current conversation.
func (s *Store) Current() (*model.Conversation, bool) {
	s.mu.RLock()
	id := s.current
	s.mu.RUnlock()
	if id == "" {
		return nil, false
	}
	return s.Find(id)
}

// CurrentID returns the current conversation ID, or "".
func (s *Store) CurrentID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// NewChat forgets the current conversation; the next question starts a new one.
func (s *Store) NewChat() {
	s.mu.Lock()
	s.current = ""
	s.mu.Unlock()
}

// Select makes id current, reading its messages from the service if they
// have not been loaded yet.
func (s *Store) Select(ctx context.Context, id string) (*model.Conversation, error) {
	conv, ok := s.Find(id)
	if !ok {
		return nil, ErrConversationNotFound
	}
	if len(conv.Messages) == 0 && s.svc != nil {
		msgs, err := s.svc.Read(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to read conversation %s: %w", id, err)
		}
		conv.Messages = msgs
	}
	s.Put(conv)
	return conv, nil
}

// =============================================================================
// SERVICE OPERATIONS
// =============================================================================

// Flush writes conv to the service. The in-memory copy is left as is whether
// or not the write succeeds.
func (s *Store) Flush(ctx context.Context, conv *model.Conversation) error {
	if s.svc == nil || !s.Available() {
		return ErrUnavailable
	}
	if conv == nil {
		return ErrConversationNotFound
	}
	if err := s.svc.Update(ctx, conv); err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", conv.ID, err)
	}
	return nil
}

// Clear removes the messages of a conversation on the service, then locally.
func (s *Store) Clear(ctx context.Context, id string) error {
	if s.svc == nil {
		return ErrUnavailable
	}
	if err := s.svc.Clear(ctx, id); err != nil {
		return fmt.Errorf("failed to clear conversation %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.findLocked(id); c != nil {
		next := c.Clone()
		next.ClearHistory()
		s.replaceLocked(next)
	}
	return nil
}

// Rename changes a conversation's title on the service, then locally.
func (s *Store) Rename(ctx context.Context, id, title string) error {
	if s.svc == nil {
		return ErrUnavailable
	}
	if err := s.svc.Rename(ctx, id, title); err != nil {
		return fmt.Errorf("failed to rename conversation %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.findLocked(id); c != nil {
		next := c.Clone()
		next.Title = title
		s.replaceLocked(next)
	}
	return nil
}

// Delete removes a conversation on the service, then locally.
func (s *Store) Delete(ctx context.Context, id string) error {
	if s.svc == nil {
		return ErrUnavailable
	}
	if err := s.svc.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]*model.Conversation, 0, len(s.convs))
	for _, c := range s.convs {
		if c.ID != id {
			next = append(next, c)
		}
	}
	s.convs = next
	if s.current == id {
		s.current = ""
	}
	return nil
}

// DeleteAll removes every conversation on the service, then locally.
func (s *Store) DeleteAll(ctx context.Context) error {
	if s.svc == nil {
		return ErrUnavailable
	}
	if err := s.svc.DeleteAll(ctx); err != nil {
		return fmt.Errorf("failed to delete conversations: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.convs = nil
	s.current = ""
	s.exhausted = true
	return nil
}
