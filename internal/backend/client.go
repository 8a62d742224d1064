// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for the grounded chat service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/groundchat/internal/model"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the backend client.
type ClientError struct {
	Type       ErrorType
	StatusCode int
	Message    string
	Body       string
	Cause      error
}

func (e *ClientError) Error() string {
	msg := e.Message
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches sentinel errors by type, so errors.Is(err, ErrTimeout) holds for
// any timeout regardless of message.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	return t.Type == e.Type && (t.StatusCode == 0 || t.StatusCode == e.StatusCode)
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeConnection
	ErrTypeTimeout
	ErrTypeStatus
	ErrTypeInvalidResponse
	ErrTypeNotConfigured
)

// Sentinel errors for easy checking.
var (
	ErrConnection    = &ClientError{Type: ErrTypeConnection, Message: "backend is not reachable"}
	ErrTimeout       = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrNotConfigured = &ClientError{Type: ErrTypeNotConfigured, Message: "chat history is not configured"}
)

// maxErrorBody bounds how much of a failed response is retained.
const maxErrorBody = 64 * 1024

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the backend client.
type ClientConfig struct {
	// BaseURL is the backend root (default: http://127.0.0.1:5000)
	BaseURL string

	// AuthToken is sent as a bearer token when set
	AuthToken string

	// Timeout for non-streaming requests (default: 30s)
	Timeout time.Duration

	// StreamTimeout bounds the wait for response headers on streaming
	// requests; the body itself may stream for as long as it needs (default: 120s)
	StreamTimeout time.Duration

	// RequestsPerSecond paces outbound requests (default: 2)
	RequestsPerSecond float64

	// Burst is the number of requests allowed back to back (default: 4)
	Burst int

	// UserAgent identifies the client
	UserAgent string
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:           "http://127.0.0.1:5000",
		Timeout:           30 * time.Second,
		StreamTimeout:     120 * time.Second,
		RequestsPerSecond: 2,
		Burst:             4,
		UserAgent:         "groundchat",
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the chat backend.
// It provides the streaming conversation endpoints and the history API.
//
// The Client is thread-safe for concurrent use.
//
// Example:
//
//	client := backend.NewClient()
//	stream, err := client.Conversation(ctx, messages)
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//	for {
//	    env, err := stream.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
type Client struct {
	config       *ClientConfig
	httpClient   *http.Client
	streamClient *http.Client
	limiter      *rate.Limiter
}

// NewClient creates a new backend client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new backend client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	// Fill in defaults for any zero values
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.StreamTimeout == 0 {
		config.StreamTimeout = defaults.StreamTimeout
	}
	if config.RequestsPerSecond == 0 {
		config.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if config.Burst == 0 {
		config.Burst = defaults.Burst
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}

	limit := rate.Limit(config.RequestsPerSecond)
	if config.RequestsPerSecond < 0 {
		limit = rate.Inf
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = config.StreamTimeout

	return &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		streamClient: &http.Client{
			Transport: transport,
		},
		limiter: rate.NewLimiter(limit, config.Burst),
	}
}

// BaseURL returns the backend root the client talks to.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// =============================================================================
// STREAMING CONVERSATION
// =============================================================================

// Stream is an open response from one of the conversation endpoints.
// The caller must Close it.
type Stream struct {
	StatusCode int
	body       io.ReadCloser
	dec        *Decoder
}

// NewStream wraps an already-open response body.
func NewStream(status int, body io.ReadCloser) *Stream {
	return &Stream{StatusCode: status, body: body, dec: NewDecoder(body)}
}

// OK reports whether the backend accepted the request.
func (s *Stream) OK() bool {
	return s.StatusCode >= 200 && s.StatusCode < 300
}

// Next returns the next envelope or io.EOF.
func (s *Stream) Next() (*Envelope, error) {
	return s.dec.Next()
}

// Decoder exposes the underlying decoder.
func (s *Stream) Decoder() *Decoder {
	return s.dec
}

// ReadBody drains and returns the (bounded) raw body. Used for failed
// responses, which are not streamed.
func (s *Stream) ReadBody() string {
	data, _ := io.ReadAll(io.LimitReader(s.body, maxErrorBody))
	return string(data)
}

// Close releases the response body.
func (s *Stream) Close() error {
	if s.body == nil {
		return nil
	}
	return s.body.Close()
}

// Conversation asks the grounded text model without persisting anything.
// POST /conversation
func (c *Client) Conversation(ctx context.Context, messages []model.Message) (*Stream, error) {
	return c.openStream(ctx, "/conversation", ChatRequest{Messages: messages})
}

// Dalle asks the image model. The response is a single {"image_url": ...}
// object, or an error object.
// POST /dalle
func (c *Client) Dalle(ctx context.Context, messages []model.Message) (*Stream, error) {
	return c.openStream(ctx, "/dalle", ChatRequest{Messages: messages})
}

// Generate asks the grounded text model through the history service, which
// records the user message and tags the stream with history_metadata.
// POST /history/generate
func (c *Client) Generate(ctx context.Context, messages []model.Message, conversationID string) (*Stream, error) {
	return c.openStream(ctx, "/history/generate", ChatRequest{
		Messages:       messages,
		ConversationID: conversationID,
	})
}

// openStream posts body to path and returns the response without checking
// its status; the caller decides how to treat failures.
func (c *Client) openStream(ctx context.Context, path string, body any) (*Stream, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, wrapTransportError(ctx, err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/x-ndjson, application/json")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, wrapTransportError(ctx, err)
	}
	return NewStream(resp.StatusCode, resp.Body), nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to marshal request", Cause: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	if c.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}
	return req, nil
}

// wrapTransportError maps a failed round trip onto a ClientError.
func wrapTransportError(ctx context.Context, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &ClientError{Type: ErrTypeTimeout, Message: "request timed out", Cause: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &ClientError{Type: ErrTypeTimeout, Message: "request timed out", Cause: err}
	case ctx.Err() != nil:
		return &ClientError{Type: ErrTypeConnection, Message: "request cancelled", Cause: context.Cause(ctx)}
	default:
		return &ClientError{Type: ErrTypeConnection, Message: "backend is not reachable", Cause: err}
	}
}

// IsTimeout returns true if the error is a timeout error.
func IsTimeout(err error) bool {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Type == ErrTypeTimeout
	}
	return false
}

// IsNotConfigured returns true if the history service reported itself unconfigured.
func IsNotConfigured(err error) bool {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Type == ErrTypeNotConfigured
	}
	return false
}
