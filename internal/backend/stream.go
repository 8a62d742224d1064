// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/tidwall/gjson"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	// DefaultMaxAccumulatorBytes bounds the bytes held while waiting for the
	// rest of a split object. Anything larger is dropped as noise.
	DefaultMaxAccumulatorBytes = 4 << 20

	readChunkSize = 32 * 1024
)

var newline = []byte{'\n'}

// =============================================================================
// DECODER
// =============================================================================

// Decoder turns a newline-delimited JSON byte stream into Envelopes.
//
// Network reads do not respect line boundaries, so a JSON object may arrive
// split across several chunks. Each newline-separated segment is appended to
// an accumulator and a parse is attempted; on failure the accumulator is kept
// for the next segment. The sequence of envelopes produced is therefore
// independent of how the input bytes were chunked.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	src    io.Reader
	buf    []byte
	acc    []byte
	queue  []*Envelope
	maxAcc int
	noise  int
	eof    bool
}

// NewDecoder creates a decoder reading from r. The input is treated as UTF-8;
// a leading byte order mark is stripped and a UTF-16 BOM switches decoding.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		src:    transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())),
		buf:    make([]byte, readChunkSize),
		maxAcc: DefaultMaxAccumulatorBytes,
	}
}

// SetMaxAccumulator changes the accumulator bound. Zero or less disables it.
func (d *Decoder) SetMaxAccumulator(n int) {
	d.maxAcc = n
}

// Noise returns how many undecodable fragments have been discarded.
func (d *Decoder) Noise() int {
	return d.noise
}

// Feed decodes one chunk of input and returns the envelopes completed by it.
// It never fails: fragments that cannot become an envelope are discarded.
func (d *Decoder) Feed(chunk []byte) []*Envelope {
	var out []*Envelope
	for _, seg := range bytes.Split(chunk, newline) {
		if len(seg) == 0 {
			continue
		}
		d.acc = append(d.acc, seg...)

		env, consumed := d.parse()
		if consumed {
			d.acc = d.acc[:0]
			if env != nil {
				out = append(out, env)
			}
			continue
		}
		if d.maxAcc > 0 && len(d.acc) > d.maxAcc {
			d.noise++
			d.acc = d.acc[:0]
		}
	}
	return out
}

// parse tries to decode the accumulator. consumed reports whether the
// accumulator is finished with, either because it produced an envelope or
// because it can never become one.
func (d *Decoder) parse() (env *Envelope, consumed bool) {
	trimmed := bytes.TrimSpace(d.acc)
	if len(trimmed) == 0 {
		return nil, true
	}
	if trimmed[0] != '{' {
		// Only objects are envelopes; no suffix can repair this prefix.
		d.noise++
		return nil, true
	}
	if !gjson.ValidBytes(trimmed) {
		// Probably split mid-object. Wait for more input.
		return nil, false
	}

	var e Envelope
	if err := json.Unmarshal(trimmed, &e); err != nil {
		d.noise++
		return nil, true
	}
	if e.isEmpty() {
		return nil, true
	}
	return &e, true
}

// Next returns the next envelope, reading more input as needed.
// It returns io.EOF once the input is exhausted; a trailing incomplete
// object is discarded at that point.
func (d *Decoder) Next() (*Envelope, error) {
	for {
		if len(d.queue) > 0 {
			env := d.queue[0]
			d.queue[0] = nil
			d.queue = d.queue[1:]
			return env, nil
		}
		if d.eof {
			return nil, io.EOF
		}

		n, err := d.src.Read(d.buf)
		if n > 0 {
			d.queue = append(d.queue, d.Feed(d.buf[:n])...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.eof = true
				if len(bytes.TrimSpace(d.acc)) > 0 {
					d.noise++
				}
				d.acc = nil
				continue
			}
			return nil, err
		}
	}
}

// Process reads envelopes and calls fn for each one.
// Blocks until the stream is complete, fn returns an error, or the context
// is cancelled.
func (d *Decoder) Process(ctx context.Context, fn func(*Envelope) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		env, err := d.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(env); err != nil {
			return err
		}
	}
}

// DecodeAll decodes every envelope from r. Intended for small bodies such
// as error responses.
func DecodeAll(r io.Reader) ([]*Envelope, error) {
	d := NewDecoder(r)
	var out []*Envelope
	err := d.Process(context.Background(), func(e *Envelope) error {
		out = append(out, e)
		return nil
	})
	return out, err
}

func (e *Envelope) isEmpty() bool {
	return e.ID == "" && len(e.Choices) == 0 && e.HistoryMetadata == nil &&
		e.ImageURL == "" && len(e.Error) == 0
}
