// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"io"
	"math/rand"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStream = `{"id":"1","choices":[{"messages":[{"role":"tool","content":"{\"citations\":[{\"title\":\"Q3 – report\"}]}"}]}],"history_metadata":{"conversation_id":"c1","title":"Q3","date":"2024-05-01T10:00:00"}}
{"id":"1","choices":[{"messages":[{"role":"assistant","content":"Hel"}]}]}
{"id":"1","choices":[{"messages":[{"role":"assistant","content":"lo – wörld ✓"}]}]}
{"error":{"message":"late failure"}}
`

func feedAll(chunks ...string) []*Envelope {
	d := NewDecoder(strings.NewReader(""))
	var out []*Envelope
	for _, c := range chunks {
		out = append(out, d.Feed([]byte(c))...)
	}
	return out
}

// =============================================================================
// SPLIT INVARIANCE
// =============================================================================

func TestDecoder_SplitAtEveryBoundary(t *testing.T) {
	want := feedAll(sampleStream)
	require.Len(t, want, 4)

	for i := 0; i <= len(sampleStream); i++ {
		got := feedAll(sampleStream[:i], sampleStream[i:])
		if !assert.Equal(t, want, got, "split at byte %d", i) {
			return
		}
	}
}

func TestDecoder_RandomChunking(t *testing.T) {
	want := feedAll(sampleStream)
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 200; trial++ {
		var chunks []string
		rest := sampleStream
		for len(rest) > 0 {
			n := 1 + rng.Intn(12)
			if n > len(rest) {
				n = len(rest)
			}
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}
		require.Equal(t, want, feedAll(chunks...), "trial %d", trial)
	}
}

func TestDecoder_NextOneByteAtATime(t *testing.T) {
	d := NewDecoder(iotest.OneByteReader(strings.NewReader(sampleStream)))

	var got []*Envelope
	for {
		env, err := d.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, env)
	}

	require.Equal(t, feedAll(sampleStream), got)
	assert.Equal(t, "lo – wörld ✓", got[2].Fragments()[0].Content)
}

// =============================================================================
// TOLERANCE
// =============================================================================

func TestDecoder_Tolerance(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantCount int
		wantNoise int
	}{
		{
			name:      "empty input",
			input:     "",
			wantCount: 0,
		},
		{
			name:      "blank lines and CRLF",
			input:     "\n\r\n{\"image_url\":\"https://img/1.png\"}\r\n\n",
			wantCount: 1,
		},
		{
			name:      "pretty printed object spanning lines",
			input:     "{\n  \"error\": \"bad request\"\n}\n",
			wantCount: 1,
		},
		{
			name:      "non-object lines are noise",
			input:     "data: ping\n[1,2]\n{\"image_url\":\"u\"}\n",
			wantCount: 1,
			wantNoise: 2,
		},
		{
			name:      "wrong shape is noise",
			input:     "{\"choices\":\"nope\"}\n{\"image_url\":\"u\"}\n",
			wantCount: 1,
			wantNoise: 1,
		},
		{
			name:      "keepalive objects are dropped",
			input:     "{}\n{}\n",
			wantCount: 0,
		},
		{
			name:      "truncated trailing object",
			input:     "{\"image_url\":\"u\"}\n{\"choices\":[",
			wantCount: 1,
			wantNoise: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := NewDecoder(strings.NewReader(tc.input))
			count := 0
			for {
				_, err := d.Next()
				if err == io.EOF {
					break
				}
				require.NoError(t, err)
				count++
			}
			assert.Equal(t, tc.wantCount, count)
			assert.Equal(t, tc.wantNoise, d.Noise())
		})
	}
}

func TestDecoder_StripsByteOrderMark(t *testing.T) {
	envs, err := DecodeAll(strings.NewReader("\ufeff{\"image_url\":\"u\"}\n"))
	require.NoError(t, err)
	require.Len(t, envs, 1)
	assert.Equal(t, "u", envs[0].ImageURL)
}

func TestDecoder_AccumulatorBound(t *testing.T) {
	d := NewDecoder(strings.NewReader(""))
	d.SetMaxAccumulator(16)

	out := d.Feed([]byte(`{"choices":[{"messages":[{"role":"assistant","content":"way too long"`))
	assert.Empty(t, out)
	assert.Equal(t, 1, d.Noise())

	out = d.Feed([]byte("\n{\"image_url\":\"u\"}\n"))
	require.Len(t, out, 1)
}

// =============================================================================
// ENVELOPE
// =============================================================================

func TestEnvelope_ErrorText(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{`{"error":"plain"}`, "plain"},
		{`{"error":{"message":"nested","code":400}}`, "nested"},
		{`{"error":{"code":400}}`, `{"code":400}`},
		{`{"error":null,"image_url":"u"}`, ""},
		{`{"image_url":"u"}`, ""},
	}
	for _, tc := range tests {
		envs := feedAll(tc.line + "\n")
		require.Len(t, envs, 1, tc.line)
		assert.Equal(t, tc.want, envs[0].ErrorText(), tc.line)
		assert.Equal(t, tc.want != "", envs[0].HasError(), tc.line)
	}
}

func TestHistoryMetadata_CreatedAt(t *testing.T) {
	h := &HistoryMetadata{Date: "2024-05-01T10:00:00.123456"}
	assert.Equal(t, 2024, h.CreatedAt().Year())

	var nilMeta *HistoryMetadata
	assert.False(t, nilMeta.CreatedAt().IsZero())
}
