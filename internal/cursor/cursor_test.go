package cursor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testCursor struct {
	V    int    `json:"v"`
	Tool string `json:"tool"`
	Mode string `json:"mode,omitempty"`
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	c := testCursor{V: Version, Tool: "file_slice", Mode: "file", File: "README.md", Line: 2}

	encoded, err := Encode(c)
	require.NoError(t, err)

	var out testCursor
	require.NoError(t, Decode(encoded, &out))
	assert.Equal(t, c, out)
}

func TestDecode_RejectsWrongVersion(t *testing.T) {
	c := testCursor{V: Version + 1, Tool: "file_slice"}
	encoded, err := Encode(c)
	require.NoError(t, err)

	var out testCursor
	err = Decode(encoded, &out)
	assert.ErrorIs(t, err, ErrInvalidCursor)
}

func TestEncode_RefusesOversizedPayload(t *testing.T) {
	c := testCursor{V: Version, Tool: "file_slice", Mode: strings.Repeat("x", 5000)}
	_, err := Encode(c)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestPeekHeader(t *testing.T) {
	c := testCursor{V: Version, Tool: "grep_context", Mode: "grep"}
	encoded, err := Encode(c)
	require.NoError(t, err)

	hdr, err := PeekHeader(encoded)
	require.NoError(t, err)
	assert.Equal(t, "grep_context", hdr.Tool)
	assert.Equal(t, "grep", hdr.Mode)
}

func TestStore_CompactAndExpand_RoundTrip(t *testing.T) {
	s := NewStore()
	c := testCursor{V: Version, Tool: "read_pack", Mode: "memory", File: strings.Repeat("a", 200)}
	encoded, err := Encode(c)
	require.NoError(t, err)

	compacted := s.Compact(encoded)
	assert.True(t, strings.HasPrefix(compacted, AliasPrefixV2))
	assert.Less(t, len(compacted), len(encoded))

	expanded, err := s.Expand(compacted)
	require.NoError(t, err)
	assert.Equal(t, encoded, expanded)
}

func TestStore_Compact_LeavesShortCursorsInline(t *testing.T) {
	s := NewStore()
	short := "abc"
	assert.Equal(t, short, s.Compact(short))
}

func TestStore_Expand_ExpiredAliasFails(t *testing.T) {
	s := NewStore()
	id := s.Put([]byte("payload"))
	sig := payloadSig([]byte("payload"))
	alias := encodeAliasV2(id, sig)

	// Force expiry by rewinding the clock function.
	s.mu.Lock()
	e := s.entries[id]
	e.expiresAt = e.expiresAt.Add(-2 * DefaultTTL)
	s.entries[id] = e
	s.mu.Unlock()

	_, err := s.Expand(alias)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestStore_Expand_SignatureMismatchFailsClosed(t *testing.T) {
	s := NewStore()
	id := s.Put([]byte("payload"))
	wrongSig := payloadSig([]byte("tampered"))
	alias := encodeAliasV2(id, wrongSig)

	_, err := s.Expand(alias)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestStore_Expand_LegacyV1Accepted(t *testing.T) {
	s := NewStore()
	id := s.Put([]byte("legacy-payload"))
	alias := encodeAliasV1(id)

	expanded, err := s.Expand(alias)
	require.NoError(t, err)
	assert.Equal(t, "legacy-payload", expanded)
}

func TestEnforceMaxChars_FitsWithoutPopping(t *testing.T) {
	env := EnforceMaxChars(100, func() string { return "short" }, func() bool {
		t.Fatal("pop should not be called when content already fits")
		return false
	})
	assert.False(t, env.Truncated)
	assert.Equal(t, 5, env.UsedChars)
}

func TestEnforceMaxChars_PopsUntilFit(t *testing.T) {
	items := []string{"aaaa", "bbb", "cc"}
	render := func() string { return strings.Join(items, "") }
	pop := func() bool {
		if len(items) == 0 {
			return false
		}
		items = items[:len(items)-1]
		return true
	}

	env := EnforceMaxChars(6, render, pop)
	assert.True(t, env.Truncated)
	require.NotNil(t, env.Truncation)
	assert.Equal(t, TruncationMaxChars, *env.Truncation)
	assert.LessOrEqual(t, env.UsedChars, 6)
}

func TestEnforceMaxChars_Idempotent(t *testing.T) {
	render := func() string { return "fixed content that never shrinks more" }
	pop := func() bool { return false }

	first := EnforceMaxChars(5, render, pop)
	second := EnforceMaxChars(5, render, pop)
	assert.Equal(t, first, second)
}

func TestMarkCursorTruncation(t *testing.T) {
	env := Envelope{MaxChars: 100, UsedChars: 10, Truncated: false}
	MarkCursorTruncation(&env, true)
	assert.True(t, env.Truncated)
	require.NotNil(t, env.Truncation)
	assert.Equal(t, TruncationMaxItems, *env.Truncation)

	reason := TruncationTimeout
	env2 := Envelope{MaxChars: 100, UsedChars: 10, Truncated: true, Truncation: &reason}
	MarkCursorTruncation(&env2, true)
	assert.Equal(t, TruncationTimeout, *env2.Truncation)
}
