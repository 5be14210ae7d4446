// Package cursor implements the budget/cursor engine: opaque, versioned
// continuation tokens for paginated tool responses, and the max_chars
// budget enforcement every response is trimmed against.
//
// Two wire encodings coexist: an inline base64url(zlib?(json)) encoding for
// small cursors, and a short server-stored "alias" (cfcs2:<id><sig>) for
// anything that would otherwise blow up an agent's context window across a
// tight pagination loop.
package cursor

import (
	"bytes"
	"compress/zlib"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Version is the cursor schema version this build understands.
const Version = 1

// Wire format limits (ambiguity resolved against original_source's
// cursor_alias.rs: MAX_INLINE_CURSOR_CHARS = 16).
const (
	MaxInlineCursorChars = 16
	maxCursorJSONBytes   = 4 * 1024
	maxCursorWireBytes   = 8 * 1024

	zlibMagic = "CFCZ"

	AliasPrefixV1 = "cfcs1:"
	AliasPrefixV2 = "cfcs2:"
	aliasSigBytes = 6
)

var (
	// ErrTooLarge is returned when encoding a cursor whose JSON exceeds the
	// inline size budget.
	ErrTooLarge = errors.New("cursor: payload exceeds maximum encodable size")
	// ErrInvalidCursor is returned for any cursor that cannot be decoded,
	// whose version does not match, or whose wire form exceeds limits.
	ErrInvalidCursor = errors.New("invalid cursor")
	// ErrExpired is returned when a stored alias has no backing payload
	// (evicted by TTL) or fails signature verification.
	ErrExpired = errors.New("invalid cursor: expired continuation")
)

// Header is the minimal shape every cursor payload carries, used to sniff
// tool/mode before fully unmarshaling into a tool-specific cursor struct.
type Header struct {
	V    int    `json:"v"`
	Tool string `json:"tool"`
	Mode string `json:"mode,omitempty"`
}

// Encode renders an arbitrary JSON-serializable cursor value to its inline
// wire form: base64url of the JSON, zlib-compressed with a "CFCZ" magic
// prefix when compression actually saves bytes.
func Encode(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("cursor: marshal: %w", err)
	}
	if len(raw) > maxCursorJSONBytes {
		return "", ErrTooLarge
	}

	payload := raw
	compressed, err := compress(raw)
	if err == nil && len(compressed) < len(raw) {
		payload = append([]byte(zlibMagic), compressed...)
	}

	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(payload), nil
}

// Decode reverses Encode into the destination value. v must be a pointer.
func Decode(encoded string, v any) error {
	if len(encoded) > maxCursorWireBytes {
		return ErrInvalidCursor
	}
	raw, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}

	if bytes.HasPrefix(raw, []byte(zlibMagic)) {
		raw, err = decompress(raw[len(zlibMagic):])
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidCursor, err)
		}
	}
	if len(raw) > maxCursorJSONBytes {
		return ErrInvalidCursor
	}

	var hdr Header
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if hdr.V != Version {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidCursor, hdr.V)
	}

	return json.Unmarshal(raw, v)
}

// PeekHeader decodes only the header (tool/mode/version) without requiring
// knowledge of the tool-specific fields. Used by the router to dispatch a
// bare cursor before knowing which sub-mode struct to unmarshal into.
func PeekHeader(encoded string) (Header, error) {
	raw, err := rawJSON(encoded)
	if err != nil {
		return Header{}, err
	}
	var hdr Header
	if err := json.Unmarshal(raw, &hdr); err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return hdr, nil
}

func rawJSON(encoded string) ([]byte, error) {
	if len(encoded) > maxCursorWireBytes {
		return nil, ErrInvalidCursor
	}
	raw, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if bytes.HasPrefix(raw, []byte(zlibMagic)) {
		raw, err = decompress(raw[len(zlibMagic):])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
		}
	}
	return raw, nil
}

func compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(raw []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// payloadSig computes the first 6 bytes of SHA-256(payload), the alias v2
// signature (ambiguity resolved against original_source/cursor_alias.rs).
func payloadSig(payload []byte) [aliasSigBytes]byte {
	digest := sha256.Sum256(payload)
	var sig [aliasSigBytes]byte
	copy(sig[:], digest[:aliasSigBytes])
	return sig
}

func encodeAliasV2(storeID uint64, sig [aliasSigBytes]byte) string {
	buf := make([]byte, 8+aliasSigBytes)
	binary.BigEndian.PutUint64(buf[:8], storeID)
	copy(buf[8:], sig[:])
	return AliasPrefixV2 + base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(buf)
}

func decodeAliasV2(encoded string) (uint64, [aliasSigBytes]byte, error) {
	var sig [aliasSigBytes]byte
	raw, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(encoded)
	if err != nil {
		return 0, sig, err
	}
	if len(raw) != 8+aliasSigBytes {
		return 0, sig, errors.New("cursor: malformed alias")
	}
	copy(sig[:], raw[8:])
	return binary.BigEndian.Uint64(raw[:8]), sig, nil
}

func encodeAliasV1(storeID uint64) string {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, storeID)
	return AliasPrefixV1 + base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(buf)
}

func decodeAliasV1(encoded string) (uint64, error) {
	raw, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(encoded)
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, errors.New("cursor: malformed legacy alias")
	}
	return binary.BigEndian.Uint64(raw), nil
}
