package cursor

import "unicode/utf8"

// TruncationReason is the stable reason code carried in a response's
// budget envelope when truncated=true.
type TruncationReason string

const (
	TruncationMaxChars   TruncationReason = "max_chars"
	TruncationMaxItems   TruncationReason = "max_items"
	TruncationMaxMatches TruncationReason = "max_matches"
	TruncationMaxHunks   TruncationReason = "max_hunks"
	TruncationTimeout    TruncationReason = "timeout"
)

// Envelope is the budget envelope every paginated response carries.
type Envelope struct {
	MaxChars   int               `json:"max_chars"`
	UsedChars  int               `json:"used_chars"`
	Truncated  bool              `json:"truncated"`
	Truncation *TruncationReason `json:"truncation,omitempty"`
}

// CountChars returns the number of UTF-8 characters (runes) in s, the unit
// max_chars/used_chars are measured in.
func CountChars(s string) int {
	return utf8.RuneCountInString(s)
}

// Render produces the final on-wire string for a response. PopItem is
// called repeatedly by EnforceMaxChars until the render fits or popping no
// longer has any effect.
type Render func() string

// PopItem removes or shrinks one unit of content from the response being
// built (a related snippet, a tail hunk, a question, a fraction of a
// snippet's text). It returns false when nothing more can be dropped.
type PopItem func() bool

// EnforceMaxChars renders r against maxChars and, if it exceeds the
// budget, repeatedly invokes pop (drop a related snippet, drop a tail
// hunk, shrink a snippet by a deterministic fraction, ...) until it fits
// or pop returns false signaling there is nothing left to drop. The
// caller re-renders after this call to get the body matching UsedChars.
//
// EnforceMaxChars is idempotent: applying it twice against an
// already-converged render (pop now a permanent no-op) returns the same
// envelope both times.
func EnforceMaxChars(maxChars int, render Render, pop PopItem) Envelope {
	used := CountChars(render())
	if used <= maxChars {
		return Envelope{MaxChars: maxChars, UsedChars: used, Truncated: false}
	}

	for used > maxChars {
		if !pop() {
			break
		}
		used = CountChars(render())
	}

	reason := TruncationMaxChars
	return Envelope{MaxChars: maxChars, UsedChars: used, Truncated: true, Truncation: &reason}
}

// MarkCursorTruncation applies the cursor-first pagination rule (spec
// §4.9): any response carrying a next_cursor is truncated=true even if it
// already fits, with max_items as the reason unless another reason is
// already set.
func MarkCursorTruncation(env *Envelope, hasCursor bool) {
	if !hasCursor {
		return
	}
	env.Truncated = true
	if env.Truncation == nil {
		reason := TruncationMaxItems
		env.Truncation = &reason
	}
}
