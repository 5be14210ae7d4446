package router

import (
	"errors"
	"strconv"
	"strings"

	"github.com/contextfinder/contextfinder/internal/cursor"
)

// minEnvelopeChars is the smallest response the trimmer will still attempt
// to fit: a single section header plus a cursor marker. Anything below
// this cannot hold a meaningful reply.
const minEnvelopeChars = 64

// ErrBudgetTooSmall is returned when max_chars cannot hold even the minimal
// envelope after every trim step has been exhausted.
var ErrBudgetTooSmall = errors.New("invalid_request: max_chars too small for minimum envelope")

// trimState carries the mutable pieces trimmed in order by ApplyTrimOrder.
type trimState struct {
	recallSnippets []*Section // extra per-question snippets, dropped first
	nextActions    *[]string
	metaIndexState **IndexStateMeta
	fullMode       bool
	sections       *[]Section
	nextCursor     *string
}

// ApplyTrimOrder renders via render, and on overflow walks the §4.10 trim
// order (recall snippets -> next_actions -> meta.index_state (non-full) ->
// tail sections -> last section -> next_cursor) until it fits or nothing is
// left to drop, in which case it returns ErrBudgetTooSmall.
func ApplyTrimOrder(maxChars int, render cursor.Render, st trimState) (cursor.Envelope, error) {
	steps := buildTrimSteps(st)
	stepIdx := 0

	pop := func() bool {
		for stepIdx < len(steps) {
			if steps[stepIdx]() {
				return true
			}
			stepIdx++
		}
		return false
	}

	env := cursor.EnforceMaxChars(maxChars, render, pop)
	if env.UsedChars > maxChars {
		return env, ErrBudgetTooSmall
	}
	return env, nil
}

// buildTrimSteps returns the ordered list of "drop one more unit" closures,
// one per §4.10 trim-order rule. Each returns false once it has nothing
// left to give up, at which point ApplyTrimOrder advances to the next step.
func buildTrimSteps(st trimState) []func() bool {
	var steps []func() bool

	// 1. Recall: drop extra per-question snippets, then shrink the last
	// snippet by 1/3 down to an 80-char floor.
	steps = append(steps, func() bool {
		if len(st.recallSnippets) == 0 {
			return false
		}
		last := st.recallSnippets[len(st.recallSnippets)-1]
		if len(last.Content) > 80 {
			newLen := len(last.Content) - len(last.Content)/3
			if newLen < 80 {
				newLen = 80
			}
			if newLen >= len(last.Content) {
				st.recallSnippets = st.recallSnippets[:len(st.recallSnippets)-1]
				return true
			}
			last.Content = last.Content[:newLen]
			return true
		}
		st.recallSnippets = st.recallSnippets[:len(st.recallSnippets)-1]
		return true
	})

	// 2. Drop next_actions.
	steps = append(steps, func() bool {
		if st.nextActions == nil || len(*st.nextActions) == 0 {
			return false
		}
		*st.nextActions = nil
		return true
	})

	// 3. Non-full mode: drop meta.index_state.
	steps = append(steps, func() bool {
		if st.fullMode || st.metaIndexState == nil || *st.metaIndexState == nil {
			return false
		}
		*st.metaIndexState = nil
		return true
	})

	// 4. Drop sections from the tail until one remains.
	steps = append(steps, func() bool {
		if st.sections == nil || len(*st.sections) <= 1 {
			return false
		}
		*st.sections = (*st.sections)[:len(*st.sections)-1]
		return true
	})

	// 5. Drop the last section entirely.
	steps = append(steps, func() bool {
		if st.sections == nil || len(*st.sections) == 0 {
			return false
		}
		*st.sections = nil
		return true
	})

	// 6. Drop next_cursor (last resort).
	steps = append(steps, func() bool {
		if st.nextCursor == nil || *st.nextCursor == "" {
			return false
		}
		*st.nextCursor = ""
		return true
	})

	return steps
}

// RetryHint renders the §4.10 step-7 message: refuse with invalid_request
// and a retry hint naming the minimum envelope size.
func RetryHint() string {
	var b strings.Builder
	b.WriteString("invalid_request: response does not fit max_chars even after full trim; ")
	b.WriteString("retry with max_chars >= ")
	b.WriteString(strconv.Itoa(minEnvelopeChars))
	return b.String()
}
