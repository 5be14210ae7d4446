package router

import (
	"strings"

	"github.com/contextfinder/contextfinder/internal/cursor"
)

// onboardingTriggers are substrings (checked case-insensitively) that force
// the onboarding intent regardless of other fields, in both English and
// Russian phrasing.
var onboardingTriggers = []string{
	"how to run", "quick start", "quickstart", "onboarding", "architecture",
	"как запустить", "быстрый старт", "архитектура",
}

// ResolveIntent implements the §4.10 intent-resolution order. toolHint/
// modeHint come from a peeked cursor header when req.HasCursor is set.
func ResolveIntent(req Request) Intent {
	if req.HasCursor && req.Cursor != "" {
		if hdr, err := cursor.PeekHeader(req.Cursor); err == nil && hdr.Mode != "" {
			return Intent(hdr.Mode)
		}
	}

	if matchesOnboardingTrigger(req.Path) || matchesOnboardingTrigger(req.Query) || matchesOnboardingTrigger(req.Ask) {
		return IntentOnboarding
	}

	if len(req.Questions) > 0 || strings.Contains(req.Ask, "\n") {
		return IntentRecall
	}

	if req.Query != "" {
		return IntentQuery
	}

	if req.Pattern != "" {
		return IntentGrep
	}

	if req.File != "" {
		return IntentFile
	}

	return IntentMemory
}

func matchesOnboardingTrigger(s string) bool {
	if s == "" {
		return false
	}
	lower := strings.ToLower(s)
	for _, trigger := range onboardingTriggers {
		if strings.Contains(lower, trigger) {
			return true
		}
	}
	return false
}
