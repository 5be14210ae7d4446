package router

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// OnboardingTopic is one of the fixed onboarding topics.
type OnboardingTopic string

const (
	TopicTests     OnboardingTopic = "tests"
	TopicRun       OnboardingTopic = "run"
	TopicBuild     OnboardingTopic = "build"
	TopicInstall   OnboardingTopic = "install"
	TopicCI        OnboardingTopic = "ci"
	TopicStructure OnboardingTopic = "structure"
	TopicUnknown   OnboardingTopic = "unknown"
)

// topicKeywords maps substrings of the triggering text to a topic, checked
// in order (first match wins).
var topicKeywords = []struct {
	topic    OnboardingTopic
	keywords []string
}{
	{TopicTests, []string{"test", "тест"}},
	{TopicRun, []string{"run", "quick start", "quickstart", "запуск"}},
	{TopicBuild, []string{"build", "compile", "сборк"}},
	{TopicInstall, []string{"install", "setup", "установ"}},
	{TopicCI, []string{"ci", "pipeline", "workflow"}},
	{TopicStructure, []string{"structure", "architecture", "layout", "архитектур"}},
}

// ClassifyOnboardingTopic picks a topic from the triggering text.
func ClassifyOnboardingTopic(text string) OnboardingTopic {
	lower := strings.ToLower(text)
	for _, entry := range topicKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.topic
			}
		}
	}
	return TopicUnknown
}

// topicGrepPattern is the one bounded grep each topic runs before doc
// anchors are appended.
var topicGrepPattern = map[OnboardingTopic]string{
	TopicTests:     `(?i)^\s*(go test|npm test|pytest|cargo test)`,
	TopicRun:       `(?i)^\s*(go run|npm (run )?start|python |cargo run)`,
	TopicBuild:     `(?i)^\s*(go build|npm (run )?build|make build|cargo build)`,
	TopicInstall:   `(?i)^\s*(go mod|npm install|pip install|cargo fetch)`,
	TopicCI:        `(?i)^name:|on:\s*$|^\s*jobs:`,
	TopicStructure: `(?i)^(internal|cmd|pkg)/`,
}

// curatedDocs are anchor-selected for every onboarding response regardless
// of topic, in priority order.
var curatedDocs = []string{"AGENTS.md", "README.md", "docs/QUICK_START.md", "CONTRIBUTING.md"}

// OnboardingIntentHandler implements the §4.10 onboarding sub-mode.
type OnboardingIntentHandler struct{}

func (h *OnboardingIntentHandler) Handle(_ context.Context, root string, req Request) (Response, error) {
	triggerText := req.Path
	if req.Query != "" {
		triggerText = req.Query
	}
	if req.Ask != "" {
		triggerText = req.Ask
	}
	topic := ClassifyOnboardingTopic(triggerText)

	var sections []Section
	if pattern, ok := topicGrepPattern[topic]; ok {
		result, err := GrepScan(root, pattern, "", false, 2, 2, 1, 5, false, "", 0, "")
		if err == nil {
			for _, hu := range result.Hunks {
				sections = append(sections, Section{
					Kind:    SectionHunks,
					Title:   string(topic) + ":" + hu.File,
					Path:    hu.File,
					Content: hu.Content,
				})
			}
		}
	}

	for _, rel := range curatedDocs {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		data, err := os.ReadFile(abs)
		if err != nil {
			continue
		}
		sections = append(sections, Section{
			Kind:    SectionDoc,
			Title:   rel,
			Path:    rel,
			Content: anchorWindow(string(data), 60),
		})
	}

	return Response{Sections: sections}, nil
}

var _ IntentHandler = (*OnboardingIntentHandler)(nil)
