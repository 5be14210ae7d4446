package dsl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/contextfinder/contextfinder/internal/router"
)

func TestRender_BasicSectionAndCursor(t *testing.T) {
	resp := router.Response{
		Sections: []router.Section{
			{Title: "main.go:1-2", Content: "one\ntwo"},
		},
		NextCursor: "cfcs2:abc",
		Truncated:  true,
	}

	out := Render(resp, "found it", "fp123")

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Equal(t, "[CONTENT]", lines[0])
	assert.Equal(t, "A: found it", lines[1])
	assert.Equal(t, "R: main.go:1-2", lines[2])
	assert.Equal(t, " one", lines[3])
	assert.Equal(t, " two", lines[4])
	assert.Equal(t, "M: cfcs2:abc", lines[5])
	assert.Contains(t, out, "N: truncated=true")
	assert.Contains(t, out, "N: root_fingerprint=fp123")
}

func TestRender_NoAnswerOmitsALine(t *testing.T) {
	resp := router.Response{Sections: []router.Section{{Title: "a.go:1-1", Content: "x"}}}
	out := Render(resp, "", "fp")
	assert.NotContains(t, out, "A: ")
}

func TestRender_SectionWithoutTitleFallsBackToPath(t *testing.T) {
	resp := router.Response{Sections: []router.Section{{Path: "README.md", Content: "hello"}}}
	out := Render(resp, "", "fp")
	assert.Contains(t, out, "R: README.md")
}

func TestRender_EmptySectionStillEmitsHeader(t *testing.T) {
	resp := router.Response{Sections: []router.Section{{Kind: router.SectionDoc, Title: "notes"}}}
	out := Render(resp, "", "fp")
	assert.Contains(t, out, "R: notes\n")
	assert.NotContains(t, out, " \n")
}

func TestRenderLegend_ContainsLegendMarkerAndKeys(t *testing.T) {
	legend := RenderLegend()
	assert.True(t, strings.HasPrefix(legend, "[LEGEND]\n"))
	for _, marker := range []string{"A:", "R:", "M:", "N:"} {
		assert.Contains(t, legend, marker)
	}
}
