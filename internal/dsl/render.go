// Package dsl renders a router.Response as the line-oriented text format
// every read-pack tool returns alongside its structured result:
//
//	[CONTENT]
//	A: <one-line answer>
//	R: <file>:<start_line>[ label]
//	 <snippet line>
//	 <snippet line>
//	M: <cursor>
//	N: <hint or metadata k=v>
//
// Lines starting with a single leading space are content; every other
// prefix is structural.
package dsl

import (
	"fmt"
	"strings"

	"github.com/contextfinder/contextfinder/internal/router"
)

// Render builds the [CONTENT] block for a read-pack response. answer, when
// non-empty, becomes the single A: line. rootFingerprint is always emitted
// on an N: line per the error/output stability rule: every text response
// names the root it was computed against.
func Render(resp router.Response, answer, rootFingerprint string) string {
	var sb strings.Builder
	sb.WriteString("[CONTENT]\n")

	if answer != "" {
		fmt.Fprintf(&sb, "A: %s\n", oneLine(answer))
	}

	for _, sec := range resp.Sections {
		writeSection(&sb, sec)
	}

	if resp.NextCursor != "" {
		fmt.Fprintf(&sb, "M: %s\n", resp.NextCursor)
	}

	if resp.Truncated {
		fmt.Fprintf(&sb, "N: truncated=%s\n", defaultString(resp.Truncation, "true"))
	}
	for _, action := range resp.NextAction {
		fmt.Fprintf(&sb, "N: next_action=%s\n", action)
	}
	fmt.Fprintf(&sb, "N: root_fingerprint=%s\n", rootFingerprint)

	return sb.String()
}

// writeSection emits one R: header plus its indented content lines.
func writeSection(sb *strings.Builder, sec router.Section) {
	header := sec.Title
	if header == "" {
		header = sec.Path
	}
	if header == "" {
		header = string(sec.Kind)
	}
	fmt.Fprintf(sb, "R: %s\n", header)

	if sec.Content == "" {
		return
	}
	for _, line := range strings.Split(sec.Content, "\n") {
		fmt.Fprintf(sb, " %s\n", line)
	}
}

// RenderLegend builds the [LEGEND] block returned only by the help tool.
func RenderLegend() string {
	var sb strings.Builder
	sb.WriteString("[LEGEND]\n")
	sb.WriteString(" [CONTENT]  marks the start of a rendered read-pack response\n")
	sb.WriteString(" A:         one-line answer, present when the intent produces one\n")
	sb.WriteString(" R:         a section header: <file>:<start_line> or a label\n")
	sb.WriteString(" <space>    a content line belonging to the preceding R: header\n")
	sb.WriteString(" M:         a continuation cursor; pass it back verbatim to page further\n")
	sb.WriteString(" N:         a hint or metadata entry, rendered as key=value\n")
	return sb.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
