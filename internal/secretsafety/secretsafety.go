// Package secretsafety guards read/list tools against serving credential
// material: a fixed filename denylist, and a conservative content heuristic
// for inline "key: value" assignments.
package secretsafety

import (
	"path/filepath"
	"regexp"
	"strings"
)

// denyExact matches against a file's base name.
var denyExact = map[string]bool{
	".npmrc":  true,
	".netrc":  true,
	"id_rsa":  true,
	"id_ed25519": true,
}

// denyGlob matches against a file's base name with filepath.Match semantics.
var denyGlob = []string{
	".env",
	".env.*",
	"*.pem",
	"*.key",
}

// denySuffix matches a file's relative path suffix, for credentials nested
// under a known directory.
var denySuffix = []string{
	".cargo/credentials",
	".cargo/credentials.toml",
}

// envTemplateSuffixes are .env.* files explicitly exempted: they document
// shape, not secrets.
var envTemplateSuffixes = []string{
	".env.example",
	".env.template",
	".env.sample",
	".env.dist",
}

// IsDenied reports whether relPath names a file that read/list tools must
// refuse to open unless allowSecrets is set.
func IsDenied(relPath string) bool {
	base := filepath.Base(relPath)
	norm := filepath.ToSlash(relPath)

	for _, tmpl := range envTemplateSuffixes {
		if strings.EqualFold(base, tmpl) {
			return false
		}
	}

	if denyExact[base] {
		return true
	}

	for _, pattern := range denyGlob {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}

	for _, suffix := range denySuffix {
		if strings.HasSuffix(norm, suffix) {
			return true
		}
	}

	return false
}

// secretKeywords are the key names the content heuristic flags.
var secretKeywords = []string{
	"password", "passwd", "token", "secret", "api_key", "apikey",
	"access_key", "private_key", "client_secret", "auth_token",
}

// placeholderPattern matches values that look like a template placeholder
// rather than an actual secret.
var placeholderPattern = regexp.MustCompile(`^\s*(\$\{.*\}|<.*>|example|your[-_].*|xxx+|changeme|\.\.\.)\s*$`)

// assignmentPattern matches "key: value", "key=value", or "key := value"
// lines (YAML, env, TOML, shell-ish config).
var assignmentPattern = regexp.MustCompile(`(?i)^\s*["']?([\w.\-]+)["']?\s*[:=]=?\s*["']?(.+?)["']?\s*$`)

// ContentFlag describes one line in content that looks like a live secret
// assignment.
type ContentFlag struct {
	Line     int // 1-indexed
	Keyword  string
	Snippet  string
}

// ScanContent applies the key:value secret heuristic to file content, line
// by line, and returns every line that looks like a live (non-placeholder)
// secret assignment.
func ScanContent(content string) []ContentFlag {
	var flags []ContentFlag
	for i, line := range strings.Split(content, "\n") {
		m := assignmentPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		key := strings.ToLower(m[1])
		value := m[2]

		keyword := matchingKeyword(key)
		if keyword == "" {
			continue
		}
		if placeholderPattern.MatchString(value) || value == "" {
			continue
		}

		flags = append(flags, ContentFlag{
			Line:    i + 1,
			Keyword: keyword,
			Snippet: strings.TrimSpace(line),
		})
	}
	return flags
}

func matchingKeyword(key string) string {
	for _, kw := range secretKeywords {
		if strings.Contains(key, kw) {
			return kw
		}
	}
	return ""
}
