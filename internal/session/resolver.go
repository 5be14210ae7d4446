package session

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// RootEnvVars are checked in order; the first non-empty value wins. The
// first two names are this project's own; the last two are accepted for
// compatibility with the precursor tool's naming.
var RootEnvVars = []string{
	"CONTEXT_ROOT",
	"CONTEXT_PROJECT_ROOT",
	"CONTEXT_FINDER_ROOT",
	"CONTEXT_FINDER_PROJECT_ROOT",
}

// projectMarkers are walked bottom-up after a ".git" check fails, in the
// order a human would trust them.
var projectMarkers = []string{
	"AGENTS.md", "Cargo.toml", "package.json", "pyproject.toml", "go.mod",
	"pom.xml", "build.gradle", "build.gradle.kts", "CMakeLists.txt", "Makefile",
}

// ScopeHint narrows a query to part of an already-resolved root, either a
// subdirectory (IncludePaths) or a glob (FilePattern).
type ScopeHint struct {
	IncludePaths []string
	FilePattern  string
}

// Resolver implements the C13 root-resolution order: cursor-embedded root,
// absolute path + ancestor walk, relative-path scope hint, env override,
// workspace roots, cwd. A Resolver is sticky — once Root is set it is only
// replaced by explicit user intent (an absolute path/cursor that resolves
// to something else), never silently by a later relative hint.
type Resolver struct {
	// Root is the resolved project root for this process/session. Empty
	// until the first successful resolution.
	Root string
	// FocusFile is the last file path that drove root resolution, when
	// resolution was seeded by a file (spec C13 step 2).
	FocusFile string
	// WorkspaceRoots is the allowlist declared by the MCP host, if any.
	// When non-empty, a resolved root must fall inside one of them.
	WorkspaceRoots []string

	statFunc func(string) (os.FileInfo, error)
}

// NewResolver returns a Resolver with no root yet established.
func NewResolver() *Resolver {
	return &Resolver{statFunc: os.Stat}
}

// ResolveInput bundles everything one tool call might supply toward root
// resolution.
type ResolveInput struct {
	Path          string // explicit path argument, absolute or relative
	CursorRoot    string // root embedded in an inbound cursor, if any
	FilePattern   string
	HasCursor     bool
	StdioMode     bool // cwd fallback only applies in stdio transport mode
}

// Resolve applies the C13 order and returns the resolved root plus an
// optional scope hint. It mutates r.Root/r.FocusFile on success.
func (r *Resolver) Resolve(in ResolveInput) (root string, hint *ScopeHint, err error) {
	// 1. Cursor-embedded root, only when no root is established yet.
	if r.Root == "" && in.CursorRoot != "" {
		if canon, cerr := r.canonicalizeRootPath(in.CursorRoot); cerr == nil {
			if r.allowed(canon) {
				r.Root = canon
				return r.Root, nil, nil
			}
		}
	}

	// 2. Absolute path: canonicalize, walk for project root if it's a file.
	if in.Path != "" && filepath.IsAbs(in.Path) {
		canon, cerr := r.canonicalizeRootPath(in.Path)
		if cerr == nil && r.allowed(canon) {
			r.Root = canon
			if fi, statErr := r.statFunc(in.Path); statErr == nil && !fi.IsDir() {
				r.FocusFile = in.Path
			}
			return r.Root, nil, nil
		}
	}

	// 3. Relative path with an established root and no file/pattern/cursor:
	// treat as an in-project scope hint, do not switch root.
	if in.Path != "" && !filepath.IsAbs(in.Path) && r.Root != "" &&
		in.FilePattern == "" && !in.HasCursor {
		if sh := r.scopeHintFromRelativePath(in.Path); sh != nil {
			return r.Root, sh, nil
		}
	}

	// 4. Env override, then workspace roots, then cwd (stdio only).
	if r.Root == "" {
		if envRoot, ok := envRootOverride(); ok {
			if canon, cerr := r.canonicalizeRootPath(envRoot); cerr == nil && r.allowed(canon) {
				r.Root = canon
				return r.Root, nil, nil
			}
		}
		if len(r.WorkspaceRoots) > 0 {
			r.Root = r.WorkspaceRoots[0]
			return r.Root, nil, nil
		}
		if in.StdioMode {
			if cwd, cerr := os.Getwd(); cerr == nil {
				if canon, cerr := r.canonicalizeRootPath(cwd); cerr == nil {
					r.Root = canon
					return r.Root, nil, nil
				}
			}
		}
	}

	if r.Root != "" {
		return r.Root, nil, nil
	}
	return "", nil, errUnresolved
}

// allowed reports whether candidate falls inside the workspace-root
// allowlist, or true when no allowlist was declared.
func (r *Resolver) allowed(candidate string) bool {
	if len(r.WorkspaceRoots) == 0 {
		return true
	}
	for _, ws := range r.WorkspaceRoots {
		if candidate == ws || strings.HasPrefix(candidate, ws+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func envRootOverride() (string, bool) {
	for _, key := range RootEnvVars {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v, true
		}
	}
	return "", false
}

// canonicalizeRootPath resolves raw to an absolute, symlink-free path and,
// if it names a file, walks ancestors for a project root (preferring
// .git, then the marker-file list) instead of returning the file's own
// directory.
func (r *Resolver) canonicalizeRootPath(raw string) (string, error) {
	canonical, err := filepath.Abs(raw)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(canonical); err == nil {
		canonical = resolved
	}

	fi, statErr := r.statFunc(canonical)
	base := canonical
	isFile := statErr == nil && !fi.IsDir()
	if isFile {
		base = filepath.Dir(canonical)
	}

	if isFile {
		if root, ok := r.findProjectRoot(base); ok {
			return root, nil
		}
	}
	return base, nil
}

// findProjectRoot walks ancestors of start looking first for a ".git"
// directory, then for any marker file, returning the first ancestor
// (including start) that qualifies.
func (r *Resolver) findProjectRoot(start string) (string, bool) {
	if root, ok := r.findAncestor(start, func(dir string) bool {
		_, err := r.statFunc(filepath.Join(dir, ".git"))
		return err == nil
	}); ok {
		return root, true
	}
	return r.findAncestor(start, func(dir string) bool {
		for _, marker := range projectMarkers {
			if _, err := r.statFunc(filepath.Join(dir, marker)); err == nil {
				return true
			}
		}
		return false
	})
}

func (r *Resolver) findAncestor(start string, match func(string) bool) (string, bool) {
	dir := start
	for {
		if match(dir) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// scopeHintFromRelativePath mirrors original_source's
// scope_hint_from_relative_path: a glob becomes a FilePattern hint, an
// existing subdirectory becomes an IncludePaths hint, anything else
// becomes a literal FilePattern hint.
func (r *Resolver) scopeHintFromRelativePath(rawPath string) *ScopeHint {
	normalized := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(strings.ReplaceAll(rawPath, `\`, "/")), "./"), "/")
	if normalized == "" || normalized == "." {
		return nil
	}
	if filepath.IsAbs(normalized) {
		return nil
	}
	if isGlobHint(normalized) {
		return &ScopeHint{FilePattern: normalized}
	}

	candidate := filepath.Join(r.Root, normalized)
	if fi, err := r.statFunc(candidate); err == nil && fi.IsDir() {
		return &ScopeHint{IncludePaths: []string{normalized}}
	}
	return &ScopeHint{FilePattern: normalized}
}

func isGlobHint(value string) bool {
	return strings.ContainsAny(value, "*?")
}

// RootFromMCPURI parses a file:// URI (as sent by some MCP hosts for
// workspace roots) into a filesystem path. Only local file URIs are
// meaningful for a filesystem-indexing server; anything else returns ok=false.
func RootFromMCPURI(uri string) (string, bool) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return "", false
	}
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return "", false
	}
	path := u.Path
	if path == "" {
		return "", false
	}
	// file://localhost/abs/path -> Host == "localhost", Path == "/abs/path"
	if u.Host != "" && u.Host != "localhost" {
		return "", false
	}
	if len(path) >= 3 && path[0] == '/' && path[2] == ':' {
		// Windows drive-letter form produced by some hosts: "/C:/path".
		path = path[1:]
	}
	return path, true
}

var errUnresolved = &unresolvedError{}

type unresolvedError struct{}

func (*unresolvedError) Error() string { return "session: unable to resolve project root" }
