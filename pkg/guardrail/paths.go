package guardrail

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Subdirectories of the root that agents may touch
const (
	DirAgents    = "agents"
	DirMemory    = "memory"
	DirLogs      = "logs"
	DirWorkspace = "workspace"
)

// DefaultDeniedFragments are sensitive locations rejected regardless of the
// allow-list. Matching is a case-insensitive substring test on the
// canonical path.
var DefaultDeniedFragments = []string{
	"/etc/",
	"/private/etc",
	"/.ssh",
	"/.aws",
	"/.gnupg",
	"/.kube",
	"/.docker",
	"/proc/",
	"/sys/",
	"/dev/",
	".env",
	"id_rsa",
	"id_ed25519",
	".pem",
}

// PathPolicy describes which paths may be read or written
type PathPolicy struct {
	Root    string   // every allowed directory lives under Root
	Allowed []string // subdirectories of Root
	Denied  []string // substrings that reject a path outright
}

// DefaultPathPolicy allows the standard subdirectories of root
func DefaultPathPolicy(root string) PathPolicy {
	return PathPolicy{
		Root:    root,
		Allowed: []string{DirAgents, DirMemory, DirLogs, DirWorkspace},
		Denied:  DefaultDeniedFragments,
	}
}

// PathGuard decides containment for candidate paths
type PathGuard struct {
	root    string
	allowed []string
	denied  []string
}

// NewPathGuard canonicalizes the policy roots
func NewPathGuard(policy PathPolicy) (*PathGuard, error) {
	if policy.Root == "" {
		return nil, fmt.Errorf("path policy: empty root")
	}
	root, err := canonicalize(policy.Root)
	if err != nil {
		return nil, fmt.Errorf("path policy: %w", err)
	}

	pg := &PathGuard{root: root}
	for _, dir := range policy.Allowed {
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(root, dir)
		}
		canon, err := canonicalize(dir)
		if err != nil {
			return nil, fmt.Errorf("path policy: %w", err)
		}
		pg.allowed = append(pg.allowed, canon)
	}
	for _, frag := range policy.Denied {
		pg.denied = append(pg.denied, strings.ToLower(filepath.ToSlash(frag)))
	}
	return pg, nil
}

// Root returns the canonical root
func (p *PathGuard) Root() string {
	return p.root
}

// Check returns nil when path is inside an allowed directory and clear of
// every denied fragment. Checks run in order: traversal, deny-list,
// allow-list. A path with ".." segments must still resolve inside an
// allowed directory.
func (p *PathGuard) Check(path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: containment check failed", ErrPathDenied)
		}
	}()

	if path == "" {
		return fmt.Errorf("%w: empty path", ErrPathDenied)
	}
	traversal := hasTraversal(path)
	if traversal {
		path = filepath.FromSlash(strings.ReplaceAll(path, `\`, "/"))
	}

	canon, err := canonicalize(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPathDenied, err)
	}

	if traversal && !p.inAllowed(canon) {
		return fmt.Errorf("%w: traversal in %q escapes the allowed directories", ErrPathDenied, path)
	}

	lowered := p.denyView(canon)

	for _, frag := range p.denied {
		if strings.Contains(lowered, frag) {
			return fmt.Errorf("%w: sensitive location %q", ErrPathDenied, frag)
		}
	}

	if p.inAllowed(canon) {
		return nil
	}
	return fmt.Errorf("%w: %q is not under an allowed directory", ErrPathDenied, canon)
}

func (p *PathGuard) inAllowed(canon string) bool {
	for _, dir := range p.allowed {
		if within(dir, canon) {
			return true
		}
	}
	return false
}

// denyView is the text the deny-list runs against: the part below the root
// when canon is under it, so the root's own location never trips a fragment.
func (p *PathGuard) denyView(canon string) string {
	view := canon
	if within(p.root, canon) {
		rel, _ := filepath.Rel(p.root, canon)
		view = string(filepath.Separator) + rel
	}
	return strings.ToLower(filepath.ToSlash(view))
}

// Allowed is Check reduced to a boolean
func (p *PathGuard) Allowed(path string) bool {
	return p.Check(path) == nil
}

// hasTraversal looks for ".." segments under either separator
func hasTraversal(path string) bool {
	segments := strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == '\\'
	})
	for _, seg := range segments {
		if seg == ".." {
			return true
		}
	}
	return false
}

// within reports whether target equals base or lies beneath it
func within(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// canonicalize makes path absolute and resolves symlinks on its deepest
// existing ancestor, so paths that do not exist yet still canonicalize.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	existing := abs
	var rest []string
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return abs, nil
		}
		rest = append([]string{filepath.Base(existing)}, rest...)
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{resolved}, rest...)...), nil
}
