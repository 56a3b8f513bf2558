package guardrail

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPathGuard(t *testing.T) (*PathGuard, string) {
	t.Helper()

	root := t.TempDir()
	for _, dir := range []string{DirAgents, DirMemory, DirLogs, DirWorkspace} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o700))
	}

	pg, err := NewPathGuard(DefaultPathPolicy(root))
	require.NoError(t, err)
	return pg, pg.Root()
}

func TestPathGuardCheck(t *testing.T) {
	pg, root := setupPathGuard(t)

	tests := []struct {
		name    string
		path    string
		allowed bool
	}{
		{"memory file", filepath.Join(root, "memory", "jarvis", "session.json"), true},
		{"allowed dir itself", filepath.Join(root, "workspace"), true},
		{"not yet existing nested file", filepath.Join(root, "workspace", "a", "b", "c.txt"), true},
		{"root itself", root, false},
		{"sibling of allowed dir", filepath.Join(root, "secrets.txt"), false},
		{"prefix lookalike", filepath.Join(root, "workspace2", "x"), false},
		{"traversal", filepath.Join(root, "workspace") + "/../../etc/passwd", false},
		{"backslash traversal", root + `/workspace/..\..\x`, false},
		{"traversal between allowed dirs", root + "/memory/../workspace/notes.txt", true},
		{"backslash traversal between allowed dirs", root + `/memory\..\workspace\notes.txt`, true},
		{"traversal into root", root + "/memory/../secrets.txt", false},
		{"traversal onto denied file", root + "/memory/../workspace/.env", false},
		{"system file", "/etc/passwd", false},
		{"dotenv under workspace", filepath.Join(root, "workspace", ".env"), false},
		{"ssh dir under workspace", filepath.Join(root, "workspace", ".ssh", "config"), false},
		{"private key file", filepath.Join(root, "workspace", "id_rsa"), false},
		{"pem uppercase", filepath.Join(root, "workspace", "SERVER.PEM"), false},
		{"dotenv suffix", filepath.Join(root, "workspace", "prod.env"), false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pg.Check(tt.path)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrPathDenied)
			}
			assert.Equal(t, tt.allowed, pg.Allowed(tt.path))
		})
	}
}

func TestPathGuardSymlinkEscape(t *testing.T) {
	pg, root := setupPathGuard(t)
	outside := t.TempDir()

	link := filepath.Join(root, "workspace", "escape")
	require.NoError(t, os.Symlink(outside, link))

	assert.False(t, pg.Allowed(filepath.Join(link, "loot.txt")))
	assert.False(t, pg.Allowed(link))
}

func TestPathGuardSymlinkInside(t *testing.T) {
	pg, root := setupPathGuard(t)

	link := filepath.Join(root, "workspace", "mem")
	require.NoError(t, os.Symlink(filepath.Join(root, "memory"), link))

	assert.True(t, pg.Allowed(filepath.Join(link, "jarvis", "session.json")))
}

func TestPathGuardRootUnderSensitiveLookingDir(t *testing.T) {
	root := filepath.Join(t.TempDir(), "dev", "project")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "memory"), 0o700))

	pg, err := NewPathGuard(DefaultPathPolicy(root))
	require.NoError(t, err)

	assert.True(t, pg.Allowed(filepath.Join(root, "memory", "x.json")))
}

func TestNewPathGuardRequiresRoot(t *testing.T) {
	_, err := NewPathGuard(PathPolicy{})
	assert.Error(t, err)
}

func TestHasTraversal(t *testing.T) {
	assert.True(t, hasTraversal("../x"))
	assert.True(t, hasTraversal(`a\..\b`))
	assert.True(t, hasTraversal("a/b/.."))
	assert.False(t, hasTraversal("a/..b/c"))
	assert.False(t, hasTraversal("a/b.c"))
}
