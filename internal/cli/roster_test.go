package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintRoster(t *testing.T) {
	out := &bytes.Buffer{}
	require.NoError(t, printRoster(out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 11)
	assert.Regexp(t, `^jarvis\s+Squad Lead\s+\+0s`, lines[1])
	assert.Regexp(t, `^wong\s+Documentation\s+\+3m0s`, lines[10])
}

func TestInitCommand(t *testing.T) {
	root := t.TempDir()
	t.Setenv("MC_ROOT", root)
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-REDACTED")

	cmd := GetRootCmd()
	cmd.SetArgs([]string{"init"})
	output := &bytes.Buffer{}
	cmd.SetOut(output)
	require.NoError(t, cmd.Execute())

	for _, dir := range []string{"agents", "memory", "logs", "workspace"} {
		assert.DirExists(t, filepath.Join(root, dir))
	}

	data, err := os.ReadFile(filepath.Join(root, "mission-control.json"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sk-ant-")

	cmd.SetArgs([]string{"init"})
	output.Reset()
	require.NoError(t, cmd.Execute())
	assert.Contains(t, output.String(), "already exists")
}
