package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		cmd := GetRootCmd()
		cmd.SetArgs([]string{"stop", "--help"})

		output := &bytes.Buffer{}
		cmd.SetOut(output)

		err := cmd.Execute()
		require.NoError(t, err)

		helpText := output.String()
		assert.Contains(t, helpText, "Stop a running Mission Control scheduler")
		assert.Contains(t, helpText, "timeout")
	})

	t.Run("not running", func(t *testing.T) {
		root := t.TempDir()
		t.Setenv("MC_ROOT", root)

		cmd := GetRootCmd()
		cmd.SetArgs([]string{"stop"})
		output := &bytes.Buffer{}
		cmd.SetOut(output)

		require.NoError(t, cmd.Execute())
		assert.Contains(t, output.String(), "not running")
	})
}
