package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCommand(t *testing.T) {
	root := NewRootCommand()

	assert.Equal(t, "prism", root.Name)
	assert.NotNil(t, root.Flags)

	expectedCommands := []string{"plan", "resolve", "prune", "watch", "stats"}
	for _, cmdName := range expectedCommands {
		require.Contains(t, root.Subcommands, cmdName)
		sub := root.Subcommands[cmdName]
		assert.Equal(t, cmdName, sub.Name)
		assert.NotEmpty(t, sub.Description)
		assert.NotNil(t, sub.Run)
		assert.NotNil(t, sub.Flags)
	}
	assert.Len(t, root.Subcommands, len(expectedCommands))
}

func TestCommandUsage(t *testing.T) {
	out, _ := captureOutput(t)

	require.NoError(t, NewRootCommand().ExecuteArgs(nil))

	output := out.String()
	assert.Contains(t, output, "Usage: prism <command> [args]")
	assert.Contains(t, output, "Commands:")
	for _, name := range []string{"plan", "prune", "resolve", "stats", "watch"} {
		assert.Contains(t, output, name)
	}
	assert.Less(t, strings.Index(output, "  plan"), strings.Index(output, "  watch"), "commands are sorted")
}

func TestCommandExecute_Help(t *testing.T) {
	for _, arg := range []string{"-h", "--help", "help"} {
		out, _ := captureOutput(t)
		require.NoError(t, NewRootCommand().ExecuteArgs([]string{arg}))
		assert.Contains(t, out.String(), "Usage: prism")
	}
}

func TestCommandExecute_UnknownCommand(t *testing.T) {
	err := NewRootCommand().ExecuteArgs([]string{"bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command: bogus")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList(" a, ,b ,"))
	assert.Nil(t, splitList(""))
}
