package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	require.True(t, strings.HasPrefix(out.String(), "todo-mcp version=dev "))
}

func TestStdioCommandAnswersFromStdin(t *testing.T) {
	chdir(t, t.TempDir())
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(`{"jsonrpc":"2.0","id":"a","method":"list_records"}` + "\n"))
	cmd.SetArgs([]string{"stdio"})
	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), `"id":"a"`)
	require.Contains(t, out.String(), `"content"`)
}

func TestServeRejectsMissingConfigFile(t *testing.T) {
	chdir(t, t.TempDir())
	cmd := newRootCmd()
	cmd.SetArgs([]string{"serve", "--config", "does-not-exist.yaml"})
	require.Error(t, cmd.Execute())
}
