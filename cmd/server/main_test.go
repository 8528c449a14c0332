package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutesCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"routes"})

	require.NoError(t, cmd.Execute())

	text := out.String()
	assert.Contains(t, text, "PATH")
	assert.Regexp(t, `/editor\s+editor\s+authenticated\s+main`, text)
	assert.Regexp(t, `/login\s+login\s+guest\s+bare`, text)
	assert.Regexp(t, `\*\s+notfound\s+public\s+bare`, text)
}

func TestRoutesCommand_RejectsArgs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"routes", "extra"})

	assert.Error(t, cmd.Execute())
}
