package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadPasswordFromPipe(t *testing.T) {
	got, err := readPassword(strings.NewReader("s3cret-pass\r\nignored\n"), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "s3cret-pass", got)
}

func TestReadPasswordWithoutNewline(t *testing.T) {
	got, err := readPassword(strings.NewReader("lastline"), &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "lastline", got)
}

func TestReadPasswordEmpty(t *testing.T) {
	_, err := readPassword(strings.NewReader("\n"), &bytes.Buffer{})
	assert.Error(t, err)
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"migrate", "create-user", "bootstrap-admin"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestCreateUserRejectsUnknownRole(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"create-user", "--username", "alice", "--role", "owner"})
	root.SetIn(strings.NewReader("password123\n"))
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--role")
}
