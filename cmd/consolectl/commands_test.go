package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://nobody@127.0.0.1:1/none")

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestRootListsSubcommands(t *testing.T) {
	cmd := newRootCmd()
	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"migrate", "seed-admin", "create-user", "prune-tokens"} {
		assert.True(t, names[want], want)
	}
}

func TestCreateUser_RequiresFlags(t *testing.T) {
	_, err := execute(t, "create-user", "--email", "a@b.co")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password")
}

func TestCreateUser_ValidatesBeforeConnecting(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad email", []string{"--email", "nope", "--name", "Ann", "--password", "longenough"}, "--email"},
		{"short password", []string{"--email", "a@b.co", "--name", "Ann", "--password", "short"}, "--password"},
		{"bad role", []string{"--email", "a@b.co", "--name", "Ann", "--password", "longenough", "--role", "owner"}, "--role"},
		{"missing name", []string{"--email", "a@b.co", "--password", "longenough"}, "--name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, append([]string{"create-user"}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMigrate_RejectsArgs(t *testing.T) {
	_, err := execute(t, "migrate", "extra")
	require.Error(t, err)
}
