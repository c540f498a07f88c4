package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamscao/ealicense/internal/bot"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()

	accountID, ownerID, configPath = "", 0, ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestLicenseCommands(t *testing.T) {
	t.Setenv("LICENSE_DB_PATH", filepath.Join(t.TempDir(), "licenses.db"))

	assert.Contains(t, execute(t, "license", "list"), "No licenses found")
	assert.Equal(t, bot.ReplyNotFound+"\n", execute(t, "license", "check", "--account", "1001"))

	out := execute(t, "license", "issue", "--account", "1001", "--owner", "555")
	assert.Contains(t, out, "License issued successfully!")
	assert.Contains(t, out, "Key:      LC-1001-")

	assert.True(t, strings.HasPrefix(execute(t, "license", "check", "-a", "1001"), "Active license: LC-1001-"))

	list := execute(t, "license", "list")
	assert.Contains(t, list, "Total licenses: 1")
	assert.Contains(t, list, "1001")

	assert.Equal(t, bot.ReplyDeactivated+"\n", execute(t, "license", "revoke", "--account", "1001"))
	assert.Equal(t, bot.ReplyInvalid+"\n", execute(t, "license", "check", "--account", "1001"))
}

func TestTokenCommand(t *testing.T) {
	a := strings.TrimSpace(execute(t, "token"))
	b := strings.TrimSpace(execute(t, "token"))

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}
