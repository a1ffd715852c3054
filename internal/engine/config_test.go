package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "LightBTS", cfg.Project)
	assert.Empty(t, cfg.Admin)
	assert.Equal(t, filepath.Join(dir, "hooks"), cfg.HooksDir)
	assert.True(t, cfg.RespondToNew)
	assert.True(t, cfg.RespondToReply)
	assert.False(t, cfg.Quiet)
	assert.Equal(t, "localhost", cfg.SMTPHost)
	assert.Contains(t, cfg.EmailAddress, "@")
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	content := `[core]
project = Demo Tracker
admin = admin@example.com
respond-to-new = false
quiet = true

[email]
address = bugs@example.com
smtphost = mail.example.com:587
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte(content), 0o644))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)

	assert.Equal(t, "Demo Tracker", cfg.Project)
	assert.Equal(t, "admin@example.com", cfg.Admin)
	assert.False(t, cfg.RespondToNew)
	assert.True(t, cfg.RespondToReply, "unset keys keep their defaults")
	assert.True(t, cfg.Quiet)
	assert.Equal(t, "bugs@example.com", cfg.EmailAddress)
	assert.Equal(t, "mail.example.com:587", cfg.SMTPHost)
}

func TestWriteDefaultConfig(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "instance")

	require.NoError(t, WriteDefaultConfig(dir, "Demo", "admin@example.com"))

	cfg, err := LoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "Demo", cfg.Project)
	assert.Equal(t, "admin@example.com", cfg.Admin)

	// A second init must not clobber an existing configuration.
	err = WriteDefaultConfig(dir, "Other", "")
	assert.Error(t, err)
}

func TestInit_CreatesWorkingInstance(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "instance")

	require.NoError(t, Init(dir, "Demo", ""))

	for _, name := range []string{ConfigFile, IndexFile, StoreDir} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	ins, err := Open(dir, Options{Quiet: true, NoHooks: true})
	require.NoError(t, err)
	assert.Equal(t, "Demo", ins.Config.Project)
	require.NoError(t, ins.Close())
}
