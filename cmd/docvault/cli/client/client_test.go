package client

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mwantia/docvault/pkg/vault"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupViper(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	viper.Reset()
	t.Cleanup(viper.Reset)

	viper.Set("storage.root", root)
	viper.Set("crypto.chunk_size", "64KiB")
	viper.Set("keystore.backends", []string{"file"})
	viper.Set("keystore.file_password", "test-password")
	viper.Set("log.level", "ERROR")
	return root
}

func run(t *testing.T, cmd *cobra.Command, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute(), buf.String())
	return buf.String()
}

func TestDocsLifecycle(t *testing.T) {
	setupViper(t)

	page := filepath.Join(t.TempDir(), "invoice.txt")
	require.NoError(t, os.WriteFile(page, []byte("total: 42 EUR"), 0o600))

	out := run(t, NewDocsCommand(), "add", page, "--title", "Invoice", "--ocr-text", "total 42")
	require.True(t, strings.HasPrefix(out, "Added "), out)
	id := strings.Fields(out)[1]

	out = run(t, NewDocsCommand(), "show", id)
	assert.Contains(t, out, "Invoice")
	assert.Contains(t, out, "completed")

	out = run(t, NewDocsCommand(), "search", "42")
	assert.Contains(t, out, id)

	exportDir := t.TempDir()
	run(t, NewDocsCommand(), "export", id, "--output", exportDir)
	data, err := os.ReadFile(filepath.Join(exportDir, id+"-1.txt"))
	require.NoError(t, err)
	assert.Equal(t, "total: 42 EUR", string(data))

	out = run(t, NewTagsCommand(), "add", "finance")
	tagID := strings.Trim(strings.Fields(out)[3], "()")
	out = run(t, NewDocsCommand(), "tag", id, "--add", tagID)
	assert.Contains(t, out, "finance")

	run(t, NewDocsCommand(), "rm", id)

	out = run(t, NewDocsCommand(), "ls")
	assert.Contains(t, out, "No documents")
}

func TestStorageCommands(t *testing.T) {
	setupViper(t)

	out := run(t, NewStorageCommand(), "info")
	assert.Contains(t, out, "Documents")

	out = run(t, NewStorageCommand(), "cleanup")
	assert.Contains(t, out, "Erased 0 temporary file(s)")

	out = run(t, NewStorageCommand(), "reconcile")
	assert.Contains(t, out, "Removed 0 orphan(s)")
}

func TestDocsCommand_MissingPageFails(t *testing.T) {
	setupViper(t)

	cmd := NewDocsCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"add", filepath.Join(t.TempDir(), "missing.jpg")})

	err := cmd.Execute()
	assert.ErrorIs(t, err, vault.ErrInvalidInput)
}

func TestOcrStatusValue(t *testing.T) {
	var status vault.OcrStatus
	v := (*ocrStatusValue)(&status)

	require.NoError(t, v.Set("processing"))
	assert.Equal(t, vault.OcrProcessing, status)
	assert.Error(t, v.Set("done"))
	assert.Equal(t, "processing", v.String())
}

func TestCopyFile_RefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("a"), 0o600))
	require.NoError(t, os.WriteFile(dst, []byte("b"), 0o600))

	assert.Error(t, copyFile(src, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))
}
