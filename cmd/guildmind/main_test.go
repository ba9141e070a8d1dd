package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/guildmind/plugin/ai/maintenance"
)

func TestSetupLogger(t *testing.T) {
	require.NoError(t, setupLogger("debug", "json"))
	require.NoError(t, setupLogger("warn", "text"))
	assert.Error(t, setupLogger("loud", "text"))
	assert.Error(t, setupLogger("info", "xml"))
}

func TestMaintainCommand(t *testing.T) {
	t.Setenv("GUILDMIND_AI_ENABLED", "false")
	dir := t.TempDir()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"maintain", "--data", dir, "--decay-days", "10", "--prune-threshold", "0.25"})
	require.NoError(t, rootCmd.Execute())

	var report maintenance.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &report), out.String())
	assert.NotEmpty(t, report.RunID)
	assert.Zero(t, report.ProfilesProcessed)
	assert.Empty(t, report.Errors)
}

func TestMaintainCommandFlags(t *testing.T) {
	t.Setenv("GUILDMIND_AI_ENABLED", "false")
	dir := t.TempDir()

	t.Run("zero prune threshold is honored", func(t *testing.T) {
		var out bytes.Buffer
		rootCmd.SetOut(&out)
		rootCmd.SetArgs([]string{"maintain", "--data", dir, "--prune-threshold", "0"})
		require.NoError(t, rootCmd.Execute())
		assert.Contains(t, out.String(), `"run_id"`)
	})

	t.Run("zero decay days is rejected", func(t *testing.T) {
		rootCmd.SetOut(&bytes.Buffer{})
		rootCmd.SetArgs([]string{"maintain", "--data", dir, "--decay-days", "0"})
		err := rootCmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--decay-days")
	})
}
