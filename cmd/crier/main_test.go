package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crier "github.com/matthewjhunter/crier"
	"github.com/matthewjhunter/crier/internal/config"
	"github.com/matthewjhunter/crier/internal/engagement"
	"github.com/matthewjhunter/crier/internal/scheduler"
)

// run executes the CLI against a config in dir and returns stdout.
func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	root := rootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config", cfgPath, "--tenant", "t1", "--format", "json"}, args...))
	err := root.Execute()
	return out.String(), err
}

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	c := config.Default()
	c.Database.Path = filepath.Join(dir, "crier.db")
	path := filepath.Join(dir, "crier.yaml")
	require.NoError(t, c.Save(path))
	return path
}

func TestQueueLifecycleThroughCLI(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := run(t, cfgPath, "queue", "add", "--platform", "x", "hello from the cli")
	require.NoError(t, err)
	var item crier.QueueItem
	require.NoError(t, json.Unmarshal([]byte(out), &item))
	assert.Equal(t, crier.StatusPending, item.Status)

	out, err = run(t, cfgPath, "queue", "list", "--status", "pending")
	require.NoError(t, err)
	var items []crier.QueueItem
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 1)

	_, err = run(t, cfgPath, "queue", "approve", "1")
	require.NoError(t, err)

	// No credential is stored, so the flush fails the item without any
	// network call.
	out, err = run(t, cfgPath, "tick", "queue_flush")
	require.NoError(t, err)
	var summary map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, float64(1), summary["due"])
	assert.Equal(t, float64(1), summary["failed"])

	out, err = run(t, cfgPath, "queue", "list", "--status", "failed")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	assert.Len(t, items, 1)
}

func TestCLIRejectsBadInput(t *testing.T) {
	cfgPath := writeConfig(t)

	_, err := run(t, cfgPath, "queue", "approve", "abc")
	assert.ErrorContains(t, err, "invalid id")

	_, err = run(t, cfgPath, "tick", "hourly")
	assert.ErrorIs(t, err, crier.ErrInvalid)

	_, err = run(t, cfgPath, "config", "set", "--frequency", "sometimes")
	assert.ErrorIs(t, err, crier.ErrInvalid)

	_, err = run(t, cfgPath, "generate", "--platform", "x", "--context", "novalue")
	assert.ErrorContains(t, err, "key=value")
}

func TestConfigSetThroughCLI(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := run(t, cfgPath, "config", "set", "--enable", "--max-per-day", "5", "--approval", "off", "--types", "educational,announcement")
	require.NoError(t, err)
	var ac crier.AutonomyConfig
	require.NoError(t, json.Unmarshal([]byte(out), &ac))
	assert.True(t, ac.Enabled)
	assert.False(t, ac.RequireApproval)
	assert.Equal(t, 5, ac.MaxPostsPerDay)
	assert.Equal(t, []string{"educational", "announcement"}, ac.AllowedContentTypes)
}

func TestSummarize(t *testing.T) {
	t.Run("auto publish", func(t *testing.T) {
		s := summarize(&crier.TickReport{
			Kind:     scheduler.KindAutoPublish,
			Duration: time.Second,
			AutoPublish: &scheduler.AutoPublishResult{Tenants: []scheduler.TenantResult{
				{TenantID: "a", Posted: 2},
				{TenantID: "b", Failed: 1, Results: []scheduler.DispatchResult{{Outcome: scheduler.OutcomeFailed, Error: "rate limited"}}},
				{TenantID: "c", Skipped: "daily cap reached"},
			}},
		})
		assert.Equal(t, 3, s.Tenants)
		assert.Equal(t, 2, s.Posted)
		assert.Equal(t, 1, s.Failed)
		assert.Equal(t, 1, s.Skipped)
		assert.Equal(t, []string{"b: rate limited"}, s.Errors)
	})

	t.Run("flush", func(t *testing.T) {
		s := summarize(&crier.TickReport{
			Kind:  scheduler.KindQueueFlush,
			Flush: &scheduler.FlushResult{Due: 4, Posted: 2, Failed: 1, Skipped: 1},
		})
		assert.Equal(t, 4, s.Due)
		assert.Equal(t, 2, s.Posted)
		assert.Empty(t, s.Errors)
	})

	t.Run("engagement", func(t *testing.T) {
		s := summarize(&crier.TickReport{
			Kind:       scheduler.KindEngagement,
			Engagement: &engagement.Result{Considered: 6, Updated: 3, Unavailable: 1, Unsupported: 1, Disconnected: 1},
		})
		assert.Equal(t, 6, s.Due)
		assert.Equal(t, 3, s.Updated)
		assert.Equal(t, 3, s.Skipped)
	})
}
