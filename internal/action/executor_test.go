package action

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScriptPlugin creates a shell-script plugin in a temp dir.
func writeScriptPlugin(t *testing.T, name, script string, actions ...string) *Plugin {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	dir := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	exe := filepath.Join(dir, "run.sh")
	require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"+script), 0o755))

	manifest := Manifest{Name: name, Version: "1.0.0", Executable: "run.sh", Actions: actions}
	data, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plugin.json"), data, 0o644))

	return &Plugin{Manifest: manifest, Path: dir, Executable: exe}
}

func TestExecutor_Execute(t *testing.T) {
	plugin := writeScriptPlugin(t, "hello", `echo '{"success":true,"data":{"message":"hello world"}}'`+"\n")

	resp, err := NewExecutor(5*time.Second).Execute(context.Background(), plugin, &Request{
		Action:     "notify",
		Expression: "Smiling",
		Config:     json.RawMessage(`{"key":"value"}`),
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.Empty(t, resp.Error)
	assert.JSONEq(t, `{"message":"hello world"}`, string(resp.Data))
}

func TestExecutor_Execute_ReadsStdin(t *testing.T) {
	// Echo the request back inside the data field.
	plugin := writeScriptPlugin(t, "echo", `printf '{"success":true,"data":'; cat; printf '}'`+"\n")

	req := &Request{
		Action:     "notify",
		Expression: "Tongue Out",
		SessionID:  "s1",
		Config:     json.RawMessage(`{}`),
		Sample:     map[string]float64{"tongueOut": 0.7},
	}

	resp, err := NewExecutor(5*time.Second).Execute(context.Background(), plugin, req)
	require.NoError(t, err)

	var echoed Request
	require.NoError(t, json.Unmarshal(resp.Data, &echoed))
	assert.Equal(t, "Tongue Out", echoed.Expression)
	assert.Equal(t, "s1", echoed.SessionID)
	assert.Equal(t, 0.7, echoed.Sample["tongueOut"])
}

func TestExecutor_Timeout(t *testing.T) {
	plugin := writeScriptPlugin(t, "slow", "exec sleep 5\n")

	start := time.Now()
	_, err := NewExecutor(100*time.Millisecond).Execute(context.Background(), plugin, &Request{})
	assert.ErrorContains(t, err, "timed out")
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestExecutor_ContextCanceled(t *testing.T) {
	plugin := writeScriptPlugin(t, "slow", "exec sleep 5\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExecutor(5*time.Second).Execute(ctx, plugin, &Request{})
	assert.Error(t, err)
}

func TestExecutor_Execute_Failures(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		wantErr string
	}{
		{"invalid json", "echo not-json\n", "parse plugin response"},
		{"non-zero exit", "echo broken >&2\nexit 3\n", "broken"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plugin := writeScriptPlugin(t, "bad", tt.script)
			_, err := NewExecutor(5*time.Second).Execute(context.Background(), plugin, &Request{})
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestExecutor_Execute_ErrorResponse(t *testing.T) {
	plugin := writeScriptPlugin(t, "refuse", `echo '{"success":false,"error":"unknown action"}'`+"\n")

	resp, err := NewExecutor(5*time.Second).Execute(context.Background(), plugin, &Request{})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "unknown action", resp.Error)
}

func TestNewExecutor(t *testing.T) {
	assert.Equal(t, 5*time.Second, NewExecutor(0).Timeout())
	assert.Equal(t, time.Second, NewExecutor(time.Second).Timeout())
}

func TestManifest_Supports(t *testing.T) {
	assert.True(t, Manifest{}.Supports("anything"))
	assert.True(t, Manifest{Actions: []string{"a", "b"}}.Supports("b"))
	assert.False(t, Manifest{Actions: []string{"a"}}.Supports("b"))
}
