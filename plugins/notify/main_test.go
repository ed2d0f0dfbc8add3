package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	name string
	args []string
}

func recorder(calls *[]call, err error) func(string, ...string) error {
	return func(name string, args ...string) error {
		*calls = append(*calls, call{name, args})
		return err
	}
}

func TestHandle(t *testing.T) {
	var calls []call
	resp := handle(strings.NewReader(`{"action":"notify","expression":"Smiling","config":{"title":"Hey","message":"You are {expression}"}}`),
		recorder(&calls, nil))

	require.True(t, resp.Success, resp.Error)
	assert.JSONEq(t, `{"title":"Hey","message":"You are Smiling"}`, string(resp.Data))
	require.Len(t, calls, 1)
}

func TestHandle_Defaults(t *testing.T) {
	var calls []call
	resp := handle(strings.NewReader(`{"action":"notify","expression":"Tongue Out"}`), recorder(&calls, nil))

	require.True(t, resp.Success, resp.Error)
	assert.JSONEq(t, `{"title":"FaceWatch","message":"Tongue Out"}`, string(resp.Data))
}

func TestHandle_Failures(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		err     error
		wantErr string
	}{
		{"bad request", `{`, nil, "failed to decode request"},
		{"unknown action", `{"action":"shout"}`, nil, "unknown action: shout"},
		{"bad config", `{"action":"notify","config":{"title":7}}`, nil, "failed to parse config"},
		{"notifier fails", `{"action":"notify","expression":"Smiling"}`, errors.New("no display"), "action notify failed: no display"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []call
			resp := handle(strings.NewReader(tt.input), recorder(&calls, tt.err))
			assert.False(t, resp.Success)
			assert.Contains(t, resp.Error, tt.wantErr)
		})
	}
}

func TestNotifierCommand(t *testing.T) {
	name, args := notifierCommand("darwin", `Say "hi"`, "Smiling", "Ping")
	assert.Equal(t, "osascript", name)
	assert.Equal(t, []string{"-e", `display notification "Smiling" with title "Say \"hi\"" sound name "Ping"`}, args)

	name, args = notifierCommand("linux", "FaceWatch", "Smiling", "")
	assert.Equal(t, "notify-send", name)
	assert.Equal(t, []string{"FaceWatch", "Smiling"}, args)
}
