// Package main provides a desktop notification plugin.
// It posts a notification when a bound expression starts.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Request represents the input from the plugin executor.
type Request struct {
	Action      string             `json:"action"`
	Expression  string             `json:"expression"`
	SessionID   string             `json:"session_id"`
	Config      json.RawMessage    `json:"config"`
	BlendShapes map[string]float64 `json:"blend_shapes"`
}

// Response represents the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NotifyConfig is the binding configuration for the notify action.
// Title and Message may contain {expression}.
type NotifyConfig struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Sound   string `json:"sound"`
}

func main() {
	resp := handle(os.Stdin, runNotifier)
	json.NewEncoder(os.Stdout).Encode(resp)
}

// handle decodes one request from r and runs it with notify.
func handle(r io.Reader, notify func(name string, args ...string) error) Response {
	var req Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return Response{Error: fmt.Sprintf("failed to decode request: %v", err)}
	}

	if req.Action != "notify" {
		return Response{Error: fmt.Sprintf("unknown action: %s", req.Action)}
	}

	cfg, err := parseConfig(req.Config)
	if err != nil {
		return Response{Error: err.Error()}
	}

	title := expand(cfg.Title, req.Expression)
	message := expand(cfg.Message, req.Expression)

	name, args := notifierCommand(runtime.GOOS, title, message, cfg.Sound)
	if err := notify(name, args...); err != nil {
		return Response{Error: fmt.Sprintf("action %s failed: %v", req.Action, err)}
	}

	data, _ := json.Marshal(map[string]string{"title": title, "message": message})
	return Response{Success: true, Data: data}
}

func parseConfig(raw json.RawMessage) (NotifyConfig, error) {
	cfg := NotifyConfig{Title: "FaceWatch", Message: "{expression}"}
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Title == "" {
		cfg.Title = "FaceWatch"
	}
	if cfg.Message == "" {
		cfg.Message = "{expression}"
	}
	return cfg, nil
}

func expand(tmpl, expr string) string {
	return strings.ReplaceAll(tmpl, "{expression}", expr)
}

// notifierCommand builds the platform command that shows a notification.
func notifierCommand(goos, title, message, sound string) (string, []string) {
	if goos == "darwin" {
		script := fmt.Sprintf(`display notification "%s" with title "%s"`, quoteAppleScript(message), quoteAppleScript(title))
		if sound != "" {
			script += fmt.Sprintf(` sound name "%s"`, quoteAppleScript(sound))
		}
		return "osascript", []string{"-e", script}
	}
	return "notify-send", []string{title, message}
}

// quoteAppleScript escapes a value for use inside an AppleScript string literal.
func quoteAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

func runNotifier(name string, args ...string) error {
	output, err := exec.Command(name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, string(output))
	}
	return nil
}
