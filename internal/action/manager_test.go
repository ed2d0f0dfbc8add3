package action

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facewatch/facewatch/internal/logging"
)

func writeManifest(t *testing.T, root, dir, body string) {
	t.Helper()
	path := filepath.Join(root, dir)
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "plugin.json"), []byte(body), 0o644))
}

func TestManager_Discover(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "notify", `{"name":"notify","version":"1.0.0","executable":"notify","actions":["notify"]}`)
	writeManifest(t, root, "beeper", `{"name":"beeper","executable":"beep"}`)
	writeManifest(t, root, "broken", `{not json`)
	writeManifest(t, root, "unnamed", `{"executable":"run"}`)
	writeManifest(t, root, "noexec", `{"name":"noexec"}`)
	writeManifest(t, root, "escape", `{"name":"escape","executable":"../../bin/sh"}`)
	writeManifest(t, root, "notify2", `{"name":"notify","executable":"other"}`)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0o644))

	mgr := NewManager(root, logging.Discard())
	require.NoError(t, mgr.Discover())

	plugins := mgr.List()
	require.Len(t, plugins, 3)
	assert.Equal(t, "beeper", plugins[0].Manifest.Name)
	assert.Equal(t, "notify", plugins[1].Manifest.Name)
	assert.Equal(t, "unnamed", plugins[2].Manifest.Name, "name falls back to directory")

	notify, err := mgr.Get("notify")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "notify"), notify.Path)
	assert.Equal(t, filepath.Join(root, "notify", "notify"), notify.Executable, "first directory wins a name clash")

	for _, name := range []string{"broken", "noexec", "escape"} {
		_, err = mgr.Get(name)
		assert.ErrorIs(t, err, ErrPluginNotFound, name)
	}
}

func TestManager_Discover_Rescan(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "one", `{"name":"one","executable":"x"}`)

	mgr := NewManager(root, logging.Discard())
	require.NoError(t, mgr.Discover())
	require.Len(t, mgr.List(), 1)

	require.NoError(t, os.RemoveAll(filepath.Join(root, "one")))
	require.NoError(t, mgr.Discover())
	assert.Empty(t, mgr.List())
}

func TestManager_Discover_MissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nope")
	mgr := NewManager(dir, logging.Discard())

	assert.NoError(t, mgr.Discover())
	assert.Empty(t, mgr.List())
	assert.Equal(t, dir, mgr.PluginDir())
}

func TestManager_Discover_FileNotDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plugins")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	mgr := NewManager(file, logging.Discard())
	assert.NoError(t, mgr.Discover())
	assert.Empty(t, mgr.List())
}
