package action

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// ManifestFile is the file that marks a directory as a plugin.
const ManifestFile = "plugin.json"

// ErrPluginNotFound is returned by Get for names that were not discovered.
var ErrPluginNotFound = errors.New("plugin not found")

// Manager holds the plugins found under one directory.
type Manager struct {
	dir string
	log *logrus.Entry

	mu      sync.RWMutex
	plugins map[string]*Plugin
}

// NewManager returns a Manager for dir. Nothing is loaded until Discover.
func NewManager(dir string, logger *logrus.Logger) *Manager {
	return &Manager{
		dir:     dir,
		log:     logger.WithField("component", "plugins"),
		plugins: map[string]*Plugin{},
	}
}

// Discover rescans the directory and replaces the known plugin set. A
// missing directory yields no plugins; a broken plugin is logged and skipped.
func (m *Manager) Discover() error {
	found, err := m.scan()
	if err != nil {
		return fmt.Errorf("discover plugins in %s: %w", m.dir, err)
	}

	m.mu.Lock()
	m.plugins = found
	m.mu.Unlock()

	m.log.WithField("count", len(found)).Info("plugins discovered")
	return nil
}

func (m *Manager) scan() (map[string]*Plugin, error) {
	found := map[string]*Plugin{}

	entries, err := os.ReadDir(m.dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return found, nil
	case err != nil:
		// A plain file where the directory should be is treated as empty.
		if info, statErr := os.Stat(m.dir); statErr == nil && !info.IsDir() {
			return found, nil
		}
		return nil, err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		p, err := loadPlugin(filepath.Join(m.dir, entry.Name()))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			m.log.WithError(err).WithField("dir", entry.Name()).Warn("skipping plugin")
			continue
		}
		if _, dup := found[p.Manifest.Name]; dup {
			m.log.WithField("plugin", p.Manifest.Name).Warn("duplicate plugin name, keeping first")
			continue
		}
		found[p.Manifest.Name] = p
	}

	return found, nil
}

// loadPlugin reads the manifest in dir. The plugin name defaults to the
// directory name and the executable must live inside dir.
func loadPlugin(dir string) (*Plugin, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if manifest.Name == "" {
		manifest.Name = filepath.Base(dir)
	}
	if manifest.Executable == "" {
		return nil, errors.New("manifest has no executable")
	}

	exe := filepath.Join(dir, manifest.Executable)
	if rel, err := filepath.Rel(dir, exe); err != nil || strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("executable %q escapes plugin directory", manifest.Executable)
	}

	return &Plugin{Manifest: manifest, Path: dir, Executable: exe}, nil
}

// Get returns the named plugin.
func (m *Manager) Get(name string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.plugins[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
}

// List returns the discovered plugins ordered by name.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	out := make([]*Plugin, 0, len(m.plugins))
	for _, p := range m.plugins {
		out = append(out, p)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Manifest.Name < out[j].Manifest.Name })
	return out
}

func (m *Manager) PluginDir() string {
	return m.dir
}
