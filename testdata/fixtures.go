// Package testdata holds recorded blend shape frames for tests.
package testdata

import (
	"embed"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/facewatch/facewatch/internal/expression"
)

//go:embed samples/*.json
var samplesFS embed.FS

// Fixture is one recorded frame and the expressions it should produce.
type Fixture struct {
	Name        string
	BlendShapes map[string]float64 `json:"blend_shapes"`
	Expect      []string           `json:"expect"`
}

// Sample returns the fixture's coefficients as a classifier sample.
func (f Fixture) Sample() expression.Sample {
	return expression.ParseSample(f.BlendShapes)
}

// LoadFixture loads a fixture by name, without the .json suffix.
func LoadFixture(name string) (Fixture, error) {
	data, err := samplesFS.ReadFile("samples/" + name + ".json")
	if err != nil {
		return Fixture{}, fmt.Errorf("load fixture %s: %w", name, err)
	}

	f := Fixture{Name: name}
	if err := json.Unmarshal(data, &f); err != nil {
		return Fixture{}, fmt.Errorf("decode fixture %s: %w", name, err)
	}
	if f.Expect == nil {
		f.Expect = []string{}
	}

	return f, nil
}

// LoadAll loads every fixture, sorted by name.
func LoadAll() ([]Fixture, error) {
	entries, err := samplesFS.ReadDir("samples")
	if err != nil {
		return nil, err
	}

	var fixtures []Fixture
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		f, err := LoadFixture(strings.TrimSuffix(entry.Name(), path.Ext(entry.Name())))
		if err != nil {
			return nil, err
		}
		fixtures = append(fixtures, f)
	}

	sort.Slice(fixtures, func(i, j int) bool { return fixtures[i].Name < fixtures[j].Name })
	return fixtures, nil
}
