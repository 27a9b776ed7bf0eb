package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/skydoves/firebase-android-ktx/database/memdb"
	"gopkg.in/yaml.v3"
)

// Fixture seeds a database and lists writes to replay against it.
//
//	seed:
//	  rooms:
//	    lobby: {title: Lobby}
//	steps:
//	  - op: set
//	    path: rooms/lobby/title
//	    value: Main hall
//	  - op: deny
//	    path: rooms
type Fixture struct {
	Seed  map[string]any `yaml:"seed"`
	Steps []Step         `yaml:"steps"`
}

// Step is one replayed write. Op is one of set, update, remove, push or deny.
type Step struct {
	Op     string         `yaml:"op"`
	Path   string         `yaml:"path"`
	Value  any            `yaml:"value,omitempty"`
	Values map[string]any `yaml:"values,omitempty"`
}

// LoadFixture reads a fixture file. An empty path yields an empty fixture.
func LoadFixture(path string) (*Fixture, error) {
	if path == "" {
		return &Fixture{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading fixture: %w", err)
	}
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parsing fixture %s: %w", path, err)
	}
	for i, step := range fx.Steps {
		switch step.Op {
		case "set", "update", "remove", "push", "deny":
		default:
			return nil, fmt.Errorf("fixture step %d: unknown op %q", i+1, step.Op)
		}
	}
	return &fx, nil
}

// replayer applies fixture steps to a DB.
type replayer struct {
	db     *memdb.DB
	denied []string
}

// openFixtureDB creates a DB holding the fixture's seed.
func openFixtureDB(fx *Fixture, logger *slog.Logger) (*replayer, error) {
	db := memdb.New(memdb.WithLogger(logger))
	if fx.Seed != nil {
		if err := db.Reference("").Set(fx.Seed); err != nil {
			db.Close()
			return nil, fmt.Errorf("seeding database: %w", err)
		}
	}
	return &replayer{db: db}, nil
}

func (r *replayer) apply(step Step) error {
	ref := r.db.Reference(step.Path)
	switch step.Op {
	case "set":
		return ref.Set(step.Value)
	case "update":
		return ref.Update(step.Values)
	case "remove":
		return ref.Remove()
	case "push":
		_, err := ref.Push(step.Value)
		return err
	case "deny":
		r.denied = append(r.denied, step.Path)
		r.db.SetReadRule(memdb.Deny(r.denied...))
		return nil
	}
	return fmt.Errorf("unknown op %q", step.Op)
}

func (r *replayer) replay(steps []Step) error {
	for i, step := range steps {
		if err := r.apply(step); err != nil {
			return fmt.Errorf("step %d (%s %s): %w", i+1, step.Op, step.Path, err)
		}
	}
	return nil
}
