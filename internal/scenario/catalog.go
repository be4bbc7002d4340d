// Package scenario loads and validates scenario definitions. Scenarios
// are loaded wholesale from JSON files at startup; a definition with
// dangling node references is rejected there rather than failing
// mid-session.
package scenario

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/osceprep/patientsim/internal/model"
)

// Catalog is the static set of loaded scenario definitions.
type Catalog struct {
	byID map[string]*model.ScenarioDefinition
}

// New builds a catalog from already parsed definitions.
func New(defs ...*model.ScenarioDefinition) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]*model.ScenarioDefinition, len(defs))}
	for _, def := range defs {
		if err := Validate(def); err != nil {
			return nil, err
		}
		if _, dup := c.byID[def.ID]; dup {
			return nil, fmt.Errorf("duplicate scenario id %q", def.ID)
		}
		c.byID[def.ID] = def
	}
	return c, nil
}

// Load reads and validates every scenario file. A file that fails to
// parse or validate rejects the whole load; partially valid catalogs
// are not served.
func Load(paths []string) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]*model.ScenarioDefinition)}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		def, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		if _, dup := c.byID[def.ID]; dup {
			return nil, fmt.Errorf("load %s: duplicate scenario id %q", path, def.ID)
		}
		c.byID[def.ID] = def
		slog.Info("loaded scenario", "path", path, "id", def.ID, "nodes", len(def.Nodes))
	}
	return c, nil
}

// Parse decodes and validates a single scenario definition.
func Parse(data []byte) (*model.ScenarioDefinition, error) {
	var def model.ScenarioDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	// Node ids live in the map keys; backfill the struct field so both
	// access paths agree.
	for id, node := range def.Nodes {
		node.ID = id
		def.Nodes[id] = node
	}
	if err := Validate(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks graph integrity: the start node and every id
// referenced by a transition or fallback must exist in the node set.
func Validate(def *model.ScenarioDefinition) error {
	if def.ID == "" {
		return fmt.Errorf("scenario is missing an id")
	}
	if def.DurationMinutes <= 0 {
		return fmt.Errorf("scenario %s: duration must be positive", def.ID)
	}
	if len(def.Nodes) == 0 {
		return fmt.Errorf("scenario %s: no nodes", def.ID)
	}
	if _, ok := def.Nodes[def.StartNodeID]; !ok {
		return fmt.Errorf("scenario %s: start node %q does not exist", def.ID, def.StartNodeID)
	}
	for id, node := range def.Nodes {
		for i, tr := range node.Transitions {
			if tr.NextID == "" {
				return fmt.Errorf("scenario %s: node %s transition %d has no next_id", def.ID, id, i)
			}
			if _, ok := def.Nodes[tr.NextID]; !ok {
				return fmt.Errorf("scenario %s: node %s transition %d references missing node %q", def.ID, id, i, tr.NextID)
			}
			if len(tr.Keywords) == 0 {
				return fmt.Errorf("scenario %s: node %s transition %d has no keywords", def.ID, id, i)
			}
		}
		if node.FallbackNextID != "" {
			if _, ok := def.Nodes[node.FallbackNextID]; !ok {
				return fmt.Errorf("scenario %s: node %s fallback references missing node %q", def.ID, id, node.FallbackNextID)
			}
		}
	}
	return nil
}

// Get returns a scenario by id.
func (c *Catalog) Get(id string) (*model.ScenarioDefinition, error) {
	def, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("unknown scenario %q", id)
	}
	return def, nil
}

// List returns all scenarios ordered by id.
func (c *Catalog) List() []*model.ScenarioDefinition {
	out := make([]*model.ScenarioDefinition, 0, len(c.byID))
	for _, def := range c.byID {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of loaded scenarios.
func (c *Catalog) Len() int {
	return len(c.byID)
}
