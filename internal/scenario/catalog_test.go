package scenario

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/osceprep/patientsim/internal/model"
)

func validDefinition() *model.ScenarioDefinition {
	return &model.ScenarioDefinition{
		ID:              "test",
		Title:           "Test scenario",
		DurationMinutes: 5,
		StartNodeID:     "a",
		Nodes: map[string]model.ScenarioNode{
			"a": {
				ID: "a",
				Transitions: []model.Transition{
					{Keywords: []string{"go"}, NextID: "b"},
				},
				FallbackNextID: "a",
			},
			"b": {ID: "b"},
		},
	}
}

func TestValidateOK(t *testing.T) {
	if err := Validate(validDefinition()); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*model.ScenarioDefinition)
		wantErr string
	}{
		{
			"missing start node",
			func(d *model.ScenarioDefinition) { d.StartNodeID = "nope" },
			"start node",
		},
		{
			"dangling transition target",
			func(d *model.ScenarioDefinition) {
				n := d.Nodes["a"]
				n.Transitions = []model.Transition{{Keywords: []string{"go"}, NextID: "missing"}}
				d.Nodes["a"] = n
			},
			"missing node",
		},
		{
			"dangling fallback",
			func(d *model.ScenarioDefinition) {
				n := d.Nodes["a"]
				n.FallbackNextID = "missing"
				d.Nodes["a"] = n
			},
			"fallback references missing node",
		},
		{
			"transition without keywords",
			func(d *model.ScenarioDefinition) {
				n := d.Nodes["a"]
				n.Transitions = []model.Transition{{NextID: "b"}}
				d.Nodes["a"] = n
			},
			"no keywords",
		},
		{
			"zero duration",
			func(d *model.ScenarioDefinition) { d.DurationMinutes = 0 },
			"duration",
		},
		{
			"no nodes",
			func(d *model.ScenarioDefinition) { d.Nodes = nil },
			"no nodes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := validDefinition()
			tt.mutate(def)
			err := Validate(def)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

// The shipped scenarios must themselves pass graph-integrity checks:
// every transition target and fallback resolves.
func TestLoadShippedScenarios(t *testing.T) {
	paths := []string{
		filepath.Join("..", "..", "scenarios", "chest_pain_id.json"),
		filepath.Join("..", "..", "scenarios", "asthma_en.json"),
	}
	c, err := Load(paths)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 scenarios, got %d", c.Len())
	}

	def, err := c.Get("chest-pain")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if def.StartNodeID != "intro" {
		t.Errorf("start node = %q, want intro", def.StartNodeID)
	}
	if def.Language != "id" {
		t.Errorf("language = %q, want id", def.Language)
	}
	// Node ids are backfilled from the map keys.
	if def.Nodes["history"].ID != "history" {
		t.Errorf("node id not backfilled: %+v", def.Nodes["history"])
	}

	// List is ordered by id.
	list := c.List()
	if list[0].ID != "asthma-exacerbation" || list[1].ID != "chest-pain" {
		t.Errorf("List order: %s, %s", list[0].ID, list[1].ID)
	}

	if _, err := c.Get("nope"); err == nil {
		t.Error("expected error for unknown scenario")
	}
}

func TestParseRejectsDanglingReference(t *testing.T) {
	data := []byte(`{
		"id": "bad",
		"duration_minutes": 5,
		"start_node": "a",
		"nodes": {
			"a": {
				"utterance": "hello",
				"transitions": [{"keywords": ["x"], "next_id": "ghost"}]
			}
		}
	}`)
	if _, err := Parse(data); err == nil {
		t.Fatal("expected error for dangling next_id")
	}
}
