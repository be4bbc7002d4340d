package engine

import (
	"strings"

	"github.com/osceprep/patientsim/internal/model"
)

// Evaluation is the outcome of matching one utterance against the
// current node's transitions.
type Evaluation struct {
	NextID   string
	Impact   model.Impact
	Matched  bool // a transition keyword matched
	Terminal bool // node has no transitions and no fallback
}

// Evaluate resolves one learner utterance on the dialogue graph.
//
// The utterance is lowercased and the current node's transitions are
// scanned in declared order; the first transition with any keyword
// substring match wins. On no match the node's fallback (or the node
// itself, if it has none) is returned with the unproductive impact.
// A terminal node never moves and never re-applies an impact: every
// further utterance is a no-op.
func Evaluate(def *model.ScenarioDefinition, nodeID, utterance string, unproductive model.Impact) Evaluation {
	node, ok := def.Nodes[nodeID]
	if !ok {
		// Unknown node ids cannot occur on a validated scenario; treat
		// defensively as terminal rather than panic mid-session.
		return Evaluation{NextID: nodeID, Terminal: true}
	}

	if node.Terminal() {
		return Evaluation{NextID: nodeID, Terminal: true}
	}

	lower := strings.ToLower(utterance)
	for _, tr := range node.Transitions {
		for _, kw := range tr.Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(kw)) {
				return Evaluation{NextID: tr.NextID, Impact: tr.Impact, Matched: true}
			}
		}
	}

	next := node.FallbackNextID
	if next == "" {
		next = nodeID
	}
	return Evaluation{NextID: next, Impact: unproductive}
}
