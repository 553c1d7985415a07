// Package graph renders the workflow state machine as a Mermaid flowchart.
package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/mintline/pkg/domain"
)

// GraphOverlay contains dynamic state data to visualize on the graph.
type GraphOverlay struct {
	Visited []domain.Stage
	Current domain.Stage
	// Failed marks the stage an ERROR workflow failed in.
	Failed domain.Stage
}

// OverlayFor highlights the path a workflow has taken.
func OverlayFor(state *domain.WorkflowState) *GraphOverlay {
	o := &GraphOverlay{
		Visited: state.History,
		Current: state.Stage,
		Failed:  -1,
	}
	if state.Stage == domain.StageError {
		o.Failed = state.FailedStage
	}
	return o
}

// GenerateMermaid produces a Mermaid flowchart from the declared transitions.
// It applies semantic styling:
// - IDLE: ((Circle))
// - SUCCESS: (((Double circle)))
// - ERROR: {{Hexagon}}
// - WAITING_FOR_TRUSTLINE: ([Stadium]), the only stage that waits on the ledger
// - Default: [Rectangle]
// Failures are dotted and retries dashed. The overlay, when given, styles the
// visited, current and failed stages.
func GenerateMermaid(edges []domain.Edge, overlay *GraphOverlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, stage := range domain.Stages() {
		opener, closer := "[", "]"
		switch stage {
		case domain.StageIdle:
			opener, closer = "((", "))"
		case domain.StageSuccess:
			opener, closer = "(((", ")))"
		case domain.StageError:
			opener, closer = "{{", "}}"
		case domain.StageWaitingForTrustline:
			opener, closer = "([", "])"
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", nodeID(stage), opener, stage, closer)
	}

	for _, e := range edges {
		arrow := fmt.Sprintf("-- \"%s\" -->", e.Event)
		switch {
		case e.Event == domain.EventFail:
			arrow = "-.->"
		case e.From == domain.StageError:
			arrow = fmt.Sprintf("-. \"%s\" .->", e.Event)
		}
		fmt.Fprintf(&sb, "    %s %s %s\n", nodeID(e.From), arrow, nodeID(e.To))
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")
		sb.WriteString("    classDef failed fill:#ffcdd2,stroke:#c62828,stroke-width:2px,color:#000;\n")

		seen := make(map[domain.Stage]bool)
		for _, stage := range overlay.Visited {
			if !seen[stage] && stage.Valid() {
				seen[stage] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", nodeID(stage))
			}
		}
		if overlay.Failed.Valid() {
			fmt.Fprintf(&sb, "    class %s failed;\n", nodeID(overlay.Failed))
		}
		if overlay.Current.Valid() {
			fmt.Fprintf(&sb, "    class %s current;\n", nodeID(overlay.Current))
		}
	}

	return sb.String()
}

// nodeID is the Mermaid-safe identifier of a stage.
func nodeID(s domain.Stage) string {
	return strings.ToLower(s.String())
}
