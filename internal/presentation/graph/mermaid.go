package graph

import (
	"fmt"
	"strings"

	"github.com/CentralLabFacilities/bonsai-sub000/pkg/domain"
)

// Overlay contains runtime data to highlight on the graph.
type Overlay struct {
	Visited []string
	Active  []string
}

// GenerateMermaid produces a Mermaid flowchart of a composed document.
// Compound and parallel states become subgraphs; simple states use shapes:
//   - terminal (End, Fatal, final): ((Circle))
//   - skill state: [Rectangle]
//
// Transitions are labelled with their event descriptors and condition.
func GenerateMermaid(doc *domain.Document, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	if doc.Initial != "" {
		fmt.Fprintf(&sb, "    __start((start)) --> %s\n", sanitizeMermaidID(doc.Initial))
	}
	for _, root := range doc.Roots {
		writeState(&sb, doc, root, 1)
	}
	for i := range doc.States {
		writeTransitions(&sb, &doc.States[i])
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef active fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		seen := make(map[string]bool)
		for _, id := range overlay.Visited {
			safeID := sanitizeMermaidID(id)
			if safeID != "" && !seen[safeID] {
				seen[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}
		for _, id := range overlay.Active {
			if i, ok := doc.Lookup(id); ok && doc.IsSimple(i) {
				fmt.Fprintf(&sb, "    class %s active;\n", sanitizeMermaidID(id))
			}
		}
	}
	return sb.String()
}

func writeState(sb *strings.Builder, doc *domain.Document, i domain.StateIndex, depth int) {
	state := doc.State(i)
	indent := strings.Repeat("    ", depth)
	safeID := sanitizeMermaidID(state.ID)

	if len(state.Children) > 0 {
		label := state.ID
		if state.Kind == domain.KindParallel {
			label += " (parallel)"
		}
		fmt.Fprintf(sb, "%ssubgraph %s[\"%s\"]\n", indent, safeID, label)
		for _, child := range state.Children {
			writeState(sb, doc, child, depth+1)
		}
		fmt.Fprintf(sb, "%send\n", indent)
		return
	}

	opener, closer := "[", "]"
	if state.Kind == domain.KindFinal || domain.IsTerminalSkill(domain.SkillName(state.ID)) {
		opener, closer = "((", "))"
	}
	fmt.Fprintf(sb, "%s%s%s\"%s\"%s\n", indent, safeID, opener, state.ID, closer)
}

func writeTransitions(sb *strings.Builder, state *domain.StateNode) {
	from := sanitizeMermaidID(state.ID)
	for _, t := range state.Transitions {
		if t.Target == "" {
			continue
		}
		label := strings.Join(t.Descriptors(), " ")
		if t.Cond != "" {
			label += " [" + t.Cond + "]"
		}
		label = strings.ReplaceAll(label, "\"", "'")
		if label == "" {
			fmt.Fprintf(sb, "    %s --> %s\n", from, sanitizeMermaidID(t.Target))
			continue
		}
		fmt.Fprintf(sb, "    %s -- \"%s\" --> %s\n", from, label, sanitizeMermaidID(t.Target))
	}
}

func sanitizeMermaidID(id string) string {
	return strings.NewReplacer(
		".", "_",
		"-", "_",
		"/", "_",
		"\\", "_",
		"#", "__",
		" ", "_",
	).Replace(id)
}
