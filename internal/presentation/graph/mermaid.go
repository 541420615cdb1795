package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/cairn/pkg/domain"
)

// GenerateMermaid produces a Mermaid flowchart of a run state: one subgraph per
// test case, its steps chained in execution order and styled by status.
// Optional steps are drawn as [/Parallelogram/].
func GenerateMermaid(state *domain.RunState) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	byStatus := make(map[domain.StepStatus][]string)
	for i, tc := range state.TestCases {
		fmt.Fprintf(&sb, "    subgraph tc%d[\"%s\"]\n", i, escape(tc.Path))
		prev := ""
		for _, s := range tc.Steps {
			id := sanitizeMermaidID(tc.Path + "/" + s.Name)
			opener, closer := "[", "]"
			if s.Optional {
				opener, closer = "[/", "/]"
			}
			label := s.Name
			if s.Attempts > 1 {
				label = fmt.Sprintf("%s <br/> %d attempts", s.Name, s.Attempts)
			}
			fmt.Fprintf(&sb, "        %s%s\"%s\"%s\n", id, opener, escape(label), closer)
			if prev != "" {
				fmt.Fprintf(&sb, "        %s --> %s\n", prev, id)
			}
			prev = id
			byStatus[s.Status] = append(byStatus[s.Status], id)
		}
		sb.WriteString("    end\n")
	}

	sb.WriteString("\n    %% Status Styles\n")
	// Force black text (color:#000) for contrast on light fills, regardless of theme.
	sb.WriteString("    classDef succeeded fill:#c8e6c9,stroke:#2e7d32,color:#000;\n")
	sb.WriteString("    classDef failed fill:#ffcdd2,stroke:#c62828,stroke-width:2px,color:#000;\n")
	sb.WriteString("    classDef running fill:#ffeb3b,stroke:#fbc02d,stroke-width:3px,color:#000;\n")
	sb.WriteString("    classDef skipped fill:#eeeeee,stroke:#9e9e9e,stroke-dasharray:4,color:#000;\n")
	for _, status := range []domain.StepStatus{domain.StepSucceeded, domain.StepFailed, domain.StepRunning, domain.StepSkipped} {
		if ids := byStatus[status]; len(ids) > 0 {
			fmt.Fprintf(&sb, "    class %s %s;\n", strings.Join(ids, ","), status)
		}
	}
	return sb.String()
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
