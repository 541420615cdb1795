package graph_test

import (
	"strings"
	"testing"

	"github.com/aretw0/cairn/internal/presentation/graph"
	"github.com/aretw0/cairn/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func stepState(name string, status domain.StepStatus) domain.StepState {
	return domain.StepState{StepSpec: domain.StepSpec{Name: name, Kind: "command"}, Status: status}
}

func TestGenerateMermaid(t *testing.T) {
	viz := domain.StepState{StepSpec: domain.StepSpec{Name: "viz", Kind: "command", Optional: true}, Status: domain.StepPending}
	forward := stepState("forward", domain.StepFailed)
	forward.Attempts = 2

	state := &domain.RunState{
		Name: "nightly",
		TestCases: []domain.TestCaseState{
			{Path: "ocean/channel/10km", Steps: []domain.StepState{
				stepState("init", domain.StepSucceeded),
				forward,
				viz,
			}},
			{Path: "ocean/t2", Steps: []domain.StepState{stepState("init", domain.StepSucceeded)}},
		},
	}

	out := graph.GenerateMermaid(state)

	tests := []struct {
		name     string
		contains string
	}{
		{"Header", "graph TD\n"},
		{"Subgraph Per Test Case", `subgraph tc0["ocean/channel/10km"]`},
		{"Step Node", `ocean_channel_10km_init["init"]`},
		{"Attempts Annotation", `ocean_channel_10km_forward["forward <br/> 2 attempts"]`},
		{"Optional Step Shape", `ocean_channel_10km_viz[/"viz"/]`},
		{"Execution Order", "ocean_channel_10km_init --> ocean_channel_10km_forward"},
		{"Succeeded Class", "class ocean_channel_10km_init,ocean_t2_init succeeded;"},
		{"Failed Class", "class ocean_channel_10km_forward failed;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, out, tt.contains)
		})
	}

	assert.NotContains(t, out, "running;", "no class line for unused statuses")
	assert.Equal(t, 2, strings.Count(out, "    end\n"))
}
