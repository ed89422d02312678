package beam

import (
	"fmt"
	"strings"

	"github.com/easel-ai/easel/pkg/models"
	"github.com/easel-ai/easel/pkg/provider"
)

// Operation labels passed through to the LLM daemon, which selects its
// prompt template by them.
const (
	opSeed   = "seed"
	opRefine = "refine"
)

// defaultFocusAreas steers the vision analysis toward the qualities the
// total score is built from.
var defaultFocusAreas = []string{"subject fidelity", "composition", "color", "lighting"}

// refinementGuidance assembles the critique text steering one child's
// refinement: the critique's suggestion for the child's dimension plus
// the parent ranking's reason and weaknesses. Empty when neither source
// has anything to say, which leaves the refinement unguided.
func refinementGuidance(dim models.Dimension, critique *provider.Critique, ranking *models.Ranking) string {
	var parts []string

	if critique != nil {
		suggestion := critique.SuggestedWhat
		if dim == models.DimensionHow {
			suggestion = critique.SuggestedHow
		}
		if suggestion != "" {
			parts = append(parts, "Suggested direction: "+suggestion)
		}
		if critique.Rationale != "" {
			parts = append(parts, "Rationale: "+critique.Rationale)
		}
	}

	if ranking != nil {
		if ranking.Reason != "" {
			parts = append(parts, "Previous ranking: "+ranking.Reason)
		}
		if len(ranking.Weaknesses) > 0 {
			parts = append(parts, "Address these weaknesses: "+strings.Join(ranking.Weaknesses, "; "))
		}
	}

	return strings.Join(parts, "\n")
}

// comparisonText renders the final ranker verdict between the two
// finalists as the human-facing comparison stored on the result.
func comparisonText(winner, runnerUp *models.Candidate, reason string) string {
	text := fmt.Sprintf("%s (%.0f) beat %s (%.0f)",
		winner.Key(), winner.TotalScore, runnerUp.Key(), runnerUp.TotalScore)
	if reason != "" {
		text += ": " + reason
	}
	return text
}
