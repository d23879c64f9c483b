package ranker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pursuit-cli/internal/model"
	"github.com/sells-group/pursuit-cli/pkg/claude"
)

// ClaudeSemantic scores semantic similarity by asking Claude to compare the
// target pursuit against a candidate. Replies are a bare number in [0,1].
type ClaudeSemantic struct {
	Client claude.Client
	Model  string
}

const semanticSystem = "You rate how similar two consulting pursuits are. " +
	"Reply with a single number between 0 and 1 and nothing else."

func (s *ClaudeSemantic) Similarity(ctx context.Context, target *model.Pursuit, cand *model.ReferencePursuit) (float64, error) {
	tj, err := json.Marshal(summary(target))
	if err != nil {
		return 0, eris.Wrap(err, "ranker: encode target")
	}
	cj, err := json.Marshal(cand)
	if err != nil {
		return 0, eris.Wrap(err, "ranker: encode candidate")
	}

	resp, err := s.Client.CreateMessage(ctx, claude.MessageRequest{
		Model:     s.Model,
		MaxTokens: 16,
		System:    semanticSystem,
		Messages: []claude.Message{{
			Role:    "user",
			Content: fmt.Sprintf("Target pursuit:\n%s\n\nCandidate reference:\n%s", tj, cj),
		}},
	})
	if err != nil {
		return 0, err
	}

	score, err := strconv.ParseFloat(strings.TrimSpace(resp.Text), 64)
	if err != nil {
		return 0, eris.Wrapf(err, "ranker: unparseable similarity reply %q", resp.Text)
	}
	return clamp01(score), nil
}

// summary trims the target to the fields that matter for similarity, keeping
// analysis results and history out of the prompt.
func summary(p *model.Pursuit) map[string]any {
	return map[string]any{
		"entity_name":   p.EntityName,
		"industry":      p.Industry,
		"geography":     p.Geography,
		"service_types": p.ServiceTypes,
		"technologies":  p.Technologies,
	}
}
