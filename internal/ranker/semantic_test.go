package ranker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pursuit-cli/internal/model"
	"github.com/sells-group/pursuit-cli/pkg/claude"
)

type scriptedClient struct {
	text string
	err  error
}

func (c *scriptedClient) CreateMessage(ctx context.Context, req claude.MessageRequest) (*claude.MessageResponse, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &claude.MessageResponse{Text: c.text}, nil
}

func TestClaudeSemanticParsesScore(t *testing.T) {
	s := &ClaudeSemantic{Client: &scriptedClient{text: "0.83\n"}, Model: "claude-sonnet-4-5-20250929"}
	got, err := s.Similarity(context.Background(), &model.Pursuit{ID: "t"}, &model.ReferencePursuit{ID: "c"})
	require.NoError(t, err)
	assert.Equal(t, 0.83, got)
}

func TestClaudeSemanticClampsOutOfRange(t *testing.T) {
	s := &ClaudeSemantic{Client: &scriptedClient{text: "1.7"}}
	got, err := s.Similarity(context.Background(), &model.Pursuit{}, &model.ReferencePursuit{})
	require.NoError(t, err)
	assert.Equal(t, 1.0, got)
}

func TestClaudeSemanticRejectsProse(t *testing.T) {
	s := &ClaudeSemantic{Client: &scriptedClient{text: "quite similar"}}
	_, err := s.Similarity(context.Background(), &model.Pursuit{}, &model.ReferencePursuit{})
	assert.Error(t, err)
}
