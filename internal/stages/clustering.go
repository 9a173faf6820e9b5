package stages

import (
	"context"
	"fmt"
	"strings"

	"github.com/bridgelab/reportpipeline/internal/llm"
)

// ClusteringExecutor implements the clustering stage (spec.md §4.E.1):
// given the comment corpus, produce a taxonomy of topics and subtopics,
// with no claims attached yet.
type ClusteringExecutor struct {
	client *llm.Client
}

// NewClusteringExecutor builds a ClusteringExecutor over an LLM client.
func NewClusteringExecutor(client *llm.Client) *ClusteringExecutor {
	return &ClusteringExecutor{client: client}
}

func (e *ClusteringExecutor) Execute(ctx context.Context, in ClusteringInput, cfg llm.Config) (ClusteringOutput, Usage, error) {
	var b strings.Builder
	b.WriteString("Comments:\n")
	for _, c := range in.Comments {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", c.ID, c.Speaker, c.Text)
	}
	if cfg.UserPromptTmpl != "" {
		b.WriteString("\n")
		b.WriteString(cfg.UserPromptTmpl)
	}

	var out ClusteringOutput
	usage, err := e.client.Complete(ctx, cfg, b.String(), &out)
	if err != nil {
		return ClusteringOutput{}, Usage{}, fmt.Errorf("clustering: %w", err)
	}
	return out, usage, nil
}
