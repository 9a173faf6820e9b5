package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bridgelab/reportpipeline/internal/llm"
)

// SummariesExecutor implements the summaries stage (spec.md §4.E.4): one
// narrative summary per topic, at most 140 words, referencing the claims
// under it.
type SummariesExecutor struct {
	client *llm.Client
}

// NewSummariesExecutor builds a SummariesExecutor over an LLM client.
func NewSummariesExecutor(client *llm.Client) *SummariesExecutor {
	return &SummariesExecutor{client: client}
}

const maxSummaryWords = 140

type topicSummary struct {
	Summary string `json:"summary"`
}

func (e *SummariesExecutor) Execute(ctx context.Context, in SummariesInput, cfg llm.Config) (SummariesOutput, Usage, error) {
	var totalUsage Usage
	out := SummariesOutput{Summaries: make(map[string]string, len(in.Topics))}

	for _, topic := range in.Topics {
		claimsJSON, err := json.Marshal(topic)
		if err != nil {
			return SummariesOutput{}, Usage{}, fmt.Errorf("summaries: encode topic %q: %w", topic.Name, err)
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Topic: %s\n", topic.Name)
		b.Write(claimsJSON)
		if cfg.UserPromptTmpl != "" {
			b.WriteString("\n")
			b.WriteString(cfg.UserPromptTmpl)
		}

		var result topicSummary
		usage, err := e.client.Complete(ctx, cfg, b.String(), &result)
		if err != nil {
			return SummariesOutput{}, Usage{}, fmt.Errorf("summaries: topic %q: %w", topic.Name, err)
		}
		totalUsage.InputTokens += usage.InputTokens
		totalUsage.OutputTokens += usage.OutputTokens
		totalUsage.TotalTokens += usage.TotalTokens

		out.Summaries[topic.Name] = clampWords(result.Summary, maxSummaryWords)
	}
	return out, totalUsage, nil
}

// clampWords truncates s to at most n whitespace-delimited words, the
// enforcement backstop behind the LLM's own length instruction.
func clampWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) <= n {
		return s
	}
	return strings.Join(words[:n], " ")
}
