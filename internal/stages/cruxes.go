package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bridgelab/reportpipeline/internal/llm"
)

// CruxesExecutor implements the optional cruxes stage (spec.md §4.E.5): for
// each subtopic with at least 2 distinct contributing speakers, synthesize
// a crux statement plus agree/disagree/noClearPosition speaker sets. The
// LLM's raw set membership is never trusted as-is — ReconcileSpeakers is
// applied to every result before it is returned.
type CruxesExecutor struct {
	client *llm.Client
}

// NewCruxesExecutor builds a CruxesExecutor over an LLM client.
func NewCruxesExecutor(client *llm.Client) *CruxesExecutor {
	return &CruxesExecutor{client: client}
}

const minSpeakersForCrux = 2

type rawCrux struct {
	CruxClaim       string   `json:"cruxClaim"`
	Agree           []string `json:"agree"`
	Disagree        []string `json:"disagree"`
	NoClearPosition []string `json:"noClearPosition"`
	Explanation     string   `json:"explanation"`
}

func (e *CruxesExecutor) Execute(ctx context.Context, in CruxesInput, cfg llm.Config) (CruxesOutput, Usage, error) {
	var totalUsage Usage
	out := CruxesOutput{Cruxes: make(map[SubtopicKey]Crux)}

	for _, topic := range in.Topics {
		for _, sub := range topic.Subtopics {
			if sub.DistinctSpeakers() < minSpeakersForCrux {
				continue
			}

			claimsJSON, err := json.Marshal(sub)
			if err != nil {
				return CruxesOutput{}, Usage{}, fmt.Errorf("cruxes: encode subtopic %q: %w", sub.Name, err)
			}
			var b strings.Builder
			fmt.Fprintf(&b, "Topic: %s\nSubtopic: %s\n", topic.Name, sub.Name)
			b.Write(claimsJSON)
			if cfg.UserPromptTmpl != "" {
				b.WriteString("\n")
				b.WriteString(cfg.UserPromptTmpl)
			}

			var raw rawCrux
			usage, err := e.client.Complete(ctx, cfg, b.String(), &raw)
			if err != nil {
				return CruxesOutput{}, Usage{}, fmt.Errorf("cruxes: subtopic %q: %w", sub.Name, err)
			}
			totalUsage.InputTokens += usage.InputTokens
			totalUsage.OutputTokens += usage.OutputTokens
			totalUsage.TotalTokens += usage.TotalTokens

			agree, disagree, noClear := ReconcileSpeakers(raw.Agree, raw.Disagree, raw.NoClearPosition)
			out.Cruxes[SubtopicKey{TopicName: topic.Name, SubtopicName: sub.Name}] = Crux{
				CruxClaim:       raw.CruxClaim,
				Agree:           agree,
				Disagree:        disagree,
				NoClearPosition: noClear,
				Explanation:     raw.Explanation,
			}
		}
	}
	return out, totalUsage, nil
}
