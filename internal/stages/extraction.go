package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bridgelab/reportpipeline/internal/llm"
)

// ExtractionExecutor implements the extraction stage (spec.md §4.E.2):
// given the comment corpus and the clustering taxonomy, extract claims and
// assign each to a topic/subtopic. Claims assigned to a topic or subtopic
// absent from the taxonomy are dropped — the LLM's stated assignment is
// not trusted over the taxonomy it was given.
type ExtractionExecutor struct {
	client *llm.Client
}

// NewExtractionExecutor builds an ExtractionExecutor over an LLM client.
func NewExtractionExecutor(client *llm.Client) *ExtractionExecutor {
	return &ExtractionExecutor{client: client}
}

func (e *ExtractionExecutor) Execute(ctx context.Context, in ExtractionInput, cfg llm.Config) (ExtractionOutput, Usage, error) {
	taxonomyJSON, err := json.Marshal(in.Taxonomy)
	if err != nil {
		return ExtractionOutput{}, Usage{}, fmt.Errorf("extraction: encode taxonomy: %w", err)
	}

	var b strings.Builder
	b.WriteString("Taxonomy:\n")
	b.Write(taxonomyJSON)
	b.WriteString("\n\nComments:\n")
	for _, c := range in.Comments {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", c.ID, c.Speaker, c.Text)
	}
	if cfg.UserPromptTmpl != "" {
		b.WriteString("\n")
		b.WriteString(cfg.UserPromptTmpl)
	}

	var raw ExtractionOutput
	usage, err := e.client.Complete(ctx, cfg, b.String(), &raw)
	if err != nil {
		return ExtractionOutput{}, Usage{}, fmt.Errorf("extraction: %w", err)
	}

	return filterAgainstTaxonomy(raw, in.Taxonomy), usage, nil
}

// filterAgainstTaxonomy drops any claim whose assigned topic/subtopic does
// not exist in the taxonomy clustering produced (spec.md §4.E.2), and
// recomputes the total counts to match the surviving claims.
func filterAgainstTaxonomy(raw ExtractionOutput, taxonomy ClusteringOutput) ExtractionOutput {
	validSubtopics := make(map[string]map[string]struct{}, len(taxonomy.Topics))
	for _, t := range taxonomy.Topics {
		subs := make(map[string]struct{}, len(t.Subtopics))
		for _, st := range t.Subtopics {
			subs[st.Name] = struct{}{}
		}
		validSubtopics[t.Name] = subs
	}

	out := ExtractionOutput{Topics: make(map[string]ExtractedTopic)}
	for topicName, topic := range raw.Topics {
		subs, topicValid := validSubtopics[topicName]
		if !topicValid {
			continue
		}
		outTopic := ExtractedTopic{Subtopics: make(map[string]ExtractedSubtopic)}
		for subName, sub := range topic.Subtopics {
			if _, subValid := subs[subName]; !subValid {
				continue
			}
			claims := make([]ExtractedClaim, 0, len(sub.Claims))
			for _, claim := range sub.Claims {
				if claim.TopicName != topicName || claim.SubtopicName != subName {
					continue
				}
				claims = append(claims, claim)
			}
			if len(claims) == 0 {
				continue
			}
			outTopic.Subtopics[subName] = ExtractedSubtopic{Total: len(claims), Claims: claims}
			outTopic.Total += len(claims)
		}
		if len(outTopic.Subtopics) == 0 {
			continue
		}
		out.Topics[topicName] = outTopic
	}
	return out
}
