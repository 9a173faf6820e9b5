package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/bridgelab/reportpipeline/internal/domain/report"
	"github.com/bridgelab/reportpipeline/internal/llm"
)

// SortDedupeExecutor implements the sort+dedupe stage (spec.md §4.E.3):
// merges near-duplicate claims within each subtopic under a single primary
// claim, then orders subtopics within each topic, and topics within the
// tree, by the configured strategy.
type SortDedupeExecutor struct {
	client *llm.Client
}

// NewSortDedupeExecutor builds a SortDedupeExecutor over an LLM client used
// to judge which claims within a subtopic are near-duplicates.
func NewSortDedupeExecutor(client *llm.Client) *SortDedupeExecutor {
	return &SortDedupeExecutor{client: client}
}

// dedupeGroups is the LLM's judgment of which claim indices (within one
// subtopic's claim list, in input order) belong to the same duplicate
// group. Each inner slice is one group; the first index in a group is
// treated as the primary.
type dedupeGroups struct {
	Groups [][]int `json:"groups"`
}

func (e *SortDedupeExecutor) Execute(ctx context.Context, in SortDedupeInput, cfg llm.Config) (SortDedupeOutput, Usage, error) {
	var totalUsage Usage
	topics := make([]report.Topic, 0, len(in.Extraction.Topics))

	for topicName, topic := range in.Extraction.Topics {
		outTopic := report.Topic{Name: topicName}
		for subName, sub := range topic.Subtopics {
			merged, usage, err := e.dedupeSubtopic(ctx, subName, sub.Claims, cfg)
			if err != nil {
				return SortDedupeOutput{}, Usage{}, fmt.Errorf("sort_and_deduplicate: subtopic %q: %w", subName, err)
			}
			totalUsage.InputTokens += usage.InputTokens
			totalUsage.OutputTokens += usage.OutputTokens
			totalUsage.TotalTokens += usage.TotalTokens
			outTopic.Subtopics = append(outTopic.Subtopics, report.Subtopic{
				Name:   subName,
				Claims: merged,
			})
		}
		sortSubtopics(outTopic.Subtopics, in.Strategy)
		topics = append(topics, outTopic)
	}
	sortTopics(topics, in.Strategy)

	return SortDedupeOutput{Topics: topics}, totalUsage, nil
}

// dedupeSubtopic asks the LLM which claims within one subtopic are
// near-duplicates, then merges each group into a single primary claim
// carrying the rest as Duplicates. A single-claim subtopic skips the LLM
// call entirely — there is nothing to merge.
func (e *SortDedupeExecutor) dedupeSubtopic(ctx context.Context, subName string, claims []ExtractedClaim, cfg llm.Config) ([]report.Claim, Usage, error) {
	domainClaims := make([]report.Claim, len(claims))
	for i, c := range claims {
		domainClaims[i] = report.Claim{
			Text:            c.Text,
			Quote:           c.Quote,
			Speaker:         c.Speaker,
			TopicName:       c.TopicName,
			SubtopicName:    c.SubtopicName,
			SourceCommentID: c.SourceCommentID,
		}
	}
	if len(domainClaims) <= 1 {
		return domainClaims, Usage{}, nil
	}

	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return nil, Usage{}, fmt.Errorf("encode claims: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Subtopic: %s\nClaims (indexed 0..%d):\n", subName, len(claims)-1)
	b.Write(claimsJSON)
	if cfg.UserPromptTmpl != "" {
		b.WriteString("\n")
		b.WriteString(cfg.UserPromptTmpl)
	}

	var groups dedupeGroups
	usage, err := e.client.Complete(ctx, cfg, b.String(), &groups)
	if err != nil {
		return nil, Usage{}, err
	}

	return mergeGroups(domainClaims, groups.Groups), usage, nil
}

// mergeGroups folds each group of claim indices into its first member,
// stashing the rest under Duplicates and marking them Duplicated. Indices
// not named in any group remain standalone primaries. Out-of-range or
// repeated indices are ignored defensively, since the grouping comes from
// an LLM response.
func mergeGroups(claims []report.Claim, groups [][]int) []report.Claim {
	grouped := make(map[int]bool, len(claims))
	out := make([]report.Claim, 0, len(claims))

	for _, group := range groups {
		var primary *report.Claim
		var dups []report.Claim
		for _, idx := range group {
			if idx < 0 || idx >= len(claims) || grouped[idx] {
				continue
			}
			grouped[idx] = true
			if primary == nil {
				c := claims[idx]
				primary = &c
			} else {
				d := claims[idx]
				d.Duplicated = true
				dups = append(dups, d)
			}
		}
		if primary != nil {
			primary.Duplicates = dups
			out = append(out, *primary)
		}
	}
	for i, c := range claims {
		if !grouped[i] {
			out = append(out, c)
		}
	}
	return out
}

func sortSubtopics(subs []report.Subtopic, strategy SortStrategy) {
	sort.SliceStable(subs, func(i, j int) bool {
		vi, vj := subtopicMetric(subs[i], strategy), subtopicMetric(subs[j], strategy)
		if vi != vj {
			return vi > vj
		}
		return subs[i].Name < subs[j].Name
	})
}

func sortTopics(topics []report.Topic, strategy SortStrategy) {
	sort.SliceStable(topics, func(i, j int) bool {
		vi, vj := topicMetric(topics[i], strategy), topicMetric(topics[j], strategy)
		if vi != vj {
			return vi > vj
		}
		return topics[i].Name < topics[j].Name
	})
}

func subtopicMetric(s report.Subtopic, strategy SortStrategy) int {
	if strategy == SortByNumPeople {
		return s.DistinctSpeakers()
	}
	return s.ClaimCount()
}

func topicMetric(t report.Topic, strategy SortStrategy) int {
	if strategy == SortByNumPeople {
		return t.DistinctSpeakers()
	}
	return t.ClaimCount()
}
