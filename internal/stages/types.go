// Package stages implements the five Stage Executors (spec.md §4.E):
// clustering, extraction, sort+dedupe, summaries, and cruxes. Each exposes
// a uniform Execute(ctx, input, llmCfg) (output, usage, error) shape and is
// pure with respect to the State Store and Lock Manager — the Runner owns
// all persistence.
//
// Grounded on the teacher's oracle resolver pattern
// (internal/app/services/oracle/resolver_http.go) for the LLM-call shape,
// generalized from one fixed HTTP data source per request to one LLM
// completion per stage invocation.
package stages

import (
	"strings"

	"github.com/bridgelab/reportpipeline/internal/domain/report"
	"github.com/bridgelab/reportpipeline/internal/llm"
)

// TaxonomySubtopic is one subtopic skeleton produced by clustering, before
// any claims are attached.
type TaxonomySubtopic struct {
	Name             string `json:"name"`
	ShortDescription string `json:"shortDescription"`
}

// TaxonomyTopic is one topic skeleton produced by clustering.
type TaxonomyTopic struct {
	Name             string             `json:"name"`
	ShortDescription string             `json:"shortDescription"`
	Subtopics        []TaxonomySubtopic `json:"subtopics"`
}

// ClusteringInput is the clustering stage's input.
type ClusteringInput struct {
	Comments []report.Comment
}

// ClusteringOutput is the produced taxonomy.
type ClusteringOutput struct {
	Topics []TaxonomyTopic `json:"topics"`
}

// ExtractionInput is the extraction stage's input: the comment corpus plus
// the taxonomy clustering produced.
type ExtractionInput struct {
	Comments  []report.Comment
	Taxonomy  ClusteringOutput
}

// ExtractedClaim is one claim as returned raw by the extraction LLM call,
// before taxonomy-membership filtering.
type ExtractedClaim struct {
	Text            string `json:"text"`
	Quote           string `json:"quote"`
	Speaker         string `json:"speaker"`
	TopicName       string `json:"topicName"`
	SubtopicName    string `json:"subtopicName"`
	SourceCommentID string `json:"sourceCommentId"`
}

// ExtractionOutput is the claim map of spec.md §4.E.2:
// topicName -> {total, subtopics: map subtopicName -> {total, claims[]}}.
type ExtractionOutput struct {
	Topics map[string]ExtractedTopic `json:"topics"`
}

type ExtractedTopic struct {
	Total     int                          `json:"total"`
	Subtopics map[string]ExtractedSubtopic `json:"subtopics"`
}

type ExtractedSubtopic struct {
	Total  int               `json:"total"`
	Claims []ExtractedClaim `json:"claims"`
}

// SortStrategy selects the ordering rule applied at the sort+dedupe stage.
type SortStrategy string

const (
	SortByNumPeople SortStrategy = "numPeople"
	SortByNumClaims SortStrategy = "numClaims"
)

// SortDedupeInput is the sort+dedupe stage's input.
type SortDedupeInput struct {
	Extraction ExtractionOutput
	Strategy   SortStrategy
}

// SortDedupeOutput is the ordered, deduplicated topic tree.
type SortDedupeOutput struct {
	Topics []report.Topic `json:"topics"`
}

// SummariesInput is the summaries stage's input: the sorted tree.
type SummariesInput struct {
	Topics []report.Topic
}

// SummariesOutput maps each topic name to its narrative summary.
type SummariesOutput struct {
	Summaries map[string]string `json:"summaries"`
}

// SpeakerClaim pairs a claim with the subtopic it belongs to, the shape the
// cruxes stage groups by subtopic to find qualifying ones (>=2 distinct
// speakers).
type SpeakerClaim struct {
	TopicName    string
	SubtopicName string
	Claim        report.Claim
}

// CruxesInput is the cruxes stage's input: the sorted tree (speaker
// groupings are derived from it directly).
type CruxesInput struct {
	Topics []report.Topic
}

// Crux is one synthesized crux for a qualifying subtopic.
type Crux struct {
	CruxClaim       string   `json:"cruxClaim"`
	Agree           []string `json:"agree"`
	Disagree        []string `json:"disagree"`
	NoClearPosition []string `json:"noClearPosition"`
	Explanation     string   `json:"explanation"`
}

// SubtopicKey identifies a subtopic by its owning topic, since subtopic
// names are only unique within a topic (spec.md §3). It implements
// encoding.TextMarshaler/Unmarshaler so it can be used directly as a JSON
// object key.
type SubtopicKey struct {
	TopicName    string
	SubtopicName string
}

const subtopicKeySep = "\x1f"

func (k SubtopicKey) MarshalText() ([]byte, error) {
	return []byte(k.TopicName + subtopicKeySep + k.SubtopicName), nil
}

func (k *SubtopicKey) UnmarshalText(text []byte) error {
	parts := strings.SplitN(string(text), subtopicKeySep, 2)
	k.TopicName = parts[0]
	if len(parts) > 1 {
		k.SubtopicName = parts[1]
	}
	return nil
}

// CruxesOutput maps each qualifying subtopic to its synthesized crux.
type CruxesOutput struct {
	Cruxes map[SubtopicKey]Crux
}

// Usage re-exports llm.Usage so executor signatures don't force every
// caller to import the llm package directly.
type Usage = llm.Usage
