// Package report holds the data model shared by every stage of the
// pipeline: the immutable comment corpus, the topic/subtopic/claim tree
// produced across stages, and the durable run-state record.
package report

import (
	"encoding/json"
	"time"
)

// Comment is one immutable unit of free-text input. Ingress rejects an
// empty ID or Text before any stage runs (spec.md §3).
type Comment struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Speaker  string            `json:"speaker"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Claim is a single debatable assertion extracted from a comment, carrying
// a supporting quote and speaker attribution. Duplicates is a flat
// (non-recursive) set of claims merged into this one at the sort+dedupe
// stage; Duplicated marks a claim as a merged copy rather than a primary.
type Claim struct {
	Text            string  `json:"text"`
	Quote           string  `json:"quote"`
	Speaker         string  `json:"speaker"`
	TopicName       string  `json:"topicName"`
	SubtopicName    string  `json:"subtopicName"`
	SourceCommentID string  `json:"sourceCommentId"`
	Duplicates      []Claim `json:"duplicates,omitempty"`
	Duplicated      bool    `json:"duplicated"`
}

// Subtopic is a named grouping of claims within a Topic. Names are unique
// within their parent topic.
type Subtopic struct {
	Name             string  `json:"name"`
	ShortDescription string  `json:"shortDescription"`
	Claims           []Claim `json:"claims,omitempty"`
}

// Topic is a top-level grouping of subtopics. Names are unique within a run.
type Topic struct {
	Name             string     `json:"name"`
	ShortDescription string     `json:"shortDescription"`
	Subtopics        []Subtopic `json:"subtopics,omitempty"`
}

// DistinctSpeakers returns the count of distinct, non-empty speakers
// contributing claims anywhere under the subtopic, counting a merged
// claim's own duplicates as additional contributors (sort strategy
// numPeople, spec.md §4.E.3).
func (s Subtopic) DistinctSpeakers() int {
	seen := make(map[string]struct{})
	for _, c := range s.Claims {
		if c.Speaker != "" {
			seen[c.Speaker] = struct{}{}
		}
		for _, d := range c.Duplicates {
			if d.Speaker != "" {
				seen[d.Speaker] = struct{}{}
			}
		}
	}
	return len(seen)
}

// ClaimCount returns the total claim count under the subtopic including
// merged duplicates (sort strategy numClaims, spec.md §4.E.3).
func (s Subtopic) ClaimCount() int {
	total := len(s.Claims)
	for _, c := range s.Claims {
		total += len(c.Duplicates)
	}
	return total
}

// DistinctSpeakers aggregates DistinctSpeakers across a topic's subtopics.
func (t Topic) DistinctSpeakers() int {
	seen := make(map[string]struct{})
	for _, st := range t.Subtopics {
		for _, c := range st.Claims {
			if c.Speaker != "" {
				seen[c.Speaker] = struct{}{}
			}
			for _, d := range c.Duplicates {
				if d.Speaker != "" {
					seen[d.Speaker] = struct{}{}
				}
			}
		}
	}
	return len(seen)
}

// ClaimCount aggregates ClaimCount across a topic's subtopics.
func (t Topic) ClaimCount() int {
	total := 0
	for _, st := range t.Subtopics {
		total += st.ClaimCount()
	}
	return total
}

// Status is the run-level lifecycle state (spec.md §3).
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// StageName identifies one of the five fixed pipeline stages.
type StageName string

const (
	StageClustering        StageName = "clustering"
	StageExtraction        StageName = "extraction"
	StageSortAndDeduplicate StageName = "sort_and_deduplicate"
	StageSummaries         StageName = "summaries"
	StageCruxes            StageName = "cruxes"
)

// Stages is the fixed, ordered stage list the Runner walks.
var Stages = []StageName{
	StageClustering,
	StageExtraction,
	StageSortAndDeduplicate,
	StageSummaries,
	StageCruxes,
}

// StageStatus is the per-stage lifecycle state within stageAnalytics.
type StageStatus string

const (
	StageStatusPending    StageStatus = "pending"
	StageStatusInProgress StageStatus = "inProgress"
	StageStatusCompleted  StageStatus = "completed"
	StageStatusFailed     StageStatus = "failed"
	StageStatusSkipped    StageStatus = "skipped"
)

// StageAnalytics is the per-stage entry of the analytics ledger.
type StageAnalytics struct {
	Status       StageStatus `json:"status"`
	StartedAt    *time.Time  `json:"startedAt,omitempty"`
	CompletedAt  *time.Time  `json:"completedAt,omitempty"`
	DurationMs   int64       `json:"durationMs,omitempty"`
	InputTokens  int64       `json:"inputTokens,omitempty"`
	OutputTokens int64       `json:"outputTokens,omitempty"`
	TotalTokens  int64       `json:"totalTokens,omitempty"`
	Cost         float64     `json:"cost,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	ErrorName    string      `json:"errorName,omitempty"`
}

// RunError is the state-level terminal error record.
type RunError struct {
	Message string    `json:"message"`
	Name    string    `json:"name"`
	Stage   StageName `json:"stage,omitempty"`
}

// State is the durable per-run record (spec.md §3). It is the sole
// authority the Runner mutates; Stage Executors never see or touch it.
type State struct {
	Version   string `json:"version"`
	ReportID  string `json:"reportId"`
	UserID    string `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Status    Status    `json:"status"`

	CurrentStage StageName `json:"currentStage,omitempty"`

	StageAnalytics     map[StageName]StageAnalytics `json:"stageAnalytics"`
	CompletedResults   map[StageName]json.RawMessage `json:"completedResults"`
	ValidationFailures map[StageName]int             `json:"validationFailures"`

	Error *RunError `json:"error,omitempty"`

	TotalTokens   int64   `json:"totalTokens"`
	TotalCost     float64 `json:"totalCost"`
	TotalDuration int64   `json:"totalDurationMs"`
}
