// Package runner implements the Pipeline Runner (spec.md §4.F): the sole
// orchestrator of a run, owning admission via the Lock Manager, state
// initialization/resume via the State Store, the main per-stage loop, a
// concurrent heartbeat task extending the lock, progress notification, and
// cancellation.
package runner

import (
	"github.com/bridgelab/reportpipeline/internal/bridging"
	"github.com/bridgelab/reportpipeline/internal/domain/report"
	"github.com/bridgelab/reportpipeline/internal/llm"
	"github.com/bridgelab/reportpipeline/internal/stages"
)

// Options are the per-run switches of spec.md §4.F / Open Questions.
type Options struct {
	// ResumeFromState requests resuming an existing run instead of
	// starting fresh; CannotResume if the stored state is terminal in a
	// way that cannot be resumed (completed, or never started).
	ResumeFromState bool
	// CruxesEnabled gates the optional cruxes stage.
	CruxesEnabled bool
	// Bridging explicitly gates the Bridging Scorer, per the spec's Open
	// Question resolution: an explicit boolean, not inferred from
	// "options.bridging" truthiness alone.
	Bridging bool
	// SortStrategy selects the sort+dedupe stage's ordering rule.
	SortStrategy stages.SortStrategy
}

// JobDescriptor is the canonical ingress shape (spec.md §6.1 / Open
// Questions): one {id, comment, interview?} per comment is converted once
// at the boundary into report.Comment; this is the Runner's input shape
// after that conversion.
type JobDescriptor struct {
	ReportID string
	UserID   string
	Comments []report.Comment
	Options  Options
}

// StageConfigs supplies the LLM configuration each stage invokes its
// provider through.
type StageConfigs map[report.StageName]llm.Config

// ProgressUpdate is emitted on every stage transition (spec.md §4.F
// "Progress callback").
type ProgressUpdate struct {
	ReportID        string
	CurrentStage    report.StageName
	TotalStages     int
	CompletedStages int
	PercentComplete float64
}

// ProgressObserver receives progress notifications. Runner calls Notify
// synchronously from its stage loop, so a slow Notify delays the run;
// Notify is expected to return quickly or hand off internally.
type ProgressObserver interface {
	Notify(update ProgressUpdate)
}

// NoopProgressObserver discards every update.
type NoopProgressObserver struct{}

func (NoopProgressObserver) Notify(ProgressUpdate) {}

// Outputs is the runner's success payload (spec.md §6.5).
type Outputs struct {
	Taxonomy       stages.ClusteringOutput
	ClaimsTree     stages.ExtractionOutput
	SortedTree     stages.SortDedupeOutput
	Summaries      stages.SummariesOutput
	Cruxes         *stages.CruxesOutput
	BridgingScores []bridging.Score
}

// RunResult is returned on a successful run.
type RunResult struct {
	Outputs Outputs
	State   *report.State
}
