package runner

import (
	"context"

	"github.com/bridgelab/reportpipeline/internal/bridging"
	"github.com/bridgelab/reportpipeline/internal/domain/report"
	"github.com/bridgelab/reportpipeline/internal/llm"
	"github.com/bridgelab/reportpipeline/internal/stages"
)

// The five executor interfaces mirror spec.md §4.E's uniform shape; each
// is satisfied structurally by its internal/stages concrete type, and by
// a test fake, so the Runner's main loop can be exercised without a real
// LLM provider (spec.md §8 scenario S3).
type ClusteringExecutor interface {
	Execute(ctx context.Context, in stages.ClusteringInput, cfg llm.Config) (stages.ClusteringOutput, stages.Usage, error)
}

type ExtractionExecutor interface {
	Execute(ctx context.Context, in stages.ExtractionInput, cfg llm.Config) (stages.ExtractionOutput, stages.Usage, error)
}

type SortDedupeExecutor interface {
	Execute(ctx context.Context, in stages.SortDedupeInput, cfg llm.Config) (stages.SortDedupeOutput, stages.Usage, error)
}

type SummariesExecutor interface {
	Execute(ctx context.Context, in stages.SummariesInput, cfg llm.Config) (stages.SummariesOutput, stages.Usage, error)
}

type CruxesExecutor interface {
	Execute(ctx context.Context, in stages.CruxesInput, cfg llm.Config) (stages.CruxesOutput, stages.Usage, error)
}

// Executors bundles all five stage implementations the Runner drives.
type Executors struct {
	Clustering ClusteringExecutor
	Extraction ExtractionExecutor
	SortDedupe SortDedupeExecutor
	Summaries  SummariesExecutor
	Cruxes     CruxesExecutor
}

// BridgingScorer is the narrow surface the Runner invokes once every stage
// has completed successfully (spec.md §4.F "on success it invokes the
// Bridging Scorer"), satisfied structurally by *bridging.Scorer and by
// test fakes.
type BridgingScorer interface {
	Walk(ctx context.Context, topics []report.Topic) bridging.Result
}
