package runner

import (
	"context"
	"fmt"

	"github.com/bridgelab/reportpipeline/internal/domain/report"
	"github.com/bridgelab/reportpipeline/internal/stages"
)

// stagePlan builds the five-entry stage loop, closing over job, cfgs, st,
// and out so each stage's execute/loadResult reads the prior stage's typed
// output straight out of out rather than re-decoding state itself.
func (r *Runner) stagePlan(job JobDescriptor, cfgs StageConfigs, st *report.State, out *Outputs) []stageRun {
	return []stageRun{
		{
			name: report.StageClustering,
			loadResult: func() (bool, error) {
				return st.StageResult(report.StageClustering, &out.Taxonomy)
			},
			execute: func(ctx context.Context) (stages.Usage, error) {
				in := stages.ClusteringInput{Comments: job.Comments}
				result, usage, err := r.execs.Clustering.Execute(ctx, in, cfgs[report.StageClustering])
				if err != nil {
					return stages.Usage{}, err
				}
				out.Taxonomy = result
				return usage, nil
			},
		},
		{
			name: report.StageExtraction,
			loadResult: func() (bool, error) {
				return st.StageResult(report.StageExtraction, &out.ClaimsTree)
			},
			execute: func(ctx context.Context) (stages.Usage, error) {
				in := stages.ExtractionInput{Comments: job.Comments, Taxonomy: out.Taxonomy}
				result, usage, err := r.execs.Extraction.Execute(ctx, in, cfgs[report.StageExtraction])
				if err != nil {
					return stages.Usage{}, err
				}
				out.ClaimsTree = result
				return usage, nil
			},
		},
		{
			name: report.StageSortAndDeduplicate,
			loadResult: func() (bool, error) {
				return st.StageResult(report.StageSortAndDeduplicate, &out.SortedTree)
			},
			execute: func(ctx context.Context) (stages.Usage, error) {
				in := stages.SortDedupeInput{Extraction: out.ClaimsTree, Strategy: job.Options.SortStrategy}
				result, usage, err := r.execs.SortDedupe.Execute(ctx, in, cfgs[report.StageSortAndDeduplicate])
				if err != nil {
					return stages.Usage{}, err
				}
				out.SortedTree = result
				return usage, nil
			},
		},
		{
			name: report.StageSummaries,
			loadResult: func() (bool, error) {
				return st.StageResult(report.StageSummaries, &out.Summaries)
			},
			execute: func(ctx context.Context) (stages.Usage, error) {
				in := stages.SummariesInput{Topics: out.SortedTree.Topics}
				result, usage, err := r.execs.Summaries.Execute(ctx, in, cfgs[report.StageSummaries])
				if err != nil {
					return stages.Usage{}, err
				}
				out.Summaries = result
				return usage, nil
			},
		},
		{
			name: report.StageCruxes,
			loadResult: func() (bool, error) {
				var cruxes stages.CruxesOutput
				ok, err := st.StageResult(report.StageCruxes, &cruxes)
				if ok && err == nil {
					out.Cruxes = &cruxes
				}
				return ok, err
			},
			execute: func(ctx context.Context) (stages.Usage, error) {
				in := stages.CruxesInput{Topics: out.SortedTree.Topics}
				result, usage, err := r.execs.Cruxes.Execute(ctx, in, cfgs[report.StageCruxes])
				if err != nil {
					return stages.Usage{}, err
				}
				out.Cruxes = &result
				return usage, nil
			},
		},
	}
}

// stageResultFor returns the value that should be persisted into
// state.CompletedResults for a freshly executed stage.
func (r *Runner) stageResultFor(stage report.StageName, out *Outputs) (interface{}, error) {
	switch stage {
	case report.StageClustering:
		return out.Taxonomy, nil
	case report.StageExtraction:
		return out.ClaimsTree, nil
	case report.StageSortAndDeduplicate:
		return out.SortedTree, nil
	case report.StageSummaries:
		return out.Summaries, nil
	case report.StageCruxes:
		if out.Cruxes == nil {
			return nil, fmt.Errorf("cruxes stage completed with no output")
		}
		return *out.Cruxes, nil
	default:
		return nil, fmt.Errorf("unknown stage %s", stage)
	}
}
