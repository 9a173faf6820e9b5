package ingress

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bridgelab/reportpipeline/internal/domain/report"
	"github.com/bridgelab/reportpipeline/internal/pipelineerr"
	"github.com/bridgelab/reportpipeline/internal/stages"
)

func validRaw() RawJobDescriptor {
	return RawJobDescriptor{
		Config: RawConfig{
			FirebaseDetails: RawFirebaseDetails{ReportID: "r1", UserID: "u1"},
			LLM:             RawLLM{Model: "gpt-4o-mini"},
			Instructions: RawInstructions{
				SystemInstructions:     "be concise",
				ClusteringInstructions: "cluster well",
				ExtractionInstructions: "extract claims",
				DedupInstructions:      "dedupe well",
				SummariesInstructions:  "summarize well",
			},
			Options: RawOptions{Cruxes: false, SortStrategy: stages.SortByNumPeople},
			Env:     RawEnv{OpenAIAPIKey: "sk-test"},
		},
		Data: []RawComment{
			{ID: "c1", Comment: "hello", Speaker: "alice"},
			{ID: "c2", Comment: "world", Speaker: "bob", Interview: "transcript-2"},
		},
		ReportDetails: RawReportDetails{
			Title:       "Title",
			Description: "Description",
			Question:    "Question?",
			Filename:    "file.json",
		},
	}
}

func TestConvertBuildsJobDescriptorAndStageConfigs(t *testing.T) {
	raw := validRaw()
	job, cfgs, err := Convert(raw)
	require.NoError(t, err)

	require.Equal(t, "r1", job.ReportID)
	require.Equal(t, "u1", job.UserID)
	require.Len(t, job.Comments, 2)
	require.Equal(t, "hello", job.Comments[0].Text)
	require.Equal(t, "transcript-2", job.Comments[1].Metadata["interview"])
	require.False(t, job.Options.CruxesEnabled)
	require.False(t, job.Options.Bridging)
	require.Equal(t, stages.SortByNumPeople, job.Options.SortStrategy)

	require.Contains(t, cfgs, report.StageClustering)
	require.Contains(t, cfgs, report.StageExtraction)
	require.Contains(t, cfgs, report.StageSortAndDeduplicate)
	require.Contains(t, cfgs, report.StageSummaries)
	require.NotContains(t, cfgs, report.StageCruxes)
	require.Contains(t, cfgs[report.StageClustering].SystemPrompt, "cluster well")
	require.Contains(t, cfgs[report.StageClustering].SystemPrompt, "be concise")
}

func TestConvertIncludesCruxesConfigWhenEnabled(t *testing.T) {
	raw := validRaw()
	raw.Config.Options.Cruxes = true
	raw.Config.Instructions.CruxInstructions = "find cruxes"
	bridging := true
	raw.Config.Options.Bridging = &bridging

	job, cfgs, err := Convert(raw)
	require.NoError(t, err)
	require.True(t, job.Options.CruxesEnabled)
	require.True(t, job.Options.Bridging)
	require.Contains(t, cfgs, report.StageCruxes)
	require.Contains(t, cfgs[report.StageCruxes].SystemPrompt, "find cruxes")
}

func TestConvertRejectsMissingCruxInstructionsWhenCruxesEnabled(t *testing.T) {
	raw := validRaw()
	raw.Config.Options.Cruxes = true

	_, _, err := Convert(raw)
	require.Error(t, err)
	kind, ok := pipelineerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, pipelineerr.KindValidation, kind)
}

func TestConvertRejectsMissingReportID(t *testing.T) {
	raw := validRaw()
	raw.Config.FirebaseDetails.ReportID = ""

	_, _, err := Convert(raw)
	require.Error(t, err)
	kind, ok := pipelineerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, pipelineerr.KindValidation, kind)
}

func TestConvertRejectsEmptyCommentID(t *testing.T) {
	raw := validRaw()
	raw.Data[0].ID = ""

	_, _, err := Convert(raw)
	require.Error(t, err)
}

func TestConvertRejectsUnknownSortStrategy(t *testing.T) {
	raw := validRaw()
	raw.Config.Options.SortStrategy = "alphabetical"

	_, _, err := Convert(raw)
	require.Error(t, err)
}

func TestConvertRejectsEmptyDataSet(t *testing.T) {
	raw := validRaw()
	raw.Data = nil

	_, _, err := Convert(raw)
	require.Error(t, err)
}
