// Package ingress is the canonical conversion boundary (spec.md §6.1, §6.3
// "Source mixes comment_id/comment_text/speaker and id/comment/interview
// shapes across versions; implementers should pick one canonical shape at
// the ingress boundary and convert once"): it accepts the raw job
// descriptor shape a caller submits, validates every required field, and
// converts it exactly once into the runner's typed JobDescriptor and
// per-stage StageConfigs.
//
// Grounded on the teacher's internal/app/services/oracle request decoding
// (internal/app/services/oracle/service.go validates a raw inbound
// envelope field-by-field before constructing a typed request), adapted
// from one flat request struct to the pipeline's nested
// config/data/reportDetails envelope.
package ingress

import (
	"fmt"
	"strings"
	"time"

	"github.com/bridgelab/reportpipeline/internal/domain/report"
	"github.com/bridgelab/reportpipeline/internal/llm"
	"github.com/bridgelab/reportpipeline/internal/pipelineerr"
	"github.com/bridgelab/reportpipeline/internal/runner"
	"github.com/bridgelab/reportpipeline/internal/stages"
)

// RawComment is one entry of the raw "data" array. Interview is optional;
// any other caller-supplied fields land in Metadata.
type RawComment struct {
	ID        string            `json:"id"`
	Comment   string            `json:"comment"`
	Speaker   string            `json:"speaker,omitempty"`
	Interview string            `json:"interview,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// RawInstructions carries the per-stage prompt text a caller supplies.
// CruxInstructions is only required when options.cruxes is true.
type RawInstructions struct {
	SystemInstructions     string `json:"systemInstructions"`
	ClusteringInstructions string `json:"clusteringInstructions"`
	ExtractionInstructions string `json:"extractionInstructions"`
	DedupInstructions      string `json:"dedupInstructions"`
	SummariesInstructions  string `json:"summariesInstructions"`
	CruxInstructions       string `json:"cruxInstructions,omitempty"`
	OutputLanguage         string `json:"outputLanguage,omitempty"`
}

// RawOptions carries the per-run switches (spec.md §4.F Open Questions).
type RawOptions struct {
	Cruxes       bool                `json:"cruxes"`
	Bridging     *bool               `json:"bridging,omitempty"`
	SortStrategy stages.SortStrategy `json:"sortStrategy"`
}

// RawFirebaseDetails identifies the run and its owner.
type RawFirebaseDetails struct {
	ReportID string `json:"reportId"`
	UserID   string `json:"userId"`
}

// RawLLM names the model (and optional endpoint) every stage invokes.
type RawLLM struct {
	Model    string `json:"model"`
	Endpoint string `json:"endpoint,omitempty"`
}

// RawEnv carries secrets resolved from the caller's environment rather
// than embedded in the job body.
type RawEnv struct {
	OpenAIAPIKey string `json:"OPENAI_API_KEY"`
}

// RawConfig is the "config" section of the job envelope.
type RawConfig struct {
	FirebaseDetails RawFirebaseDetails `json:"firebaseDetails"`
	LLM             RawLLM             `json:"llm"`
	Instructions    RawInstructions    `json:"instructions"`
	Options         RawOptions         `json:"options"`
	Env             RawEnv             `json:"env"`
}

// RawReportDetails is free-text context about the run, folded into every
// stage's prompt (spec.md §6.1); it is not itself stage-specific.
type RawReportDetails struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Question    string `json:"question"`
	Filename    string `json:"filename"`
}

// RawJobDescriptor is the wire shape of spec.md §6.1.
type RawJobDescriptor struct {
	Config        RawConfig        `json:"config"`
	Data          []RawComment     `json:"data"`
	ReportDetails RawReportDetails `json:"reportDetails"`
}

// defaultTimeout bounds every stage's LLM call; the job descriptor has no
// field that changes it.
const defaultTimeout = 2 * time.Minute

// Convert validates raw and, on success, returns the typed JobDescriptor
// and per-stage StageConfigs the Runner consumes. Every empty-string field
// named in spec.md §6.1 is rejected before any stage runs.
func Convert(raw RawJobDescriptor) (runner.JobDescriptor, runner.StageConfigs, error) {
	if err := validate(raw); err != nil {
		return runner.JobDescriptor{}, nil, err
	}

	comments := make([]report.Comment, 0, len(raw.Data))
	for _, c := range raw.Data {
		comments = append(comments, report.Comment{
			ID:       c.ID,
			Text:     c.Comment,
			Speaker:  c.Speaker,
			Metadata: withInterview(c.Metadata, c.Interview),
		})
	}

	bridging := raw.Config.Options.Bridging != nil && *raw.Config.Options.Bridging

	job := runner.JobDescriptor{
		ReportID: raw.Config.FirebaseDetails.ReportID,
		UserID:   raw.Config.FirebaseDetails.UserID,
		Comments: comments,
		Options: runner.Options{
			CruxesEnabled: raw.Config.Options.Cruxes,
			Bridging:      bridging,
			SortStrategy:  raw.Config.Options.SortStrategy,
		},
	}

	cfgs := stageConfigs(raw)
	return job, cfgs, nil
}

func withInterview(metadata map[string]string, interview string) map[string]string {
	if interview == "" {
		return metadata
	}
	out := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	out["interview"] = interview
	return out
}

// stageConfigs builds one llm.Config per stage, each sharing the job's
// model/endpoint/key but carrying that stage's own instructions appended
// to the shared system instructions and report context.
func stageConfigs(raw RawJobDescriptor) runner.StageConfigs {
	base := llm.Config{
		Model:    raw.Config.LLM.Model,
		Endpoint: raw.Config.LLM.Endpoint,
		APIKey:   raw.Config.Env.OpenAIAPIKey,
		Timeout:  defaultTimeout,
	}
	context := reportContext(raw.ReportDetails)
	instr := raw.Config.Instructions

	withSystem := func(stageInstructions string) llm.Config {
		cfg := base
		cfg.SystemPrompt = joinNonEmpty("\n\n", instr.SystemInstructions, stageInstructions, context)
		if instr.OutputLanguage != "" {
			cfg.UserPromptTmpl = fmt.Sprintf("Respond in %s.", instr.OutputLanguage)
		}
		return cfg
	}

	cfgs := runner.StageConfigs{
		report.StageClustering:         withSystem(instr.ClusteringInstructions),
		report.StageExtraction:         withSystem(instr.ExtractionInstructions),
		report.StageSortAndDeduplicate: withSystem(instr.DedupInstructions),
		report.StageSummaries:          withSystem(instr.SummariesInstructions),
	}
	if raw.Config.Options.Cruxes {
		cfgs[report.StageCruxes] = withSystem(instr.CruxInstructions)
	}
	return cfgs
}

func reportContext(d RawReportDetails) string {
	if d.Title == "" && d.Description == "" && d.Question == "" {
		return ""
	}
	var b strings.Builder
	b.WriteString("Report context:\n")
	fmt.Fprintf(&b, "Title: %s\n", d.Title)
	fmt.Fprintf(&b, "Description: %s\n", d.Description)
	fmt.Fprintf(&b, "Question: %s\n", d.Question)
	return b.String()
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func validate(raw RawJobDescriptor) error {
	type field struct {
		name  string
		value string
	}
	required := []field{
		{"config.firebaseDetails.reportId", raw.Config.FirebaseDetails.ReportID},
		{"config.firebaseDetails.userId", raw.Config.FirebaseDetails.UserID},
		{"config.llm.model", raw.Config.LLM.Model},
		{"config.instructions.systemInstructions", raw.Config.Instructions.SystemInstructions},
		{"config.instructions.clusteringInstructions", raw.Config.Instructions.ClusteringInstructions},
		{"config.instructions.extractionInstructions", raw.Config.Instructions.ExtractionInstructions},
		{"config.instructions.dedupInstructions", raw.Config.Instructions.DedupInstructions},
		{"config.instructions.summariesInstructions", raw.Config.Instructions.SummariesInstructions},
		{"config.env.OPENAI_API_KEY", raw.Config.Env.OpenAIAPIKey},
		{"reportDetails.title", raw.ReportDetails.Title},
		{"reportDetails.description", raw.ReportDetails.Description},
		{"reportDetails.question", raw.ReportDetails.Question},
		{"reportDetails.filename", raw.ReportDetails.Filename},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return pipelineerr.Validation("%s must be non-empty", f.name)
		}
	}
	if raw.Config.Options.Cruxes && strings.TrimSpace(raw.Config.Instructions.CruxInstructions) == "" {
		return pipelineerr.Validation("config.instructions.cruxInstructions must be non-empty when options.cruxes is true")
	}
	if raw.Config.Options.SortStrategy != stages.SortByNumPeople && raw.Config.Options.SortStrategy != stages.SortByNumClaims {
		return pipelineerr.Validation("config.options.sortStrategy must be %q or %q, got %q", stages.SortByNumPeople, stages.SortByNumClaims, raw.Config.Options.SortStrategy)
	}
	if len(raw.Data) == 0 {
		return pipelineerr.Validation("data must contain at least one comment")
	}
	for i, c := range raw.Data {
		if strings.TrimSpace(c.ID) == "" {
			return pipelineerr.Validation("data[%d].id must be non-empty", i)
		}
		if strings.TrimSpace(c.Comment) == "" {
			return pipelineerr.Validation("data[%d].comment must be non-empty", i)
		}
	}
	return nil
}
