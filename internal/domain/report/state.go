package report

import (
	"encoding/json"
	"fmt"
	"time"
)

// StateVersion is the schema version written into every state record.
const StateVersion = "1.0"

// NewInitialState creates a fresh run record with every stage pending and no
// validation failures recorded (spec.md §4.F "State initialization").
func NewInitialState(reportID, userID string, now func() time.Time) *State {
	analytics := make(map[StageName]StageAnalytics, len(Stages))
	failures := make(map[StageName]int, len(Stages))
	for _, s := range Stages {
		analytics[s] = StageAnalytics{Status: StageStatusPending}
		failures[s] = 0
	}
	ts := now()
	return &State{
		Version:            StateVersion,
		ReportID:           reportID,
		UserID:             userID,
		CreatedAt:          ts,
		UpdatedAt:          ts,
		Status:             StatusPending,
		StageAnalytics:     analytics,
		CompletedResults:   make(map[StageName]json.RawMessage),
		ValidationFailures: failures,
	}
}

// Clone returns a deep-enough copy for by-value snapshots handed to
// components (Stage Executors, progress observers) that must not be able to
// mutate the Runner's authoritative copy.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.StageAnalytics = make(map[StageName]StageAnalytics, len(s.StageAnalytics))
	for k, v := range s.StageAnalytics {
		out.StageAnalytics[k] = v
	}
	out.CompletedResults = make(map[StageName]json.RawMessage, len(s.CompletedResults))
	for k, v := range s.CompletedResults {
		cp := make(json.RawMessage, len(v))
		copy(cp, v)
		out.CompletedResults[k] = cp
	}
	out.ValidationFailures = make(map[StageName]int, len(s.ValidationFailures))
	for k, v := range s.ValidationFailures {
		out.ValidationFailures[k] = v
	}
	if s.Error != nil {
		errCopy := *s.Error
		out.Error = &errCopy
	}
	return &out
}

// SetStageResult marshals and stores a stage's typed output.
func (s *State) SetStageResult(stage StageName, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s result: %w", stage, err)
	}
	if s.CompletedResults == nil {
		s.CompletedResults = make(map[StageName]json.RawMessage)
	}
	s.CompletedResults[stage] = raw
	return nil
}

// StageResult unmarshals a stored stage output into out. It reports whether
// a result was present at all; unmarshal errors are returned distinctly so
// callers can treat them as schema drift (spec.md §4.F "validate against
// output schema").
func (s *State) StageResult(stage StageName, out interface{}) (bool, error) {
	raw, ok := s.CompletedResults[stage]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("unmarshal %s result: %w", stage, err)
	}
	return true, nil
}

// RecalculateTotals recomputes TotalTokens/TotalCost from completed stages,
// maintaining the invariant of spec.md §3.
func (s *State) RecalculateTotals() {
	var tokens int64
	var cost float64
	var duration int64
	for _, stage := range Stages {
		a, ok := s.StageAnalytics[stage]
		if !ok || a.Status != StageStatusCompleted {
			continue
		}
		tokens += a.TotalTokens
		cost += a.Cost
		duration += a.DurationMs
	}
	s.TotalTokens = tokens
	s.TotalCost = cost
	s.TotalDuration = duration
}

// IsTerminal reports whether the run has reached a state the Runner will
// never advance further (completed or failed).
func (s *State) IsTerminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}
