package stages

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bridgelab/reportpipeline/internal/domain/report"
	"github.com/bridgelab/reportpipeline/internal/llm"
)

func TestCruxesExecutorSkipsSubtopicsBelowSpeakerThreshold(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": `{"cruxClaim":"x","agree":[],"disagree":[],"noClearPosition":[]}`}}},
		})
	}))
	defer srv.Close()

	exec := NewCruxesExecutor(llm.NewClient(nil, nil))
	in := CruxesInput{Topics: []report.Topic{
		{Name: "Pets", Subtopics: []report.Subtopic{
			{Name: "Cats", Claims: []report.Claim{{Speaker: "A"}}},
		}},
	}}
	out, _, err := exec.Execute(context.Background(), in, llm.Config{Endpoint: srv.URL})
	require.NoError(t, err)
	require.False(t, called, "a single-speaker subtopic must not qualify for a crux")
	require.Empty(t, out.Cruxes)
}

func TestCruxesExecutorReconcilesQualifyingSubtopic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": `{"cruxClaim":"cats are great","agree":["1:Alice"],"disagree":["1:Alice"],"noClearPosition":[]}`}}},
		})
	}))
	defer srv.Close()

	exec := NewCruxesExecutor(llm.NewClient(nil, nil))
	in := CruxesInput{Topics: []report.Topic{
		{Name: "Pets", Subtopics: []report.Subtopic{
			{Name: "Cats", Claims: []report.Claim{{Speaker: "Alice"}, {Speaker: "Bob"}}},
		}},
	}}
	out, _, err := exec.Execute(context.Background(), in, llm.Config{Endpoint: srv.URL})
	require.NoError(t, err)
	crux, ok := out.Cruxes[SubtopicKey{TopicName: "Pets", SubtopicName: "Cats"}]
	require.True(t, ok)
	require.Empty(t, crux.Agree)
	require.Empty(t, crux.Disagree)
	require.Equal(t, []string{"1:Alice"}, crux.NoClearPosition, "ambiguous agree+disagree must land in noClearPosition with the agree payload")
}
