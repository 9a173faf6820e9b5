package stages

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func taxonomyPetsCats() ClusteringOutput {
	return ClusteringOutput{Topics: []TaxonomyTopic{
		{Name: "Pets", ShortDescription: "about pets", Subtopics: []TaxonomySubtopic{
			{Name: "Cats", ShortDescription: "about cats"},
		}},
	}}
}

func TestFilterAgainstTaxonomyDropsUnknownTopic(t *testing.T) {
	raw := ExtractionOutput{Topics: map[string]ExtractedTopic{
		"Pets": {Subtopics: map[string]ExtractedSubtopic{
			"Cats": {Claims: []ExtractedClaim{
				{Text: "Cats are independent", Quote: "independent", Speaker: "A", TopicName: "Pets", SubtopicName: "Cats", SourceCommentID: "c1"},
			}},
		}},
		"Weather": {Subtopics: map[string]ExtractedSubtopic{
			"Rain": {Claims: []ExtractedClaim{
				{Text: "It rains a lot", TopicName: "Weather", SubtopicName: "Rain"},
			}},
		}},
	}}

	out := filterAgainstTaxonomy(raw, taxonomyPetsCats())
	require.Contains(t, out.Topics, "Pets")
	require.NotContains(t, out.Topics, "Weather")
	require.Equal(t, 1, out.Topics["Pets"].Total)
	require.Len(t, out.Topics["Pets"].Subtopics["Cats"].Claims, 1)
}

func TestFilterAgainstTaxonomyDropsMismatchedSubtopicAssignment(t *testing.T) {
	raw := ExtractionOutput{Topics: map[string]ExtractedTopic{
		"Pets": {Subtopics: map[string]ExtractedSubtopic{
			"Cats": {Claims: []ExtractedClaim{
				{Text: "mismatched", TopicName: "Pets", SubtopicName: "Dogs", SourceCommentID: "c2"},
			}},
		}},
	}}

	out := filterAgainstTaxonomy(raw, taxonomyPetsCats())
	require.NotContains(t, out.Topics, "Pets", "subtopic with no surviving claims must not appear")
}

func TestFilterAgainstTaxonomyScenarioS1(t *testing.T) {
	raw := ExtractionOutput{Topics: map[string]ExtractedTopic{
		"Pets": {Subtopics: map[string]ExtractedSubtopic{
			"Cats": {Claims: []ExtractedClaim{
				{Text: "cats are independent", Quote: "I love cats because they are independent", Speaker: "A", TopicName: "Pets", SubtopicName: "Cats", SourceCommentID: "c1"},
			}},
		}},
	}}

	out := filterAgainstTaxonomy(raw, taxonomyPetsCats())
	require.Len(t, out.Topics, 1)
	claim := out.Topics["Pets"].Subtopics["Cats"].Claims[0]
	require.Equal(t, "Pets", claim.TopicName)
	require.Equal(t, "Cats", claim.SubtopicName)
	require.Equal(t, "c1", claim.SourceCommentID)
}
