package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleuth/internal/websearch"
)

func TestParseGapAnalysisWellFormed(t *testing.T) {
	reply := `{
  "completeness": 65,
  "informationGaps": ["recent capacity numbers", "regional breakdown"],
  "gapCategories": {
    "factual": ["capacity numbers"],
    "contextual": [],
    "verification": ["confirm growth rate"],
    "depth": []
  },
  "followupTopics": ["2025 solar statistics"],
  "confidenceLevel": 80,
  "needsMoreSearch": true,
  "reasoning": "coverage is broad but shallow"
}`

	ga, err := parseGapAnalysis(reply)
	require.NoError(t, err)
	assert.Equal(t, 65, ga.Completeness)
	assert.Equal(t, []string{"recent capacity numbers", "regional breakdown"}, ga.InformationGaps)
	assert.Equal(t, []string{"capacity numbers"}, ga.GapCategories.Factual)
	assert.Equal(t, []string{"confirm growth rate"}, ga.GapCategories.Verification)
	assert.Empty(t, ga.GapCategories.Depth)
	assert.Equal(t, []string{"2025 solar statistics"}, ga.FollowupTopics)
	assert.Equal(t, 80, ga.ConfidenceLevel)
	assert.True(t, ga.NeedsMoreSearch)
	assert.Equal(t, "coverage is broad but shallow", ga.Reasoning)
}

func TestParseGapAnalysisTolerantOfProseAndFences(t *testing.T) {
	reply := "Here is my assessment:\n```json\n{\"completeness\": 90, \"needsMoreSearch\": false, \"reasoning\": \"done {brace} inside\"}\n```\nHope that helps!"

	ga, err := parseGapAnalysis(reply)
	require.NoError(t, err)
	assert.Equal(t, 90, ga.Completeness)
	assert.False(t, ga.NeedsMoreSearch)
	assert.Equal(t, "done {brace} inside", ga.Reasoning)
}

func TestParseGapAnalysisCoercions(t *testing.T) {
	reply := `{
  "completeness": "72",
  "confidenceLevel": 140,
  "informationGaps": [42, "real gap", ""],
  "needsMoreSearch": "yes"
}`

	ga, err := parseGapAnalysis(reply)
	require.NoError(t, err)
	assert.Equal(t, 72, ga.Completeness)
	assert.Equal(t, 100, ga.ConfidenceLevel)
	assert.Equal(t, []string{"42", "real gap"}, ga.InformationGaps)
	assert.True(t, ga.NeedsMoreSearch)
}

func TestCoerceBoolTruthiness(t *testing.T) {
	assert.True(t, coerceBool(true))
	assert.False(t, coerceBool(false))
	assert.False(t, coerceBool(nil))
	assert.False(t, coerceBool(""))
	assert.True(t, coerceBool("yes"))
	// Any non-empty string is truthy, the string "false" included.
	assert.True(t, coerceBool("false"))
	assert.True(t, coerceBool(float64(1)))
	assert.False(t, coerceBool(float64(0)))
}

func TestParseGapAnalysisClampsNegative(t *testing.T) {
	ga, err := parseGapAnalysis(`{"completeness": -10}`)
	require.NoError(t, err)
	assert.Equal(t, 0, ga.Completeness)
}

func TestParseGapAnalysisMissingNeedsMoreSearchIsFalse(t *testing.T) {
	ga, err := parseGapAnalysis(`{"completeness": 50}`)
	require.NoError(t, err)
	assert.False(t, ga.NeedsMoreSearch)
}

func TestParseGapAnalysisNoJSON(t *testing.T) {
	_, err := parseGapAnalysis("The results look fine to me.")
	assert.Error(t, err)
}

func TestAnalyzeCompletenessEmptyResultsShortCircuits(t *testing.T) {
	gen := &scriptedGenerator{}
	eng := New(gen, &mapSearcher{}, Options{})

	ga, err := eng.analyzeCompleteness(context.Background(), SearchContext{Query: "q", FocusMode: FocusGeneral}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, ga.Completeness)
	assert.True(t, ga.NeedsMoreSearch)
	require.Len(t, ga.InformationGaps, 1)

	// No model call was made for an empty aggregate.
	assert.Equal(t, 0, gen.callCount())
}

func TestAnalyzeCompletenessNoReadableTextShortCircuits(t *testing.T) {
	gen := &scriptedGenerator{}
	eng := New(gen, &mapSearcher{}, Options{})

	blank := []websearch.Item{
		{Link: "https://a.example/1", Title: "", Snippet: "   "},
		{Link: "https://b.example/2", HTMLTitle: "<b></b>", HTMLSnippet: "<i> </i>"},
	}
	ga, err := eng.analyzeCompleteness(context.Background(), SearchContext{Query: "q", FocusMode: FocusGeneral}, blank)
	require.NoError(t, err)
	assert.Equal(t, 10, ga.Completeness)
	assert.Equal(t, 20, ga.ConfidenceLevel)
	assert.True(t, ga.NeedsMoreSearch)
	assert.NotEmpty(t, ga.InformationGaps)

	// Text-free batches never reach the model.
	assert.Equal(t, 0, gen.callCount())
}

func TestAnalyzeCompletenessCallFailureReturnsFallback(t *testing.T) {
	gen := &scriptedGenerator{errs: []error{assert.AnError}}
	eng := New(gen, &mapSearcher{}, Options{})

	ga, err := eng.analyzeCompleteness(context.Background(), SearchContext{Query: "q", FocusMode: FocusGeneral}, items("https://a.example/1"))

	var oerr *Error
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, CodeAnalysisFailed, oerr.Code)
	assert.False(t, ga.NeedsMoreSearch)
}

func TestAnalyzeCompletenessUnparseableReplyDegrades(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"I refuse to produce JSON today."}}
	eng := New(gen, &mapSearcher{}, Options{})

	ga, err := eng.analyzeCompleteness(context.Background(), SearchContext{Query: "q", FocusMode: FocusGeneral}, items("https://a.example/1"))

	// Malformed output is not a failure: it degrades to "assume more
	// search is needed" so iteration can continue.
	require.NoError(t, err)
	assert.Equal(t, 50, ga.Completeness)
	assert.Equal(t, 30, ga.ConfidenceLevel)
	assert.True(t, ga.NeedsMoreSearch)
	require.Len(t, ga.InformationGaps, 1)
	assert.Contains(t, ga.InformationGaps[0], "could not be parsed")
}
