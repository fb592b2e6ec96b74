package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"sleuth/internal/gemini"
	"sleuth/internal/logging"
	"sleuth/internal/websearch"
)

// analyzerTemperature keeps gap analysis near-deterministic.
const analyzerTemperature = 0.2

// maxResultsInAnalysisPrompt bounds prompt size when summarizing results.
const maxResultsInAnalysisPrompt = 20

var focusCompletenessCriteria = map[FocusMode]string{
	FocusGeneral:   "the main question is answered from multiple independent sources",
	FocusAcademic:  "scholarly sources cover methodology, findings, and limitations",
	FocusCreative:  "diverse perspectives, examples, and approaches are represented",
	FocusNews:      "recent primary reporting covers the event from more than one outlet",
	FocusTechnical: "implementation details, official documentation, and known caveats are covered",
	FocusMedical:   "clinical evidence, guidelines, and contraindications are covered",
	FocusLegal:     "applicable statutes, precedent, and jurisdictional differences are covered",
}

func buildAnalysisPrompt(sc SearchContext, items []websearch.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are evaluating whether collected web search results sufficiently answer a question.

Question: %s

Completeness for this question means: %s.

Collected results:
`, sc.Query, focusCompletenessCriteria[sc.FocusMode])

	n := len(items)
	if n > maxResultsInAnalysisPrompt {
		n = maxResultsInAnalysisPrompt
	}
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, items[i].CleanTitle(), items[i].CleanSnippet())
	}

	b.WriteString(`
Respond with ONLY a JSON object, no markdown fences, in this exact shape:
{
  "completeness": <0-100>,
  "informationGaps": ["..."],
  "gapCategories": {
    "factual": ["..."],
    "contextual": ["..."],
    "verification": ["..."],
    "depth": ["..."]
  },
  "followupTopics": ["..."],
  "confidenceLevel": <0-100>,
  "needsMoreSearch": <true|false>,
  "reasoning": "..."
}`)
	return b.String()
}

// extractJSONObject returns the first balanced top-level JSON object in s,
// tolerating surrounding prose and markdown fences. String contents are
// respected so braces inside values do not unbalance the scan.
func extractJSONObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func clampScore(n int) int {
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// coerceInt accepts JSON numbers and numeric strings.
func coerceInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return int(f), true
		}
	}
	return 0, false
}

// coerceBool applies truthiness: absent values and empty strings are false,
// any non-empty string (including "false") is true, numbers are true when
// non-zero.
func coerceBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b != ""
	case float64:
		return b != 0
	}
	return false
}

// coerceStringSlice stringifies array elements, dropping empties.
func coerceStringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, el := range arr {
		var s string
		switch e := el.(type) {
		case string:
			s = strings.TrimSpace(e)
		case float64:
			s = strconv.FormatFloat(e, 'f', -1, 64)
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseGapAnalysis decodes a model reply into a GapAnalysis, coercing loosely
// typed fields and clamping scores to [0,100].
func parseGapAnalysis(reply string) (GapAnalysis, error) {
	obj, ok := extractJSONObject(reply)
	if !ok {
		return GapAnalysis{}, fmt.Errorf("no JSON object in analysis reply")
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return GapAnalysis{}, fmt.Errorf("decode analysis: %w", err)
	}

	ga := GapAnalysis{
		InformationGaps: coerceStringSlice(raw["informationGaps"]),
		FollowupTopics:  coerceStringSlice(raw["followupTopics"]),
		NeedsMoreSearch: coerceBool(raw["needsMoreSearch"]),
	}
	if n, ok := coerceInt(raw["completeness"]); ok {
		ga.Completeness = clampScore(n)
	}
	if n, ok := coerceInt(raw["confidenceLevel"]); ok {
		ga.ConfidenceLevel = clampScore(n)
	}
	if s, ok := raw["reasoning"].(string); ok {
		ga.Reasoning = strings.TrimSpace(s)
	}
	if cats, ok := raw["gapCategories"].(map[string]any); ok {
		ga.GapCategories = GapCategories{
			Factual:      coerceStringSlice(cats["factual"]),
			Contextual:   coerceStringSlice(cats["contextual"]),
			Verification: coerceStringSlice(cats["verification"]),
			Depth:        coerceStringSlice(cats["depth"]),
		}
	}
	return ga, nil
}

// emptyResultsAnalysis is the short-circuit for an empty aggregate: nothing
// to grade, everything is a gap.
func emptyResultsAnalysis(sc SearchContext) GapAnalysis {
	return GapAnalysis{
		Completeness:    0,
		InformationGaps: []string{"No search results were collected for: " + sc.Query},
		FollowupTopics:  []string{sc.Query},
		ConfidenceLevel: 0,
		NeedsMoreSearch: true,
		Reasoning:       "no results available to analyze",
	}
}

// noTextAnalysis is the short-circuit for batches whose every item strips to
// empty text: there is nothing to grade, but something was found.
func noTextAnalysis(sc SearchContext) GapAnalysis {
	return GapAnalysis{
		Completeness:    10,
		InformationGaps: []string{"Search results contained no readable text for: " + sc.Query},
		FollowupTopics:  []string{sc.Query},
		ConfidenceLevel: 20,
		NeedsMoreSearch: true,
		Reasoning:       "results present but no extractable text content",
	}
}

// fallbackAnalysis is returned when the analysis call itself fails. It reads
// as an implicit stop: without a reachable analyzer the engine must not keep
// spending searches.
func fallbackAnalysis() GapAnalysis {
	return GapAnalysis{
		Completeness:    50,
		ConfidenceLevel: 0,
		NeedsMoreSearch: false,
		Reasoning:       "gap analysis unavailable, proceeding with collected results",
	}
}

// degradedAnalysis replaces an analyzer reply that was not well-formed JSON.
// Malformed model output is never a failure: the engine assumes more search
// is needed and carries on.
func degradedAnalysis(parseErr error) GapAnalysis {
	return GapAnalysis{
		Completeness:    50,
		InformationGaps: []string{fmt.Sprintf("Analysis output could not be parsed: %v", parseErr)},
		ConfidenceLevel: 30,
		NeedsMoreSearch: true,
		Reasoning:       "analysis reply was not well-formed JSON",
	}
}

// hasReadableText reports whether any item yields text after stripping.
func hasReadableText(items []websearch.Item) bool {
	for _, item := range items {
		if item.CleanTitle() != "" || item.CleanSnippet() != "" {
			return true
		}
	}
	return false
}

// analyzeCompleteness grades the aggregate against the question. Empty or
// text-free aggregates short-circuit without a model call. A failed call
// returns the fallback analysis alongside the error so the controller can
// record why it stopped; an unparseable reply degrades to a deterministic
// analysis with no error.
func (e *Engine) analyzeCompleteness(ctx context.Context, sc SearchContext, items []websearch.Item) (GapAnalysis, error) {
	if len(items) == 0 {
		return emptyResultsAnalysis(sc), nil
	}
	if !hasReadableText(items) {
		return noTextAnalysis(sc), nil
	}

	prompt := buildAnalysisPrompt(sc, items)
	reply, err := e.generator.Generate(ctx, prompt, gemini.GenerateOptions{Temperature: analyzerTemperature})
	if err != nil {
		logging.OrchestratorWarn("completeness analysis call failed: %v", err)
		return fallbackAnalysis(), newError(CodeAnalysisFailed, "completeness analysis call failed", err)
	}

	ga, err := parseGapAnalysis(reply)
	if err != nil {
		logging.OrchestratorWarn("completeness analysis unparseable, degrading: %v", err)
		return degradedAnalysis(err), nil
	}

	logging.OrchestratorDebug("analysis: completeness=%d gaps=%d needsMore=%v",
		ga.Completeness, len(ga.InformationGaps), ga.NeedsMoreSearch)
	return ga, nil
}
