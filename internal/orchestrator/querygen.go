package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"sleuth/internal/gemini"
	"sleuth/internal/logging"
)

// queryGenTemperature keeps initial query generation moderately diverse.
const queryGenTemperature = 0.7

var focusQueryGuidance = map[FocusMode]string{
	FocusGeneral:   "Favor broadly phrased queries a typical web user would type.",
	FocusAcademic:  "Use scholarly terminology and include queries likely to surface peer-reviewed sources.",
	FocusCreative:  "Include queries exploring unconventional angles, examples, and inspiration.",
	FocusNews:      "Phrase queries to surface recent reporting; include time-sensitive wording.",
	FocusTechnical: "Use precise technical vocabulary; include queries targeting documentation and implementation detail.",
	FocusMedical:   "Use clinical terminology; include queries likely to surface medical literature and guidelines.",
	FocusLegal:     "Use legal terminology; include queries likely to surface statutes, case law, and official guidance.",
}

func buildQueryGenPrompt(sc SearchContext, maxQueries int) string {
	guidance := focusQueryGuidance[sc.FocusMode]
	return fmt.Sprintf(`You are a search query strategist. Generate exactly %d diverse web search queries for the question below.

Question: %s

Diversify the queries across these strategies:
1. A direct question form of the original
2. Key terms extracted as a keyword query
3. A synonym or reworded variant
4. A query targeting one specific facet of the question
5. A query naming a specific entity involved

%s

Output ONLY a numbered list, one query per line, in the form:
1. first query
2. second query

No commentary before or after the list.`, maxQueries, sc.Query, guidance)
}

// numbered list lines: "1. query" or "2) query"
var numberedLinePattern = regexp.MustCompile(`^\s*(\d+)[.)]\s*(.+)$`)

// meta-commentary markers excluded by the free-line fallback parser.
var metaLineMarkers = []string{
	"here are",
	"here's",
	"here is",
	"cannot generate",
	"i cannot",
	"i'm unable",
	"search queries",
	"as requested",
}

func stripQuotes(s string) string {
	return strings.Trim(strings.TrimSpace(s), "\"'“”‘’`")
}

// parseQueryList extracts queries from a model reply. Numbered-list lines are
// preferred; if none match, any line of at least 5 characters that is not
// meta-commentary counts. Lines equal to the original query are discarded.
// The result is capped at maxQueries (non-positive means uncapped) and may
// be empty.
func parseQueryList(reply, originalQuery string, maxQueries int) []string {
	original := strings.ToLower(strings.TrimSpace(originalQuery))
	lines := strings.Split(reply, "\n")

	var queries []string
	seen := make(map[string]bool)
	appendQuery := func(q string) {
		q = stripQuotes(q)
		if q == "" || strings.ToLower(q) == original {
			return
		}
		key := strings.ToLower(q)
		if seen[key] {
			return
		}
		seen[key] = true
		queries = append(queries, q)
	}

	for _, line := range lines {
		if m := numberedLinePattern.FindStringSubmatch(line); m != nil {
			appendQuery(m[2])
		}
	}

	if len(queries) == 0 {
		// Permissive fallback: treat plausible free lines as queries.
		for _, line := range lines {
			line = strings.TrimSpace(line)
			if len(line) < 5 {
				continue
			}
			lower := strings.ToLower(line)
			meta := false
			for _, marker := range metaLineMarkers {
				if strings.Contains(lower, marker) {
					meta = true
					break
				}
			}
			if meta {
				continue
			}
			appendQuery(line)
		}
	}

	if maxQueries > 0 && len(queries) > maxQueries {
		queries = queries[:maxQueries]
	}
	return queries
}

// generateQueries turns the user query into up to MaxGeneratedQueries diverse
// search queries. It never returns zero queries: pathological model output
// degrades to the original query. A generation failure surfaces as a typed
// error; the caller falls back to the unmodified original query.
func (e *Engine) generateQueries(ctx context.Context, sc SearchContext) ([]string, error) {
	prompt := buildQueryGenPrompt(sc, e.opts.MaxGeneratedQueries)

	reply, err := e.generator.Generate(ctx, prompt, gemini.GenerateOptions{Temperature: queryGenTemperature})
	if err != nil {
		return nil, newError(CodeQueryGenerationFailed, "query generation call failed", err)
	}

	queries := parseQueryList(reply, sc.Query, e.opts.MaxGeneratedQueries)
	if len(queries) == 0 {
		logging.OrchestratorWarn("query generation produced nothing usable, using original query")
		queries = []string{sc.Query}
	}

	logging.OrchestratorDebug("generated %d queries for %q", len(queries), sc.Query)
	return queries, nil
}
