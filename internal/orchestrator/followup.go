package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"sleuth/internal/gemini"
	"sleuth/internal/logging"
)

// followupTemperature keeps follow-up generation slightly tighter than the
// initial round: the gaps already say what to look for.
const followupTemperature = 0.5

// Gap category weights, highest first. Factual holes hurt an answer more
// than missing depth, so they win ties for the remaining query slots.
const (
	scoreFactual      = 40
	scoreVerification = 35
	scoreDepth        = 30
	scoreContextual   = 25

	scoreMultiCategory = 20
	scoreTopicMatch    = 15
	scoreGapMatch      = 10
	scoreGoodLength    = 5
	scoreGoodWordCount = 5
)

// Keyword markers that associate a candidate query with a gap category.
var (
	factualKeywords      = []string{"what", "when", "who", "where", "how many", "statistics", "data", "number", "date", "fact"}
	verificationKeywords = []string{"verify", "confirm", "evidence", "source", "official", "study", "report", "according"}
	depthKeywords        = []string{"detailed", "in-depth", "comprehensive", "analysis", "explained", "mechanism", "how does", "why"}
	contextualKeywords   = []string{"background", "context", "history", "overview", "introduction", "origin", "timeline"}
)

func buildFollowupPrompt(sc SearchContext, analysis GapAnalysis, maxQueries int) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Earlier web searches for the question below left gaps. Generate up to %d targeted follow-up search queries that fill them.

Original question: %s

Identified gaps:
`, maxQueries, sc.Query)
	for _, gap := range analysis.InformationGaps {
		fmt.Fprintf(&b, "- %s\n", gap)
	}
	if len(analysis.FollowupTopics) > 0 {
		b.WriteString("\nSuggested topics:\n")
		for _, topic := range analysis.FollowupTopics {
			fmt.Fprintf(&b, "- %s\n", topic)
		}
	}
	b.WriteString(`
Each query must target a specific gap, not restate the original question.

Output ONLY a numbered list, one query per line:
1. first query
2. second query`)
	return b.String()
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// substringMatch reports whether either string contains the other,
// case-insensitively. Both sides are checked because model-suggested topics
// can be broader or narrower than the queries built from them.
func substringMatch(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	return strings.Contains(la, lb) || strings.Contains(lb, la)
}

// scoreFollowupQuery ranks a candidate by how directly it addresses the
// analysis. Category scores only apply when that category actually has gaps.
func scoreFollowupQuery(query string, analysis GapAnalysis) int {
	lower := strings.ToLower(query)
	score := 0
	categories := 0

	if len(analysis.GapCategories.Factual) > 0 && containsAny(lower, factualKeywords) {
		score += scoreFactual
		categories++
	}
	if len(analysis.GapCategories.Verification) > 0 && containsAny(lower, verificationKeywords) {
		score += scoreVerification
		categories++
	}
	if len(analysis.GapCategories.Depth) > 0 && containsAny(lower, depthKeywords) {
		score += scoreDepth
		categories++
	}
	if len(analysis.GapCategories.Contextual) > 0 && containsAny(lower, contextualKeywords) {
		score += scoreContextual
		categories++
	}
	if categories > 1 {
		score += scoreMultiCategory
	}

	for _, topic := range analysis.FollowupTopics {
		if substringMatch(query, topic) {
			score += scoreTopicMatch
		}
	}
	for _, gap := range analysis.InformationGaps {
		if substringMatch(query, gap) {
			score += scoreGapMatch
		}
	}

	if n := len(query); n >= 20 && n <= 80 {
		score += scoreGoodLength
	}
	if w := len(strings.Fields(query)); w >= 3 && w <= 8 {
		score += scoreGoodWordCount
	}
	return score
}

// rankFollowupQueries orders candidates by descending score. The sort is
// stable so equally scored candidates keep model order.
func rankFollowupQueries(candidates []string, analysis GapAnalysis, max int) []string {
	type scored struct {
		query string
		score int
	}
	ranked := make([]scored, len(candidates))
	for i, q := range candidates {
		ranked[i] = scored{query: q, score: scoreFollowupQuery(q, analysis)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	if len(ranked) > max {
		ranked = ranked[:max]
	}
	out := make([]string, len(ranked))
	for i, s := range ranked {
		out[i] = s.query
	}
	return out
}

// generateFollowups turns a gap analysis into ranked follow-up queries. When
// the analysis signals stop, or lists no information gaps, it returns nil
// without a model call. A generation failure also yields nil: follow-ups are
// best effort and their absence just ends iteration.
func (e *Engine) generateFollowups(ctx context.Context, sc SearchContext, analysis GapAnalysis) []string {
	if !analysis.NeedsMoreSearch || len(analysis.InformationGaps) == 0 {
		return nil
	}

	prompt := buildFollowupPrompt(sc, analysis, e.opts.MaxFollowupQueries)
	reply, err := e.generator.Generate(ctx, prompt, gemini.GenerateOptions{Temperature: followupTemperature})
	if err != nil {
		logging.OrchestratorWarn("follow-up generation failed: %v", err)
		return nil
	}

	// Every candidate is scored; truncation happens after ranking so a
	// high scorer late in the reply is never lost.
	candidates := parseQueryList(reply, sc.Query, 0)
	queries := rankFollowupQueries(candidates, analysis, e.opts.MaxFollowupQueries)
	logging.OrchestratorDebug("ranked %d follow-up queries from %d candidates", len(queries), len(candidates))
	return queries
}
