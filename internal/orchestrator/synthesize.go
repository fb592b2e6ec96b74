package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sleuth/internal/gemini"
)

var focusAnswerGuidance = map[FocusMode]string{
	FocusGeneral:   "Write a clear, balanced answer for a general audience.",
	FocusAcademic:  "Write in a scholarly register. Distinguish established findings from open questions.",
	FocusCreative:  "Write an engaging answer. Surprising angles and concrete examples are welcome.",
	FocusNews:      "Lead with the most recent developments and attribute claims to their outlets.",
	FocusTechnical: "Be precise. Include concrete details, terminology, and caveats practitioners need.",
	FocusMedical:   "Be conservative and literal. Note evidence quality and advise consulting professionals.",
	FocusLegal:     "Be literal and jurisdiction-aware. Note where the law varies and advise consulting counsel.",
}

// buildSynthesisPrompt numbers every source and instructs inline [n]
// citations so the answer can be traced back to the ranked source list.
func buildSynthesisPrompt(sc SearchContext, sources []Source) string {
	var b strings.Builder
	fmt.Fprintf(&b, `Answer the question below using ONLY the numbered sources provided. Cite sources inline as [1], [2], etc. If the sources do not cover part of the question, say so rather than inventing.

Question: %s

%s

Sources:
`, sc.Query, focusAnswerGuidance[sc.FocusMode])
	for _, s := range sources {
		fmt.Fprintf(&b, "[%d] %s\n%s\n%s\n\n", s.Rank, s.Title, s.URL, s.Snippet)
	}
	b.WriteString("Answer:")
	return b.String()
}

// synthesizeAnswer produces the final answer over the ranked sources. This
// is the only terminal generation step: failure here fails the whole run.
func (e *Engine) synthesizeAnswer(ctx context.Context, sc SearchContext, sources []Source) (string, error) {
	prompt := buildSynthesisPrompt(sc, sources)
	opts := gemini.GenerateOptions{Temperature: sc.FocusMode.synthesisTemperature()}

	answer, err := e.generator.Generate(ctx, prompt, opts)
	if err != nil {
		if errors.Is(err, gemini.ErrNoContent) {
			return "", newError(CodeNoContent, "synthesis produced no content", err)
		}
		return "", newError(CodeFinalGenerationFailed, "answer synthesis failed", err)
	}
	return answer, nil
}

// synthesizeAnswerStream streams the final answer chunk by chunk, forwarding
// each chunk to the observer and returning the assembled whole.
func (e *Engine) synthesizeAnswerStream(ctx context.Context, sc SearchContext, sources []Source, runID string) (string, error) {
	prompt := buildSynthesisPrompt(sc, sources)
	opts := gemini.GenerateOptions{Temperature: sc.FocusMode.synthesisTemperature()}

	chunks, errs := e.generator.GenerateStream(ctx, prompt, opts)

	var b strings.Builder
	for chunk := range chunks {
		b.WriteString(chunk)
		e.emit(Event{Type: EventAnswerChunk, RunID: runID, Chunk: chunk})
	}
	if err := <-errs; err != nil {
		if errors.Is(err, gemini.ErrNoContent) {
			return "", newError(CodeNoContent, "synthesis stream produced no content", err)
		}
		return "", newError(CodeFinalGenerationFailed, "answer synthesis stream failed", err)
	}
	if b.Len() == 0 {
		return "", newError(CodeNoContent, "synthesis stream produced no content", gemini.ErrNoContent)
	}
	return b.String(), nil
}
