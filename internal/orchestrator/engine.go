package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"sleuth/internal/gemini"
	"sleuth/internal/logging"
	"sleuth/internal/websearch"
)

// Engine runs the search orchestration loop over a generator and a searcher.
// It is safe for concurrent use: each run keeps its state on the stack.
type Engine struct {
	generator Generator
	searcher  Searcher
	opts      Options
}

// New builds an engine. Zero option fields take the documented defaults.
func New(generator Generator, searcher Searcher, opts Options) *Engine {
	return &Engine{
		generator: generator,
		searcher:  searcher,
		opts:      opts.withDefaults(),
	}
}

func validateContext(sc SearchContext) error {
	if strings.TrimSpace(sc.Query) == "" {
		return newError(CodeInvalidContext, "query must not be empty", nil)
	}
	if sc.FocusMode != "" && !sc.FocusMode.Valid() {
		return newError(CodeInvalidContext, "unknown focus mode: "+string(sc.FocusMode), nil)
	}
	return nil
}

// run is the shared control flow behind Search and SearchStream. The only
// difference between the two entry points is how the final answer is
// produced, so that step is injected.
func (e *Engine) run(ctx context.Context, sc SearchContext,
	synthesize func(context.Context, SearchContext, []Source, string) (string, error)) (*FinalAnswer, error) {

	if err := validateContext(sc); err != nil {
		return nil, err
	}
	if sc.FocusMode == "" {
		sc.FocusMode = FocusGeneral
	}

	runID := uuid.NewString()
	started := time.Now()
	timer := logging.StartTimer(logging.CategoryOrchestrator, "run "+runID)
	defer timer.Stop()

	e.emit(Event{Type: EventPhase, RunID: runID, Phase: PhaseInitializing})
	logging.Orchestrator("run %s: %q (focus=%s)", runID, sc.Query, sc.FocusMode)

	// Initial round. A failed query generation is not fatal: the original
	// query alone still makes a valid first batch.
	queries, err := e.generateQueries(ctx, sc)
	if err != nil {
		logging.OrchestratorWarn("run %s: %v, falling back to original query", runID, err)
		queries = []string{sc.Query}
	}
	e.emit(Event{Type: EventQueriesGenerated, RunID: runID, Queries: queries})

	e.emit(Event{Type: EventPhase, RunID: runID, Phase: PhaseSearching})
	agg := newAggregator(e.opts.MaxAggregatedResults)
	outcomes := e.executeSearches(ctx, queries, sc)
	ok := successfulOutcomes(outcomes)
	e.emit(Event{Type: EventBatchOutcome, RunID: runID, ResultSize: batchItemCount(ok)})
	if len(ok) == 0 {
		e.emit(Event{Type: EventPhase, RunID: runID, Phase: PhaseFailed})
		return nil, newError(CodeInitialSearchFailed, "every initial search failed", firstError(outcomes))
	}
	agg.Merge(ok)

	// Iteration loop. A ceiling of one means the loop can never complete a
	// follow-up round, so it is skipped entirely, analysis call included.
	if e.opts.SingleShot || e.opts.MaxIterations <= 1 {
		e.emit(Event{Type: EventStop, RunID: runID, StopReason: StopIterationDisabled})
	} else {
		e.iterate(ctx, sc, agg, runID)
	}

	sources := sourcesFromItems(agg.Items())
	e.emit(Event{Type: EventSources, RunID: runID, Sources: sources})

	e.emit(Event{Type: EventPhase, RunID: runID, Phase: PhaseSynthesizing})
	e.emit(Event{Type: EventAnswerStarted, RunID: runID})
	answer, err := synthesize(ctx, sc, sources, runID)
	if err != nil {
		e.emit(Event{Type: EventError, RunID: runID, Err: err})
		e.emit(Event{Type: EventPhase, RunID: runID, Phase: PhaseFailed})
		return nil, err
	}

	final := &FinalAnswer{
		Query:     sc.Query,
		FocusMode: sc.FocusMode,
		Answer:    answer,
		Sources:   sources,
		Elapsed:   time.Since(started),
	}
	e.emit(Event{Type: EventAnswerComplete, RunID: runID, Answer: final})
	e.emit(Event{Type: EventPhase, RunID: runID, Phase: PhaseDone})
	logging.Orchestrator("run %s: done, %d sources in %s", runID, len(sources), final.Elapsed.Round(time.Millisecond))
	return final, nil
}

// iterate runs analyze/decide/search rounds until a stop condition fires.
// Every exit path emits exactly one stop event.
func (e *Engine) iterate(ctx context.Context, sc SearchContext, agg *aggregator, runID string) {
	for iteration := 1; ; iteration++ {
		e.emit(Event{Type: EventPhase, RunID: runID, Iteration: iteration, Phase: PhaseAnalyzing})
		analysis, err := e.analyzeCompleteness(ctx, sc, agg.Items())
		e.emit(Event{Type: EventAnalysis, RunID: runID, Iteration: iteration, Analysis: &analysis})
		if err != nil {
			e.emit(Event{Type: EventStop, RunID: runID, Iteration: iteration, StopReason: StopAnalysisFailed})
			return
		}

		e.emit(Event{Type: EventPhase, RunID: runID, Iteration: iteration, Phase: PhaseDeciding})
		switch {
		case !analysis.NeedsMoreSearch:
			e.emit(Event{Type: EventStop, RunID: runID, Iteration: iteration, StopReason: StopNoMoreSearchNeeded})
			return
		case analysis.Completeness >= e.opts.CompletenessThreshold:
			e.emit(Event{Type: EventStop, RunID: runID, Iteration: iteration, StopReason: StopCompletenessReached})
			return
		case len(analysis.InformationGaps) == 0:
			e.emit(Event{Type: EventStop, RunID: runID, Iteration: iteration, StopReason: StopNoGaps})
			return
		case iteration >= e.opts.MaxIterations:
			e.emit(Event{Type: EventStop, RunID: runID, Iteration: iteration, StopReason: StopIterationLimit})
			return
		}

		followups := e.generateFollowups(ctx, sc, analysis)
		if len(followups) == 0 {
			e.emit(Event{Type: EventStop, RunID: runID, Iteration: iteration, StopReason: StopNoFollowups})
			return
		}
		e.emit(Event{Type: EventQueriesGenerated, RunID: runID, Iteration: iteration, Queries: followups})

		e.emit(Event{Type: EventPhase, RunID: runID, Iteration: iteration, Phase: PhaseSearching})
		outcomes := e.executeSearches(ctx, followups, sc)
		ok := successfulOutcomes(outcomes)
		e.emit(Event{Type: EventBatchOutcome, RunID: runID, Iteration: iteration, ResultSize: batchItemCount(ok)})
		if len(ok) == 0 {
			e.emit(Event{Type: EventStop, RunID: runID, Iteration: iteration, StopReason: StopFollowupSearchFailed})
			return
		}

		// Diminishing returns compares unique URLs seen, not retained: the
		// aggregate cap must not hide genuinely new results.
		before := agg.UniqueURLCount()
		agg.Merge(ok)
		if agg.UniqueURLCount() <= before {
			e.emit(Event{Type: EventStop, RunID: runID, Iteration: iteration, StopReason: StopDiminishingReturns})
			return
		}
	}
}

// Search runs the full orchestration and returns the final answer.
func (e *Engine) Search(ctx context.Context, sc SearchContext) (*FinalAnswer, error) {
	return e.run(ctx, sc, func(ctx context.Context, sc SearchContext, sources []Source, _ string) (string, error) {
		return e.synthesizeAnswer(ctx, sc, sources)
	})
}

// SearchStream answers with a single search pass, streaming the final
// answer through the observer as answer_chunk events before returning it
// whole. Iterative refinement would delay the first chunk by whole search
// rounds, so the streaming path never iterates.
func (e *Engine) SearchStream(ctx context.Context, sc SearchContext) (*FinalAnswer, error) {
	se := *e
	se.opts.SingleShot = true
	return se.run(ctx, sc, se.synthesizeAnswerStream)
}

// ValidateConfiguration issues one minimal call against each backing service
// and reports which answered.
func (e *Engine) ValidateConfiguration(ctx context.Context) ValidationResult {
	var res ValidationResult

	_, err := e.generator.Generate(ctx, "Reply with OK.", gemini.GenerateOptions{MaxOutputTokens: 8})
	res.GenerationOK = err == nil || errors.Is(err, gemini.ErrNoContent)
	if !res.GenerationOK {
		logging.BootError("generation probe failed: %v", err)
	}

	_, err = e.searcher.Search(ctx, "test", websearch.Options{Count: 1})
	res.SearchOK = err == nil
	if !res.SearchOK {
		logging.BootError("search probe failed: %v", err)
	}

	res.OK = res.GenerationOK && res.SearchOK
	return res
}

func batchItemCount(outcomes []queryOutcome) int {
	n := 0
	for _, o := range outcomes {
		n += len(o.Response.Items)
	}
	return n
}

func firstError(outcomes []queryOutcome) error {
	for _, o := range outcomes {
		if o.Err != nil {
			return o.Err
		}
	}
	return nil
}

var _ Searcher = (*websearch.Client)(nil)
var _ Generator = (*gemini.Client)(nil)
