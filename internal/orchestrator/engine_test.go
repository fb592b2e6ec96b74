package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleuth/internal/gemini"
	"sleuth/internal/websearch"
)

// scriptedGenerator replies with canned responses in call order and records
// every prompt it saw.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	prompts []string

	streamChunks []string
	streamErr    error
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string, _ gemini.GenerateOptions) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	i := len(g.prompts) - 1
	if i < len(g.errs) && g.errs[i] != nil {
		return "", g.errs[i]
	}
	if i < len(g.replies) {
		return g.replies[i], nil
	}
	return "", gemini.ErrNoContent
}

func (g *scriptedGenerator) GenerateStream(_ context.Context, prompt string, _ gemini.GenerateOptions) (<-chan string, <-chan error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()

	chunks := make(chan string, len(g.streamChunks))
	errs := make(chan error, 1)
	for _, c := range g.streamChunks {
		chunks <- c
	}
	close(chunks)
	errs <- g.streamErr
	close(errs)
	return chunks, errs
}

func (g *scriptedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

// mapSearcher serves canned responses per query and counts calls.
type mapSearcher struct {
	mu        sync.Mutex
	responses map[string]*websearch.Response
	errors    map[string]error
	fallback  *websearch.Response
	calls     []string
}

func (s *mapSearcher) Search(_ context.Context, query string, _ websearch.Options) (*websearch.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, query)
	if err, ok := s.errors[query]; ok {
		return nil, err
	}
	if resp, ok := s.responses[query]; ok {
		return resp, nil
	}
	if s.fallback != nil {
		return s.fallback, nil
	}
	return &websearch.Response{}, nil
}

func (s *mapSearcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func items(urls ...string) []websearch.Item {
	out := make([]websearch.Item, len(urls))
	for i, u := range urls {
		out[i] = websearch.Item{Title: "title " + u, Link: u, Snippet: "snippet " + u}
	}
	return out
}

func resp(urls ...string) *websearch.Response {
	return &websearch.Response{Items: items(urls...)}
}

// analysisJSON builds a minimal analysis reply.
func analysisJSON(completeness int, needsMore bool, gaps ...string) string {
	g := ""
	for i, gap := range gaps {
		if i > 0 {
			g += ","
		}
		g += fmt.Sprintf("%q", gap)
	}
	return fmt.Sprintf(`{"completeness":%d,"informationGaps":[%s],"needsMoreSearch":%v,"confidenceLevel":90,"reasoning":"r"}`, completeness, g, needsMore)
}

func TestSearchCompleteRun(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{
		"1. solar capacity 2025\n2. solar growth statistics",
		analysisJSON(92, false),
		"Solar capacity grew substantially [1].",
	}}
	search := &mapSearcher{responses: map[string]*websearch.Response{
		"solar capacity 2025":     resp("https://a.example/one", "https://b.example/two"),
		"solar growth statistics": resp("https://b.example/two", "https://c.example/three"),
	}}

	var stops []StopReason
	eng := New(gen, search, Options{Observer: ObserverFunc(func(ev Event) {
		if ev.Type == EventStop {
			stops = append(stops, ev.StopReason)
		}
	})})

	answer, err := eng.Search(context.Background(), SearchContext{Query: "how fast is solar growing"})
	require.NoError(t, err)
	require.NotNil(t, answer)

	assert.Equal(t, "Solar capacity grew substantially [1].", answer.Answer)
	assert.Equal(t, FocusGeneral, answer.FocusMode)

	// Overlapping batches merge to unique URLs in arrival order.
	require.Len(t, answer.Sources, 3)
	urls := []string{answer.Sources[0].URL, answer.Sources[1].URL, answer.Sources[2].URL}
	assert.ElementsMatch(t, []string{"https://a.example/one", "https://b.example/two", "https://c.example/three"}, urls)
	assert.Equal(t, 1, answer.Sources[0].Rank)
	assert.Equal(t, 3, answer.Sources[2].Rank)

	assert.Equal(t, []StopReason{StopNoMoreSearchNeeded}, stops)
	// querygen + analysis + synthesis, no follow-up call.
	assert.Equal(t, 3, gen.callCount())
}

func TestSearchEmptyQuery(t *testing.T) {
	eng := New(&scriptedGenerator{}, &mapSearcher{}, Options{})
	_, err := eng.Search(context.Background(), SearchContext{Query: "   "})

	var oerr *Error
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, CodeInvalidContext, oerr.Code)
}

func TestSearchUnknownFocusMode(t *testing.T) {
	eng := New(&scriptedGenerator{}, &mapSearcher{}, Options{})
	_, err := eng.Search(context.Background(), SearchContext{Query: "q", FocusMode: "astrology"})

	var oerr *Error
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, CodeInvalidContext, oerr.Code)
}

func TestSearchAllInitialSearchesFail(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"1. q one\n2. q two"}}
	boom := errors.New("boom")
	search := &mapSearcher{errors: map[string]error{"q one": boom, "q two": boom}}

	eng := New(gen, search, Options{})
	_, err := eng.Search(context.Background(), SearchContext{Query: "anything"})

	var oerr *Error
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, CodeInitialSearchFailed, oerr.Code)
	assert.ErrorIs(t, err, boom)
}

func TestSearchQueryGenerationFailureFallsBack(t *testing.T) {
	gen := &scriptedGenerator{
		errs:    []error{errors.New("model down")},
		replies: []string{"", analysisJSON(95, false), "answer"},
	}
	search := &mapSearcher{fallback: resp("https://a.example/x")}

	eng := New(gen, search, Options{})
	answer, err := eng.Search(context.Background(), SearchContext{Query: "original question"})
	require.NoError(t, err)
	assert.Equal(t, "answer", answer.Answer)

	// The one search issued is the unmodified original query.
	assert.Equal(t, []string{"original question"}, search.calls)
}

func TestSearchCompletenessThresholdStops(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{
		"1. q one",
		analysisJSON(80, true, "still missing something"),
		"answer",
	}}
	search := &mapSearcher{fallback: resp("https://a.example/x")}

	var stop StopReason
	eng := New(gen, search, Options{CompletenessThreshold: 80, Observer: ObserverFunc(func(ev Event) {
		if ev.Type == EventStop {
			stop = ev.StopReason
		}
	})})

	_, err := eng.Search(context.Background(), SearchContext{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, StopCompletenessReached, stop)
	assert.Equal(t, 1, search.callCount())
}

func TestSearchIterationLimitBoundsFollowupRounds(t *testing.T) {
	// Analysis always demands more, so only MaxIterations ends the loop.
	needy := analysisJSON(30, true, "missing data on X")
	gen := &scriptedGenerator{replies: []string{
		"1. first round query",
		needy,
		"1. what data exists on X",
		needy,
		"answer",
	}}
	search := &mapSearcher{responses: map[string]*websearch.Response{
		"first round query":     resp("https://a.example/1"),
		"what data exists on X": resp("https://b.example/2"),
	}}

	var stop StopReason
	eng := New(gen, search, Options{MaxIterations: 2, Observer: ObserverFunc(func(ev Event) {
		if ev.Type == EventStop {
			stop = ev.StopReason
		}
	})})

	answer, err := eng.Search(context.Background(), SearchContext{Query: "tell me about X"})
	require.NoError(t, err)
	assert.Equal(t, StopIterationLimit, stop)

	// Exactly one follow-up search round happened.
	assert.Equal(t, 2, search.callCount())
	assert.Len(t, answer.Sources, 2)
}

func TestSearchDiminishingReturnsStops(t *testing.T) {
	needy := analysisJSON(30, true, "missing data")
	gen := &scriptedGenerator{replies: []string{
		"1. round one",
		needy,
		"1. round two",
		"answer",
	}}
	// The follow-up round returns only already-seen URLs.
	search := &mapSearcher{responses: map[string]*websearch.Response{
		"round one": resp("https://a.example/1", "https://b.example/2"),
		"round two": resp("https://a.example/1"),
	}}

	var stop StopReason
	eng := New(gen, search, Options{MaxIterations: 5, Observer: ObserverFunc(func(ev Event) {
		if ev.Type == EventStop {
			stop = ev.StopReason
		}
	})})

	answer, err := eng.Search(context.Background(), SearchContext{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, StopDiminishingReturns, stop)
	assert.Len(t, answer.Sources, 2)
}

func TestSearchFollowupSearchFailureStops(t *testing.T) {
	needy := analysisJSON(30, true, "missing data")
	gen := &scriptedGenerator{replies: []string{
		"1. round one",
		needy,
		"1. round two",
		"answer",
	}}
	search := &mapSearcher{
		responses: map[string]*websearch.Response{"round one": resp("https://a.example/1")},
		errors:    map[string]error{"round two": errors.New("quota exhausted")},
	}

	var stop StopReason
	eng := New(gen, search, Options{MaxIterations: 5, Observer: ObserverFunc(func(ev Event) {
		if ev.Type == EventStop {
			stop = ev.StopReason
		}
	})})

	answer, err := eng.Search(context.Background(), SearchContext{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, StopFollowupSearchFailed, stop)
	// The run still synthesizes over what it has.
	assert.Equal(t, "answer", answer.Answer)
}

func TestSearchAnalysisCallFailureIsImplicitStop(t *testing.T) {
	gen := &scriptedGenerator{
		replies: []string{"1. q one", "", "answer"},
		errs:    []error{nil, errors.New("model down"), nil},
	}
	search := &mapSearcher{fallback: resp("https://a.example/x")}

	var stop StopReason
	eng := New(gen, search, Options{Observer: ObserverFunc(func(ev Event) {
		if ev.Type == EventStop {
			stop = ev.StopReason
		}
	})})

	answer, err := eng.Search(context.Background(), SearchContext{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, StopAnalysisFailed, stop)
	assert.Equal(t, "answer", answer.Answer)
}

func TestSearchUnparseableAnalysisContinuesIterating(t *testing.T) {
	// A reply with no JSON degrades to "assume more search is needed"
	// instead of stopping, so a follow-up round still runs.
	gen := &scriptedGenerator{replies: []string{
		"1. round one",
		"I refuse to produce JSON today.",
		"1. round two",
		"answer",
	}}
	search := &mapSearcher{responses: map[string]*websearch.Response{
		"round one": resp("https://a.example/1"),
		"round two": resp("https://a.example/1"),
	}}

	var stops []StopReason
	eng := New(gen, search, Options{Observer: ObserverFunc(func(ev Event) {
		if ev.Type == EventStop {
			stops = append(stops, ev.StopReason)
		}
	})})

	answer, err := eng.Search(context.Background(), SearchContext{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "answer", answer.Answer)
	assert.NotContains(t, stops, StopAnalysisFailed)
	assert.Equal(t, []StopReason{StopDiminishingReturns}, stops)
	// querygen, analysis, follow-up generation, synthesis: the degraded
	// analysis did not short-circuit the follow-up round.
	assert.Equal(t, 4, gen.callCount())
}

func TestSearchEmptyInformationGapsStops(t *testing.T) {
	// Category gaps without information gaps still terminate the loop.
	analysis := `{"completeness": 40, "needsMoreSearch": true, "informationGaps": [],
		"gapCategories": {"factual": ["capacity numbers"], "contextual": [], "verification": [], "depth": []}}`
	gen := &scriptedGenerator{replies: []string{
		"1. q one",
		analysis,
		"answer",
	}}
	search := &mapSearcher{fallback: resp("https://a.example/x")}

	var stop StopReason
	eng := New(gen, search, Options{Observer: ObserverFunc(func(ev Event) {
		if ev.Type == EventStop {
			stop = ev.StopReason
		}
	})})

	_, err := eng.Search(context.Background(), SearchContext{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, StopNoGaps, stop)
	// querygen + analysis + synthesis: no follow-up generation call.
	assert.Equal(t, 3, gen.callCount())
	assert.Equal(t, 1, search.callCount())
}

func TestSearchMaxIterationsOneSkipsAnalysis(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{
		"1. q one",
		"answer",
	}}
	search := &mapSearcher{fallback: resp("https://a.example/x")}

	var stop StopReason
	eng := New(gen, search, Options{MaxIterations: 1, Observer: ObserverFunc(func(ev Event) {
		if ev.Type == EventStop {
			stop = ev.StopReason
		}
	})})

	answer, err := eng.Search(context.Background(), SearchContext{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, StopIterationDisabled, stop)
	// querygen + synthesis only: a ceiling of one means no analysis call.
	assert.Equal(t, 2, gen.callCount())
	assert.Equal(t, "answer", answer.Answer)
}

func TestSearchIterationDisabled(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{
		"1. q one",
		"answer",
	}}
	search := &mapSearcher{fallback: resp("https://a.example/x")}

	var stop StopReason
	eng := New(gen, search, Options{SingleShot: true, Observer: ObserverFunc(func(ev Event) {
		if ev.Type == EventStop {
			stop = ev.StopReason
		}
	})})

	answer, err := eng.Search(context.Background(), SearchContext{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, StopIterationDisabled, stop)
	// querygen + synthesis only: no analysis call was made.
	assert.Equal(t, 2, gen.callCount())
	assert.Equal(t, "answer", answer.Answer)
}

func TestSearchSynthesisFailureIsTerminal(t *testing.T) {
	gen := &scriptedGenerator{
		replies: []string{"1. q one", analysisJSON(95, false), ""},
		errs:    []error{nil, nil, errors.New("model overloaded")},
	}
	search := &mapSearcher{fallback: resp("https://a.example/x")}

	eng := New(gen, search, Options{})
	_, err := eng.Search(context.Background(), SearchContext{Query: "q"})

	var oerr *Error
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, CodeFinalGenerationFailed, oerr.Code)
}

func TestSearchSynthesisNoContent(t *testing.T) {
	gen := &scriptedGenerator{
		replies: []string{"1. q one", analysisJSON(95, false), ""},
		errs:    []error{nil, nil, fmt.Errorf("generate: %w", gemini.ErrNoContent)},
	}
	search := &mapSearcher{fallback: resp("https://a.example/x")}

	eng := New(gen, search, Options{})
	_, err := eng.Search(context.Background(), SearchContext{Query: "q"})

	var oerr *Error
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, CodeNoContent, oerr.Code)
}

func TestSearchStreamAssemblesChunks(t *testing.T) {
	gen := &scriptedGenerator{
		replies:      []string{"1. q one"},
		streamChunks: []string{"Solar ", "is ", "growing."},
	}
	search := &mapSearcher{fallback: resp("https://a.example/x")}

	var chunks []string
	var stop StopReason
	eng := New(gen, search, Options{Observer: ObserverFunc(func(ev Event) {
		switch ev.Type {
		case EventAnswerChunk:
			chunks = append(chunks, ev.Chunk)
		case EventStop:
			stop = ev.StopReason
		}
	})})

	answer, err := eng.SearchStream(context.Background(), SearchContext{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "Solar is growing.", answer.Answer)
	assert.Equal(t, []string{"Solar ", "is ", "growing."}, chunks)

	// Streaming is a single search pass: no analysis or follow-up rounds.
	assert.Equal(t, StopIterationDisabled, stop)
	assert.Equal(t, 2, gen.callCount())
	assert.Equal(t, 1, search.callCount())
}

func TestSearchStreamEmptyIsNoContent(t *testing.T) {
	gen := &scriptedGenerator{
		replies: []string{"1. q one"},
	}
	search := &mapSearcher{fallback: resp("https://a.example/x")}

	eng := New(gen, search, Options{})
	_, err := eng.SearchStream(context.Background(), SearchContext{Query: "q"})

	var oerr *Error
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, CodeNoContent, oerr.Code)
}

func TestValidateConfiguration(t *testing.T) {
	t.Run("both ok", func(t *testing.T) {
		gen := &scriptedGenerator{replies: []string{"OK"}}
		search := &mapSearcher{fallback: resp("https://a.example/x")}
		res := New(gen, search, Options{}).ValidateConfiguration(context.Background())
		assert.True(t, res.GenerationOK)
		assert.True(t, res.SearchOK)
		assert.True(t, res.OK)
	})

	t.Run("empty generation reply still counts", func(t *testing.T) {
		gen := &scriptedGenerator{errs: []error{gemini.ErrNoContent}}
		search := &mapSearcher{fallback: resp("https://a.example/x")}
		res := New(gen, search, Options{}).ValidateConfiguration(context.Background())
		assert.True(t, res.GenerationOK)
		assert.True(t, res.OK)
	})

	t.Run("search failure", func(t *testing.T) {
		gen := &scriptedGenerator{replies: []string{"OK"}}
		search := &mapSearcher{errors: map[string]error{"test": errors.New("403")}}
		res := New(gen, search, Options{}).ValidateConfiguration(context.Background())
		assert.True(t, res.GenerationOK)
		assert.False(t, res.SearchOK)
		assert.False(t, res.OK)
	})
}
