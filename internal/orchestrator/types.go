// Package orchestrator implements the iterative search orchestration engine:
// it decides what to search, how many times, how to merge and deduplicate
// results, when coverage is good enough, and what to search for next when it
// is not.
package orchestrator

import (
	"context"
	"time"

	"sleuth/internal/gemini"
	"sleuth/internal/websearch"
)

// FocusMode adjusts prompt wording, completeness criteria, and generation
// temperature for a named domain preset.
type FocusMode string

const (
	FocusGeneral   FocusMode = "general"
	FocusAcademic  FocusMode = "academic"
	FocusCreative  FocusMode = "creative"
	FocusNews      FocusMode = "news"
	FocusTechnical FocusMode = "technical"
	FocusMedical   FocusMode = "medical"
	FocusLegal     FocusMode = "legal"
)

// Valid reports whether the focus mode is one of the known presets.
func (f FocusMode) Valid() bool {
	switch f {
	case FocusGeneral, FocusAcademic, FocusCreative, FocusNews, FocusTechnical, FocusMedical, FocusLegal:
		return true
	}
	return false
}

// synthesisTemperature returns the generation temperature for final answers.
// Domains requiring literalness run colder.
func (f FocusMode) synthesisTemperature() float64 {
	switch f {
	case FocusAcademic:
		return 0.3
	case FocusCreative:
		return 0.9
	case FocusNews:
		return 0.5
	case FocusTechnical:
		return 0.2
	case FocusMedical, FocusLegal:
		return 0.1
	default:
		return 0.7
	}
}

// SearchContext describes one orchestration request. Immutable for the
// duration of a run.
type SearchContext struct {
	Query     string
	FocusMode FocusMode
	Language  string
	Region    string
}

// GapCategories groups named information gaps by kind.
type GapCategories struct {
	Factual      []string `json:"factual"`
	Contextual   []string `json:"contextual"`
	Verification []string `json:"verification"`
	Depth        []string `json:"depth"`
}

// GapAnalysis is the completeness assessment of an aggregated result set.
// Numeric fields are always within [0,100]; slice fields are never nil.
type GapAnalysis struct {
	Completeness    int
	InformationGaps []string
	GapCategories   GapCategories
	FollowupTopics  []string
	ConfidenceLevel int
	NeedsMoreSearch bool
	Reasoning       string
}

// Source is a cited search result in the final answer, ranked by aggregation
// order.
type Source struct {
	Title      string
	URL        string
	Snippet    string
	DisplayURL string
	Rank       int
}

// FinalAnswer is the synthesized, citation-backed result of one run.
type FinalAnswer struct {
	Query     string
	FocusMode FocusMode
	Answer    string
	Sources   []Source
	Elapsed   time.Duration
}

// ValidationResult reports the outcome of a configuration probe.
type ValidationResult struct {
	GenerationOK bool
	SearchOK     bool
	OK           bool
}

// Generator is the generative-language capability the engine consumes.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts gemini.GenerateOptions) (string, error)
	GenerateStream(ctx context.Context, prompt string, opts gemini.GenerateOptions) (<-chan string, <-chan error)
}

// Searcher is the web search capability the engine consumes.
type Searcher interface {
	Search(ctx context.Context, query string, opts websearch.Options) (*websearch.Response, error)
}

// Options bounds one engine instance. Zero values are replaced by defaults.
type Options struct {
	MaxGeneratedQueries   int
	MaxFollowupQueries    int
	TotalResultBudget     int
	MaxAggregatedResults  int
	MaxIterations         int
	CompletenessThreshold int
	// SingleShot disables the analyze/follow-up loop: one search round,
	// then straight to synthesis.
	SingleShot bool
	SafeMode   string
	Observer   Observer
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		MaxGeneratedQueries:   5,
		MaxFollowupQueries:    5,
		TotalResultBudget:     20,
		MaxAggregatedResults:  30,
		MaxIterations:         3,
		CompletenessThreshold: 80,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxGeneratedQueries <= 0 {
		o.MaxGeneratedQueries = def.MaxGeneratedQueries
	}
	if o.MaxFollowupQueries <= 0 {
		o.MaxFollowupQueries = def.MaxFollowupQueries
	}
	if o.TotalResultBudget <= 0 {
		o.TotalResultBudget = def.TotalResultBudget
	}
	if o.MaxAggregatedResults <= 0 {
		o.MaxAggregatedResults = def.MaxAggregatedResults
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = def.MaxIterations
	}
	if o.CompletenessThreshold <= 0 {
		o.CompletenessThreshold = def.CompletenessThreshold
	}
	return o
}

// queryOutcome is the settled result of one query in a fan-out batch.
type queryOutcome struct {
	Query    string
	Response *websearch.Response
	Err      error
}
