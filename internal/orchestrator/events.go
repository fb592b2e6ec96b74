package orchestrator

// EventType identifies a discrete progress event emitted during a run.
type EventType string

const (
	EventPhase            EventType = "phase"
	EventQueriesGenerated EventType = "queries_generated"
	EventBatchOutcome     EventType = "batch_outcome"
	EventAnalysis         EventType = "analysis"
	EventStop             EventType = "stop"
	EventSearching        EventType = "searching"
	EventSources          EventType = "sources"
	EventAnswerStarted    EventType = "answer_started"
	EventAnswerChunk      EventType = "answer_chunk"
	EventAnswerComplete   EventType = "answer_complete"
	EventError            EventType = "error"
)

// Phase names the controller states as they are entered.
type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseSearching    Phase = "searching"
	PhaseAnalyzing    Phase = "analyzing"
	PhaseDeciding     Phase = "deciding"
	PhaseSynthesizing Phase = "synthesizing"
	PhaseDone         Phase = "done"
	PhaseFailed       Phase = "failed"
)

// StopReason names the exit condition that ended the iteration loop.
type StopReason string

const (
	StopNoMoreSearchNeeded   StopReason = "no_more_search_needed"
	StopCompletenessReached  StopReason = "completeness_reached"
	StopNoGaps               StopReason = "no_gaps"
	StopNoFollowups          StopReason = "no_followups"
	StopFollowupSearchFailed StopReason = "followup_search_failed"
	StopDiminishingReturns   StopReason = "diminishing_returns"
	StopIterationLimit       StopReason = "iteration_limit"
	StopAnalysisFailed       StopReason = "analysis_failed"
	StopIterationDisabled    StopReason = "iteration_disabled"
)

// Event is one typed progress notification. Only the fields relevant to the
// event type are set.
type Event struct {
	Type      EventType
	RunID     string
	Iteration int

	Phase      Phase
	Queries    []string
	Query      string
	ResultSize int
	Analysis   *GapAnalysis
	StopReason StopReason
	Sources    []Source
	Chunk      string
	Answer     *FinalAnswer
	Err        error
}

// Observer receives progress events during a run. Implementations must be
// fast; the engine calls them inline.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// OnEvent implements Observer.
func (f ObserverFunc) OnEvent(ev Event) {
	f(ev)
}

func (e *Engine) emit(ev Event) {
	if e.opts.Observer != nil {
		e.opts.Observer.OnEvent(ev)
	}
}
