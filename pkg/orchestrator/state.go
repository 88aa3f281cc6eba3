package orchestrator

import "xarchiver/pkg/report"

// State is a step of the per-URL state machine
type State string

const (
	StateSkipped        State = "skipped"
	StateNavigating     State = "navigating"
	StateExtracting     State = "extracting"
	StateFetchingAssets State = "fetching_assets"
	StatePersisting     State = "persisting"
	StateSucceeded      State = "succeeded"
	StateFailed         State = "failed"
	// StateInterrupted ends a URL cut short by cancellation. Nothing is
	// written to the ledger, so the next run picks the URL up again.
	StateInterrupted    State = "interrupted"
)

// Terminal reports whether no further transition follows s
func (s State) Terminal() bool {
	switch s {
	case StateSkipped, StateSucceeded, StateFailed, StateInterrupted:
		return true
	}
	return false
}

// Observer follows a batch as it runs. Calls come from the batch goroutine.
type Observer interface {
	// OnStart is called before a URL is processed; index is zero-based
	OnStart(url string, index, total int)
	// OnState is called on every state transition
	OnState(url string, state State)
	// OnDone is called with the terminal state and outcome. An interrupted
	// URL gets OnState(StateInterrupted) and no OnDone.
	OnDone(url string, state State, outcome report.Outcome)
}

// Pauser is implemented by observers that can hold the batch between URLs
type Pauser interface {
	IsPaused() bool
}

// Notifier is told once when a batch finishes
type Notifier interface {
	NotifyBatch(result BatchResult)
}

// NopObserver ignores every event
type NopObserver struct{}

func (NopObserver) OnStart(string, int, int)             {}
func (NopObserver) OnState(string, State)                {}
func (NopObserver) OnDone(string, State, report.Outcome) {}

// Observers fans events out to several observers
type Observers []Observer

func (obs Observers) OnStart(url string, index, total int) {
	for _, o := range obs {
		o.OnStart(url, index, total)
	}
}

func (obs Observers) OnState(url string, state State) {
	for _, o := range obs {
		o.OnState(url, state)
	}
}

func (obs Observers) OnDone(url string, state State, outcome report.Outcome) {
	for _, o := range obs {
		o.OnDone(url, state, outcome)
	}
}

// IsPaused reports whether any member is paused
func (obs Observers) IsPaused() bool {
	for _, o := range obs {
		if p, ok := o.(Pauser); ok && p.IsPaused() {
			return true
		}
	}
	return false
}
