package pipeline

// State is a step of the scrape state machine.
type State string

const (
	StateInit         State = "init"
	StateFetchingPage State = "fetching_page"
	StateExtracting   State = "extracting_listings"
	StateResolving    State = "resolving_contacts"
	StateFlushing     State = "flushing"
	StateDone         State = "done"
	StateInterrupted  State = "interrupted"
	StateAborted      State = "aborted"
)

// Terminal reports whether no further transitions can follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateInterrupted || s == StateAborted
}

// Summary describes how a run ended.
type Summary struct {
	State State

	// Pages is the number of pages whose listings were all resolved.
	Pages    int
	Listings int
	// Written is the number of data rows persisted by this run.
	Written int
	// Lost is the number of resolved rows that were never persisted.
	Lost int

	// ResumePage is the page a follow-up run should start from, or 0 after Done.
	ResumePage int
}
