package pipeline

// State is a step of a summarize or ask request.
type State string

const (
	StateValidating   State = "validating"
	StateReserving    State = "reserving"
	StateDownloading  State = "downloading"
	StateWriting      State = "writing"
	StateVerifying    State = "verifying"
	StateTranscribing State = "transcribing"
	StateSummarizing  State = "summarizing"
	StateAnswering    State = "answering"
	StateCleaningUp   State = "cleaning_up"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// forward edges only; Failed is reachable from any non-terminal state
var transitions = map[State][]State{
	StateValidating:   {StateReserving, StateAnswering},
	StateReserving:    {StateDownloading, StateWriting},
	StateDownloading:  {StateVerifying},
	StateWriting:      {StateVerifying},
	StateVerifying:    {StateTranscribing},
	StateTranscribing: {StateSummarizing},
	StateSummarizing:  {StateCleaningUp},
	StateAnswering:    {StateDone},
	StateCleaningUp:   {StateDone},
}

func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

func (s State) canEnter(next State) bool {
	if s.Terminal() {
		return false
	}
	if next == StateFailed {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
