package store

// Phase tags the states of an optimistic write. Every mutation emits
// Pending synchronously with a provisional copy of the record before the
// database write starts, then exactly one of Committed or RolledBack.
type Phase int

const (
	PhasePending Phase = iota
	PhaseCommitted
	PhaseRolledBack
)

func (p Phase) String() string {
	switch p {
	case PhasePending:
		return "pending"
	case PhaseCommitted:
		return "committed"
	case PhaseRolledBack:
		return "rolled_back"
	default:
		return "unknown"
	}
}

// Mutation is one emission on a write's result channel. On RolledBack,
// Record holds the state to restore and Err the reason.
type Mutation[T any] struct {
	Phase  Phase
	Record *T
	Err    error
}

// Await drains a mutation channel and returns the committed record or
// the rollback reason. Callers that don't care about the optimistic
// phase use this; callers driving a UI consume the channel directly.
func Await[T any](ch <-chan Mutation[T]) (*T, error) {
	var rec *T
	var err error
	for m := range ch {
		switch m.Phase {
		case PhaseCommitted:
			rec, err = m.Record, nil
		case PhaseRolledBack:
			rec, err = nil, m.Err
		}
	}
	return rec, err
}
