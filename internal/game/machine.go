package game

// Transition computes the state that follows s on event e.
// It is total: every (state, event) pair not listed in the rules leaves the
// state unchanged, except that any event ticks the clock while Running.
// A non-nil Win is returned when a goal brings a side to maxScore; the game
// then returns to Reset without passing through Paused.
func Transition(s State, e Event, maxScore uint32) (State, *Win) {
	// Reset overrides everything.
	if e == EventReset {
		return Reset{}, nil
	}

	switch st := s.(type) {
	case Running:
		switch e {
		case EventBlueGoal:
			return score(st.Data, SideBlue, maxScore)
		case EventRedGoal:
			return score(st.Data, SideRed, maxScore)
		}
		d := st.Data
		d.Time++
		return Running{Data: d}, nil

	case Paused:
		// Goal signals are swallowed here, which prevents a ball lingering
		// near a sensor from being counted twice.
		if e == EventBallDrop {
			d := st.Data
			d.Time++
			return Running{Data: d}, nil
		}
		return st, nil

	default:
		// Reset (or no state at all).
		if e == EventBallDrop {
			return Running{}, nil
		}
		return Reset{}, nil
	}
}

func score(d Data, side Side, maxScore uint32) (State, *Win) {
	goals := &d.BlueGoals
	if side == SideRed {
		goals = &d.RedGoals
	}
	*goals++
	if *goals >= maxScore {
		return Reset{}, &Win{Side: side, Final: d}
	}
	return Paused{Data: d}, nil
}

// Machine owns the current game state. It is not safe for concurrent use:
// exactly one goroutine (the tick loop) may call Next.
type Machine struct {
	maxScore uint32
	state    State
}

// NewMachine creates a machine in the Reset state.
// A maxScore of 0 is treated as 1.
func NewMachine(maxScore uint32) *Machine {
	if maxScore == 0 {
		maxScore = 1
	}
	return &Machine{
		maxScore: maxScore,
		state:    Reset{},
	}
}

// Next applies e and returns the win notification, if any.
func (m *Machine) Next(e Event) *Win {
	next, win := Transition(m.state, e, m.maxScore)
	m.state = next
	return win
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Data returns the scoreboard of the current state (zero when Reset).
func (m *Machine) Data() Data {
	return DataOf(m.state)
}

// MaxScore returns the configured winning score.
func (m *Machine) MaxScore() uint32 {
	return m.maxScore
}
