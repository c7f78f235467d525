// Package game contains the pure scoring and clock rules for a foosball table.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// The clock is a logical tick counter advanced by the caller.
package game

import "fmt"

// Event is a discrete input to the state machine.
type Event string

const (
	EventReset    Event = "RESET"
	EventBallDrop Event = "BALL_DROP"
	EventBlueGoal Event = "BLUE_GOAL"
	EventRedGoal  Event = "RED_GOAL"
	// EventNone is injected by the tick loop when no sensor event is pending.
	EventNone Event = "NO_EVENT"
)

// Data is the scoreboard carried by an active game.
// The JSON form is the snapshot pushed to viewers.
type Data struct {
	Time      uint64 `json:"time"`
	BlueGoals uint32 `json:"blue_goals"`
	RedGoals  uint32 `json:"red_goals"`
}

// State is one of Reset, Running or Paused.
type State interface {
	// Name returns the upper-case state label used in logs and status output.
	Name() string
	state()
}

// Reset means no game is in progress.
type Reset struct{}

// Running means the clock advances each tick and goals are scoreable.
type Running struct {
	Data Data
}

// Paused means a goal was just scored; the clock is frozen until the ball
// is dropped back into play.
type Paused struct {
	Data Data
}

func (Reset) Name() string   { return "RESET" }
func (Running) Name() string { return "RUNNING" }
func (Paused) Name() string  { return "PAUSED" }

func (Reset) state()   {}
func (Running) state() {}
func (Paused) state()  {}

// DataOf returns the scoreboard embedded in s, or zero data for Reset.
func DataOf(s State) Data {
	switch st := s.(type) {
	case Running:
		return st.Data
	case Paused:
		return st.Data
	default:
		return Data{}
	}
}

// Side identifies a team.
type Side string

const (
	SideBlue Side = "Blue"
	SideRed  Side = "Red"
)

// Win is emitted when a side reaches the maximum score.
type Win struct {
	Side Side
	// Final is the scoreboard including the winning goal.
	Final Data
}

// String returns the announcement line, e.g. "Blue Wins!".
func (w Win) String() string {
	return fmt.Sprintf("%s Wins!", w.Side)
}
