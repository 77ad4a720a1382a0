package itemstate

import (
	"strings"
)

type State struct {
	Name string
}

func (s State) Code() string {
	return s.Name
}

func (s State) Label() string {
	parts := strings.Split(s.Name, "_")
	for i := range parts {
		if len(parts[i]) > 0 {
			parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
		}
	}
	return strings.Join(parts, " ")
}

type Enum struct {
	Pending    State
	InProgress State
	Ready      State
	Served     State
	Cancelled  State
}

var States = Enum{
	Pending:    State{Name: "pending"},
	InProgress: State{Name: "in_progress"},
	Ready:      State{Name: "ready"},
	Served:     State{Name: "served"},
	Cancelled:  State{Name: "cancelled"},
}

var All = []State{
	States.Pending,
	States.InProgress,
	States.Ready,
	States.Served,
	States.Cancelled,
}

// transitions enumerates every legal (current -> target) edge of the item
// lifecycle. Anything not listed here is rejected.
var transitions = map[string][]string{
	States.Pending.Name:    {States.InProgress.Name, States.Ready.Name, States.Cancelled.Name},
	States.InProgress.Name: {States.Ready.Name, States.Cancelled.Name},
	States.Ready.Name:      {States.Served.Name},
	States.Served.Name:     {},
	States.Cancelled.Name:  {},
}

// ByName returns the state for a given code, or nil if not found
func ByName(name string) *State {
	for _, s := range All {
		if s.Name == name {
			return &s
		}
	}
	return nil
}

// CanTransition reports whether moving from current to target is a legal
// lifecycle edge.
func CanTransition(current, target string) bool {
	for _, t := range transitions[current] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a state admits no further transitions.
func IsTerminal(state string) bool {
	return state == States.Served.Name || state == States.Cancelled.Name
}

// IsLive reports whether an item in this state still belongs on the board.
func IsLive(state string) bool {
	return state == States.Pending.Name ||
		state == States.InProgress.Name ||
		state == States.Ready.Name
}
