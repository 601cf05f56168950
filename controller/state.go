package controller

import (
	"fmt"
	"slices"

	windowagg "github.com/goliatone/go-windowagg"
)

// State is the lifecycle state of the form.
type State string

const (
	StateLoading           State = "LOADING"
	StateBootstrapping     State = "BOOTSTRAPPING"
	StateReady             State = "READY"
	StateEditing           State = "EDITING"
	StateValidatingForSave State = "VALIDATING_FOR_SAVE"
	StateSaved             State = "SAVED"
	StateSaveFailed        State = "SAVE_FAILED"
	StateLoadFailed        State = "LOAD_FAILED"
)

var transitions = map[State][]State{
	StateLoading:           {StateBootstrapping, StateReady, StateLoadFailed},
	StateBootstrapping:     {StateReady, StateLoadFailed},
	StateReady:             {StateEditing, StateValidatingForSave},
	StateEditing:           {StateEditing, StateValidatingForSave},
	StateValidatingForSave: {StateValidatingForSave, StateEditing, StateSaved, StateSaveFailed},
	StateSaved:             {StateEditing, StateValidatingForSave},
	StateSaveFailed:        {StateEditing, StateValidatingForSave},
	StateLoadFailed:        {StateLoading},
}

// CanTransition reports whether the form may move from one state to another.
func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// Editable reports whether edits are accepted in s.
func (s State) Editable() bool {
	switch s {
	case StateReady, StateEditing, StateSaved, StateSaveFailed:
		return true
	}
	return false
}

func transitionError(from, to State) error {
	return windowagg.NewError(windowagg.ErrInvalidTransition, "",
		fmt.Sprintf("cannot move from %s to %s", from, to), nil,
		map[string]any{"from": string(from), "to": string(to)})
}
