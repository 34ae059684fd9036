package service

import "fmt"

type ActionKind int

const (
	ActionRestart ActionKind = iota + 1
	ActionExit
)

// Action is the way an epoch ended.
type Action struct {
	Kind ActionKind
	Code uint8
}

func Restart() Action {
	return Action{Kind: ActionRestart}
}

func Exit(code uint8) Action {
	return Action{Kind: ActionExit, Code: code}
}

func (a Action) String() string {
	switch a.Kind {
	case ActionRestart:
		return "restart"
	case ActionExit:
		return fmt.Sprintf("exit(%d)", a.Code)
	default:
		return "invalid"
	}
}
