package orchestrator

import "matchbot/internal/registry"

// State is the lifecycle position of one event, derived from its thread
// record plus the final flag of the latest fetch.
type State int

const (
	NotStarted State = iota
	PreThreadPosted
	LiveThreadActive
	Final
	PostThreadPosted
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case PreThreadPosted:
		return "pre_thread_posted"
	case LiveThreadActive:
		return "live_thread_active"
	case Final:
		return "final"
	case PostThreadPosted:
		return "post_thread_posted"
	}
	return "unknown"
}

// StateOf derives the state from what the registry has recorded. Final is
// only reachable once a live thread exists.
func StateOf(r registry.ThreadRecord, final bool) State {
	switch {
	case r.Post != "":
		return PostThreadPosted
	case r.Live != "" && final:
		return Final
	case r.Live != "":
		return LiveThreadActive
	case r.Pre != "":
		return PreThreadPosted
	}
	return NotStarted
}
