package agentwrapper

import "errors"

// ErrHook is the sentinel behind every HookError.
var ErrHook = errors.New("agentwrapper: onComplete hook failed")

// HookError reports a failure applying an agent's onComplete hook.
type HookError struct {
	AgentID string
	Topic   string
	Err     error
}

func (e *HookError) Error() string {
	return "agentwrapper: hook for agent " + e.AgentID + " publishing to " + e.Topic + " failed: " + e.Err.Error()
}

func (e *HookError) Unwrap() error { return ErrHook }
func (e *HookError) Cause() error  { return e.Err }

// ErrPredicate is the sentinel behind every PredicateError.
var ErrPredicate = errors.New("agentwrapper: invalid predicate script")

// PredicateError reports a trigger's Logic script that fails to parse.
// Raised only by ValidatePredicateSyntax at config-validation time;
// EvaluatePredicate itself never returns an error; a script that fails at
// runtime is treated as false per spec §4.6.
type PredicateError struct {
	Script string
	Reason string
}

func (e *PredicateError) Error() string {
	return "agentwrapper: predicate " + quoteScript(e.Script) + ": " + e.Reason
}

func (e *PredicateError) Unwrap() error { return ErrPredicate }

func quoteScript(s string) string {
	if len(s) > 40 {
		s = s[:40] + "..."
	}
	return "\"" + s + "\""
}
