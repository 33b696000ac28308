// Package runner defines TaskRunner, the sole seam between the cluster
// execution engine and an external provider CLI (spec §6). Provider
// adapters themselves are out of scope for this module; only the interface
// and a mock implementation live here.
package runner

import "context"

// Options parameterizes one TaskRunner.Run call (spec §6 TaskRunner interface).
type Options struct {
	AgentID      string
	Model        string
	OutputFormat string // "json" | ""
	JSONSchema   map[string]any
	Cwd          string
	Isolation    string // "" | "worktree" | "container"
	Timeout      int    // milliseconds; 0 means no per-call timeout
}

// Result is what a provider invocation returns.
type Result struct {
	Success bool
	Output  string
	Error   string
	TaskID  string
}

// TaskRunner is anything that can execute a prompt against an external
// provider and return its result. Implementations may be synchronous or
// return a future internally; the engine always awaits completion (spec §9
// "Polymorphism ... expressed as a capability set").
type TaskRunner interface {
	Run(ctx context.Context, prompt string, opts Options) (Result, error)
}
