// Package clusterconfig decodes and validates the declarative JSON agent
// graph that is a cluster's sole required input (spec §6).
package clusterconfig

import "encoding/json"

// Config is the root cluster configuration document.
type Config struct {
	Agents []AgentConfig `json:"agents"`
}

// ModelLevel is an agent's default model tier.
type ModelLevel string

const (
	ModelLevel1 ModelLevel = "level1"
	ModelLevel2 ModelLevel = "level2"
	ModelLevel3 ModelLevel = "level3"
)

// ModelRule picks a model for a range of iterations; the first matching
// rule wins and exactly one rule in an agent's list must be a catch-all
// ("all") so resolution never falls through (spec §4.6).
type ModelRule struct {
	Iterations string `json:"iterations"` // "all" | "N" | "M-N" | "N+"
	Model      string `json:"model"`
}

// TriggerAction is what an agent does when a trigger fires.
type TriggerAction string

const (
	ActionExecuteTask TriggerAction = "execute_task"
	ActionStopCluster TriggerAction = "stop_cluster"
)

// Trigger declares one topic of interest and what to do on delivery
// (spec §4.6). Logic is an optional predicate script source; its language
// and sandbox are defined by pkg/agentwrapper.
type Trigger struct {
	Topic  string        `json:"topic"`
	Action TriggerAction `json:"action,omitempty"` // default execute_task
	Logic  string        `json:"logic,omitempty"`
}

// HookAction is what an engine does after an agent's task completes.
type HookAction string

const (
	HookPublishMessage HookAction = "publish_message"
	HookStopCluster    HookAction = "stop_cluster"
)

// HookConfig parameterizes a hook action; Topic is used by publish_message.
type HookConfig struct {
	Topic string `json:"topic,omitempty"`
}

// Hooks holds the completion hook(s) an agent may declare.
type Hooks struct {
	OnComplete *HookSpec `json:"onComplete,omitempty"`
}

// HookSpec is the concrete {action, config} pair an agent's onComplete runs.
type HookSpec struct {
	Action HookAction `json:"action"`
	Config HookConfig `json:"config,omitempty"`
}

// ContextSource mirrors pkg/agentcontext.Source on the wire; see that
// package for select-strategy semantics. Decode must reject unknown keys
// (spec §9 "Dynamic named parameters" forward-compat boundary) — enforced
// by Decode, not by this struct's json tags alone.
type ContextSource struct {
	Topic           string `json:"topic"`
	Sender          string `json:"sender,omitempty"`
	Since           string `json:"since,omitempty"`
	Strategy        string `json:"strategy,omitempty"`
	Amount          int    `json:"amount,omitempty"`
	Limit           int    `json:"limit,omitempty"` // deprecated alias for Amount
	CompactAmount   int    `json:"compactAmount,omitempty"`
	CompactStrategy string `json:"compactStrategy,omitempty"`
	Priority        string `json:"priority,omitempty"`
}

// ContextStrategy mirrors pkg/agentcontext.Strategy on the wire.
type ContextStrategy struct {
	Sources   []ContextSource `json:"sources"`
	MaxTokens int             `json:"maxTokens,omitempty"`
}

// SubclusterConfig lets an agent entry embed a nested cluster graph instead
// of a prompt (spec §6: "Sub-cluster agents replace prompt with
// type: "subcluster" and an inner config; max nesting depth is 5").
type SubclusterConfig struct {
	Config Config `json:"config"`
}

// AgentConfig is one entry of Config.Agents.
type AgentConfig struct {
	ID         string      `json:"id"`
	Role       string      `json:"role"`
	ModelLevel ModelLevel  `json:"modelLevel,omitempty"`
	ModelRules []ModelRule `json:"modelRules,omitempty"`
	Triggers   []Trigger   `json:"triggers"`

	ContextStrategy ContextStrategy `json:"contextStrategy,omitempty"`

	Type       string            `json:"type,omitempty"` // "subcluster" when Subcluster is set
	Subcluster *SubclusterConfig `json:"subcluster,omitempty"`

	Prompt         string            `json:"prompt,omitempty"`
	PromptVariants map[string]string `json:"promptVariants,omitempty"`
	OutputFormat   string            `json:"outputFormat,omitempty"` // "json" | ""
	JSONSchema     json.RawMessage   `json:"jsonSchema,omitempty"`

	Hooks Hooks `json:"hooks,omitempty"`

	MaxIterations int `json:"maxIterations,omitempty"`
	TimeoutMs     int `json:"timeout,omitempty"`

	Isolated bool `json:"isolated,omitempty"` // runs in a worktree/container
}

// IsValidator is a heuristic used by the validator-skip context section:
// any agent whose role is literally "validator".
func (a AgentConfig) IsValidator() bool {
	return a.Role == "validator"
}
