package clusterconfig

import (
	"fmt"

	"github.com/zeroshot-dev/zeroshot/pkg/agentcontext"
	"github.com/zeroshot-dev/zeroshot/pkg/ledger"
)

// coreProducedTopics are published by the core itself rather than by any agent
// hook (spec §6 "Topics treated as reserved").
var coreProducedTopics = map[string]bool{
	ledger.TopicIssueOpened:    true,
	ledger.TopicStateSnapshot:  true,
	ledger.TopicContextMetrics: true,
}

const highIterationWarningBar = 100 // spec §5: "maxIterations ... 100+ warns"

// Validator runs the config-validator contract of spec §6 fail-fast,
// in the order: structural → model-rule → message-flow, mirroring
// pkg/config.Validator.ValidateAll's "validate in dependency order" style.
type Validator struct {
	cfg      *Config
	warnings []Warning
}

// NewValidator creates a Validator for cfg.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll runs every check and returns the first error encountered
// (fail-fast). On success, Warnings() returns any accumulated warnings.
func (v *Validator) ValidateAll() error {
	v.warnings = nil

	if err := v.validateStructure(); err != nil {
		return err
	}
	if err := v.validateModelRules(); err != nil {
		return err
	}
	if err := v.validateMessageFlow(); err != nil {
		return err
	}

	v.collectWarnings()
	return nil
}

// Warnings returns the non-fatal issues found by the most recent
// successful ValidateAll call.
func (v *Validator) Warnings() []Warning {
	return v.warnings
}

func (v *Validator) validateStructure() error {
	seen := make(map[string]bool, len(v.cfg.Agents))

	for _, a := range v.cfg.Agents {
		if a.ID == "" {
			return newConfigError("", "id", fmt.Errorf("agent id is required"))
		}
		if seen[a.ID] {
			return newConfigError(a.ID, "id", fmt.Errorf("duplicate agent id"))
		}
		seen[a.ID] = true

		if a.Role == "" {
			return newConfigError(a.ID, "role", fmt.Errorf("agent role is required"))
		}
		if len(a.Triggers) == 0 {
			return newConfigError(a.ID, "triggers", fmt.Errorf("at least one trigger is required"))
		}
		for i, t := range a.Triggers {
			if t.Topic == "" {
				return newConfigError(a.ID, fmt.Sprintf("triggers[%d].topic", i), fmt.Errorf("trigger topic is required"))
			}
		}
	}

	return nil
}

func (v *Validator) validateModelRules() error {
	for _, a := range v.cfg.Agents {
		if len(a.ModelRules) == 0 {
			continue
		}
		hasCatchAll := false
		for _, r := range a.ModelRules {
			if r.Iterations == "all" {
				hasCatchAll = true
			}
		}
		if !hasCatchAll {
			return newConfigError(a.ID, "modelRules", fmt.Errorf("no catch-all rule (\"iterations\": \"all\")"))
		}
	}
	return nil
}

// validateMessageFlow implements the message-flow error checks of spec §6.
func (v *Validator) validateMessageFlow() error {
	producedTopics := v.producedTopics()

	if err := v.validateIssueOpenedConsumed(); err != nil {
		return err
	}
	if err := v.validateSingleStopClusterHandler(); err != nil {
		return err
	}
	if err := v.validateNoUnescapedSelfTrigger(); err != nil {
		return err
	}
	if err := v.validateTopicsProduced(producedTopics); err != nil {
		return err
	}
	if err := v.validateValidatorsRetrigger(); err != nil {
		return err
	}
	return nil
}

// producedTopics maps every topic an agent can publish (via hooks.onComplete)
// to the agent id(s) that publish it.
func (v *Validator) producedTopics() map[string][]string {
	out := make(map[string][]string)
	for _, a := range v.cfg.Agents {
		if a.Hooks.OnComplete == nil || a.Hooks.OnComplete.Action != HookPublishMessage {
			continue
		}
		topic := a.Hooks.OnComplete.Config.Topic
		if topic == "" {
			continue
		}
		out[topic] = append(out[topic], a.ID)
	}
	return out
}

func (v *Validator) validateIssueOpenedConsumed() error {
	for _, a := range v.cfg.Agents {
		for _, t := range a.Triggers {
			if t.Topic == ledger.TopicIssueOpened {
				return nil
			}
		}
	}
	return newConfigError("", "agents", fmt.Errorf("no agent consumes %s", ledger.TopicIssueOpened))
}

func (v *Validator) validateSingleStopClusterHandler() error {
	var handlers []string
	for _, a := range v.cfg.Agents {
		for _, t := range a.Triggers {
			if t.Action == ActionStopCluster {
				handlers = append(handlers, a.ID)
			}
		}
	}
	if len(handlers) == 0 {
		return newConfigError("", "agents", fmt.Errorf("no agent has a stop_cluster trigger; cluster could never complete"))
	}
	if len(handlers) > 1 {
		return newConfigError("", "agents", fmt.Errorf("multiple stop_cluster handlers: %v", handlers))
	}
	return nil
}

// validateNoUnescapedSelfTrigger rejects an agent whose own hook output
// topic is also one of its triggers, unless that trigger carries a
// predicate (its "escape" from infinite self-retriggering).
func (v *Validator) validateNoUnescapedSelfTrigger() error {
	for _, a := range v.cfg.Agents {
		if a.Hooks.OnComplete == nil || a.Hooks.OnComplete.Action != HookPublishMessage {
			continue
		}
		ownTopic := a.Hooks.OnComplete.Config.Topic
		if ownTopic == "" {
			continue
		}
		for _, t := range a.Triggers {
			if t.Topic == ownTopic && t.Logic == "" {
				return newConfigError(a.ID, "triggers", fmt.Errorf("self-triggers on its own output topic %q without an escape predicate", ownTopic))
			}
		}
	}
	return nil
}

// validateTopicsProduced rejects a trigger on a non-reserved topic that no
// agent's hook ever publishes.
func (v *Validator) validateTopicsProduced(produced map[string][]string) error {
	for _, a := range v.cfg.Agents {
		for _, t := range a.Triggers {
			if coreProducedTopics[t.Topic] {
				continue
			}
			if len(produced[t.Topic]) == 0 {
				return newConfigError(a.ID, "triggers", fmt.Errorf("topic %q is never produced by any agent", t.Topic))
			}
		}
	}
	return nil
}

// validateValidatorsRetrigger requires that any role-"validator" agent's
// output topic (conventionally VALIDATION_RESULT) is itself consumed by
// some trigger, so a rejection can drive another iteration.
func (v *Validator) validateValidatorsRetrigger() error {
	for _, a := range v.cfg.Agents {
		if !a.IsValidator() {
			continue
		}
		if a.Hooks.OnComplete == nil || a.Hooks.OnComplete.Action != HookPublishMessage {
			continue
		}
		topic := a.Hooks.OnComplete.Config.Topic
		if topic == "" {
			continue
		}
		if !v.anyTriggerConsumes(topic) {
			return newConfigError(a.ID, "hooks.onComplete", fmt.Errorf("validator output topic %q has no consumer to act on rejection", topic))
		}
	}
	return nil
}

func (v *Validator) anyTriggerConsumes(topic string) bool {
	for _, a := range v.cfg.Agents {
		for _, t := range a.Triggers {
			if t.Topic == topic {
				return true
			}
		}
	}
	return false
}

func (v *Validator) collectWarnings() {
	roles := make(map[string]bool, len(v.cfg.Agents))
	for _, a := range v.cfg.Agents {
		roles[a.Role] = true
	}

	for _, a := range v.cfg.Agents {
		if a.MaxIterations >= highIterationWarningBar {
			v.warnings = append(v.warnings, Warning{
				AgentID: a.ID,
				Message: fmt.Sprintf("maxIterations=%d is very high", a.MaxIterations),
			})
		}

		if a.OutputFormat == "json" && len(a.JSONSchema) == 0 {
			v.warnings = append(v.warnings, Warning{
				AgentID: a.ID,
				Message: "outputFormat is \"json\" but no jsonSchema is set",
			})
		}

		if v.hasCircularDependencyWithoutEscape(a) {
			v.warnings = append(v.warnings, Warning{
				AgentID: a.ID,
				Message: "participates in a circular trigger dependency without an escape predicate",
			})
		}

		for _, t := range a.Triggers {
			if t.Logic != "" && referencesNonexistentRole(t.Logic, roles) {
				v.warnings = append(v.warnings, Warning{
					AgentID: a.ID,
					Message: fmt.Sprintf("trigger logic for topic %q references a role not present in this cluster", t.Topic),
				})
			}
		}
	}
}

// hasCircularDependencyWithoutEscape reports whether a participates in a
// 2-hop cycle (a produces X, some other agent b triggers on X and produces
// a topic a triggers on) with neither leg carrying an escape predicate.
func (v *Validator) hasCircularDependencyWithoutEscape(a AgentConfig) bool {
	if a.Hooks.OnComplete == nil || a.Hooks.OnComplete.Action != HookPublishMessage {
		return false
	}
	ownTopic := a.Hooks.OnComplete.Config.Topic
	if ownTopic == "" {
		return false
	}

	for _, b := range v.cfg.Agents {
		if b.ID == a.ID {
			continue
		}
		consumesOwn := false
		escapeOnB := false
		for _, t := range b.Triggers {
			if t.Topic == ownTopic {
				consumesOwn = true
				if t.Logic != "" {
					escapeOnB = true
				}
			}
		}
		if !consumesOwn || b.Hooks.OnComplete == nil || b.Hooks.OnComplete.Action != HookPublishMessage {
			continue
		}
		bTopic := b.Hooks.OnComplete.Config.Topic
		for _, t := range a.Triggers {
			if t.Topic == bTopic {
				escapeOnA := t.Logic != ""
				if !escapeOnA && !escapeOnB {
					return true
				}
			}
		}
	}
	return false
}

func referencesNonexistentRole(logic string, roles map[string]bool) bool {
	_ = logic
	_ = roles
	// Predicate scripts are free-form strings (pkg/agentwrapper evaluates
	// them); detecting a role reference requires parsing the script, which
	// is out of scope for structural config validation. Always false until
	// pkg/agentwrapper's predicate grammar is stable enough to introspect.
	return false
}

// DecodeSources converts wire ContextSource entries to pkg/agentcontext.Source.
func DecodeSources(sources []ContextSource) []agentcontext.Source {
	out := make([]agentcontext.Source, 0, len(sources))
	for _, s := range sources {
		out = append(out, agentcontext.Source{
			Topic:           s.Topic,
			Sender:          s.Sender,
			Since:           s.Since,
			Strategy:        agentcontext.SelectStrategy(s.Strategy),
			Amount:          s.Amount,
			Limit:           s.Limit,
			CompactAmount:   s.CompactAmount,
			CompactStrategy: agentcontext.SelectStrategy(s.CompactStrategy),
			Priority:        contextpackPriority(s.Priority),
		})
	}
	return out
}
