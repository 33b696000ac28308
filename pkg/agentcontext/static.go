package agentcontext

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zeroshot-dev/zeroshot/pkg/contextpack"
	"github.com/zeroshot-dev/zeroshot/pkg/ledger"
)

// AgentInfo is the subset of an agent's static config needed to build the
// fixed header/instructions/schema packs (spec §4.4).
type AgentInfo struct {
	ID        string
	Role      string
	Iteration int
	Isolated  bool // runs in a worktree/container; relaxes the VCS rule and platform-mismatch demotion

	Prompt         string
	PromptVariants map[string]string // iteration pattern -> prompt, resolved against Iteration when the instructions pack renders

	LegacyOutputFormat string // prompt.outputFormat when set without jsonSchema
	OutputFormat       string // "json" | ""
	JSONSchema         map[string]any

	IsValidator           bool
	PermanentSkipCriteria []SkipCriterion // CANNOT_VALIDATE criteria; platform-mismatch ones already filtered by the caller when Isolated
}

// SkipCriterion is one entry of AgentInfo.PermanentSkipCriteria: a
// criterion id previously marked CANNOT_VALIDATE, with the reason it
// couldn't be checked.
type SkipCriterion struct {
	ID     string
	Reason string
}

// BuildStaticPacks returns up to six fixed packs of spec §4.4 in stable order,
// given the agent's static config and the message that triggered this
// execution. trigger is nil only in tests; in production the wrapper always
// has one by the time it builds context.
func BuildStaticPacks(info AgentInfo, trigger *ledger.Message) []contextpack.Pack {
	packs := make([]contextpack.Pack, 0, 6)
	order := 0

	packs = append(packs, contextpack.Pack{
		ID:       "static:header",
		Section:  "header",
		Priority: contextpack.PriorityRequired,
		Order:    order,
		Render:   func() string { return renderHeader(info) },
	})
	order++

	packs = append(packs, contextpack.Pack{
		ID:       "static:instructions",
		Section:  "instructions",
		Priority: contextpack.PriorityRequired,
		Order:    order,
		Render:   func() string { return renderInstructions(info) },
	})
	order++

	if info.LegacyOutputFormat != "" {
		packs = append(packs, contextpack.Pack{
			ID:       "static:legacy-output-schema",
			Section:  "legacy-output-schema",
			Priority: contextpack.PriorityRequired,
			Order:    order,
			Render:   func() string { return renderLegacyOutputSchema(info) },
		})
		order++
	}

	if info.OutputFormat == "json" && info.JSONSchema != nil {
		packs = append(packs, contextpack.Pack{
			ID:       "static:json-schema",
			Section:  "json-schema",
			Priority: contextpack.PriorityRequired,
			Order:    order,
			Render:   func() string { return renderJSONSchemaSection(info) },
		})
		order++
	}

	if info.IsValidator && len(info.PermanentSkipCriteria) > 0 {
		packs = append(packs, contextpack.Pack{
			ID:       "static:validator-skip",
			Section:  "validator-skip",
			Priority: contextpack.PriorityRequired,
			Order:    order,
			Render:   func() string { return renderValidatorSkip(info) },
		})
		order++
	}

	packs = append(packs, contextpack.Pack{
		ID:       "static:triggering-message",
		Section:  "triggering-message",
		Priority: contextpack.PriorityRequired,
		Order:    order,
		Preserve: true,
		Render:   func() string { return renderTriggeringMessage(trigger) },
	})

	return packs
}

func renderHeader(info AgentInfo) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Agent: %s (role: %s, iteration: %d)\n", info.ID, info.Role, info.Iteration)
	sb.WriteString("You are running non-interactively: produce your full result in one response, ")
	sb.WriteString("never ask a clarifying question, never wait for further input.\n")
	sb.WriteString("Output only what this task requires; no preamble, no closing remarks.\n")
	if !info.Isolated {
		sb.WriteString("Do not run git, jj, hg, or any other version-control command. ")
		sb.WriteString("VCS operations are handled outside this agent.\n")
	}
	return sb.String()
}

func renderInstructions(info AgentInfo) string {
	prompt := info.Prompt
	if v, ok := selectPromptVariant(info); ok {
		prompt = v
	}
	return prompt
}

// selectPromptVariant resolves an iteration-keyed prompt variant using the
// same pattern matching as model rules ("all", "N", "M-N", "N+").
func selectPromptVariant(info AgentInfo) (string, bool) {
	if len(info.PromptVariants) == 0 {
		return "", false
	}
	for pattern, prompt := range info.PromptVariants {
		if matchesIterationPattern(pattern, info.Iteration) {
			return prompt, true
		}
	}
	return "", false
}

func renderLegacyOutputSchema(info AgentInfo) string {
	return "Output format:\n" + info.LegacyOutputFormat
}

func renderJSONSchemaSection(info AgentInfo) string {
	schemaJSON, err := json.MarshalIndent(info.JSONSchema, "", "  ")
	if err != nil {
		schemaJSON = []byte("{}")
	}
	example := generateExample(info.JSONSchema)
	exampleJSON, err := json.MarshalIndent(example, "", "  ")
	if err != nil {
		exampleJSON = []byte("{}")
	}

	var sb strings.Builder
	sb.WriteString("Respond with a single JSON object matching this schema:\n```json\n")
	sb.Write(schemaJSON)
	sb.WriteString("\n```\nExample:\n```json\n")
	sb.Write(exampleJSON)
	sb.WriteString("\n```\n")
	return sb.String()
}

// generateExample builds a minimal instance of a JSON Schema object by
// walking its declared properties and emitting a placeholder value per type.
func generateExample(schema map[string]any) any {
	t, _ := schema["type"].(string)
	switch t {
	case "object":
		props, _ := schema["properties"].(map[string]any)
		out := make(map[string]any, len(props))
		for name, raw := range props {
			sub, ok := raw.(map[string]any)
			if !ok {
				out[name] = nil
				continue
			}
			out[name] = generateExample(sub)
		}
		return out
	case "array":
		items, _ := schema["items"].(map[string]any)
		return []any{generateExample(items)}
	case "string":
		return "string"
	case "integer", "number":
		return 0
	case "boolean":
		return false
	default:
		return nil
	}
}

func renderValidatorSkip(info AgentInfo) string {
	var sb strings.Builder
	sb.WriteString("Permanently Unverifiable Criteria (SKIP THESE):\n")
	for _, c := range info.PermanentSkipCriteria {
		if c.Reason != "" {
			fmt.Fprintf(&sb, "- %s: %s\n", c.ID, c.Reason)
		} else {
			fmt.Fprintf(&sb, "- %s\n", c.ID)
		}
	}
	return sb.String()
}

func renderTriggeringMessage(trigger *ledger.Message) string {
	if trigger == nil {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Triggering message [%s from %s]:\n", trigger.Topic, trigger.Sender)
	if trigger.Content.Text != "" {
		sb.WriteString(trigger.Content.Text)
	}
	if len(trigger.Content.Data) > 0 {
		fmt.Fprintf(&sb, "\ndata: %v", trigger.Content.Data)
	}
	return sb.String()
}
