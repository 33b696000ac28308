package clusterconfig

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zeroshot-dev/zeroshot/pkg/ledger"
)

func validConfig() *Config {
	return &Config{
		Agents: []AgentConfig{
			{
				ID:       "worker",
				Role:     "implementation",
				Triggers: []Trigger{{Topic: ledger.TopicIssueOpened, Action: ActionExecuteTask}},
				Hooks: Hooks{OnComplete: &HookSpec{
					Action: HookPublishMessage,
					Config: HookConfig{Topic: ledger.TopicClusterComplete},
				}},
			},
			{
				ID:       "completion",
				Role:     "orchestrator",
				Triggers: []Trigger{{Topic: ledger.TopicClusterComplete, Action: ActionStopCluster}},
			},
		},
	}
}

func TestValidConfigPasses(t *testing.T) {
	v := NewValidator(validConfig())
	require.NoError(t, v.ValidateAll())
}

func TestMissingAgentIDRejected(t *testing.T) {
	cfg := validConfig()
	cfg.Agents[0].ID = ""
	v := NewValidator(cfg)
	require.ErrorIs(t, v.ValidateAll(), ErrConfig)
}

func TestDuplicateAgentIDRejected(t *testing.T) {
	cfg := validConfig()
	cfg.Agents[1].ID = "worker"
	v := NewValidator(cfg)
	require.ErrorIs(t, v.ValidateAll(), ErrConfig)
}

func TestEmptyTriggersRejected(t *testing.T) {
	cfg := validConfig()
	cfg.Agents[0].Triggers = nil
	v := NewValidator(cfg)
	require.Error(t, v.ValidateAll())
}

func TestModelRulesWithoutCatchAllRejected(t *testing.T) {
	cfg := validConfig()
	cfg.Agents[0].ModelRules = []ModelRule{{Iterations: "1-3", Model: "sonnet"}}
	v := NewValidator(cfg)
	require.Error(t, v.ValidateAll())
}

func TestNoConsumerOfIssueOpenedRejected(t *testing.T) {
	cfg := validConfig()
	cfg.Agents[0].Triggers[0].Topic = ledger.TopicPlanReady
	cfg.Agents[0].Hooks.OnComplete.Config.Topic = ledger.TopicClusterComplete
	v := NewValidator(cfg)
	require.Error(t, v.ValidateAll())
}

func TestMultipleStopClusterHandlersRejected(t *testing.T) {
	cfg := validConfig()
	cfg.Agents = append(cfg.Agents, AgentConfig{
		ID:       "completion2",
		Role:     "orchestrator",
		Triggers: []Trigger{{Topic: ledger.TopicClusterComplete, Action: ActionStopCluster}},
	})
	v := NewValidator(cfg)
	require.Error(t, v.ValidateAll())
}

func TestSelfTriggerWithoutEscapeRejected(t *testing.T) {
	cfg := validConfig()
	cfg.Agents[0].Triggers = append(cfg.Agents[0].Triggers, Trigger{Topic: ledger.TopicClusterComplete, Action: ActionExecuteTask})
	v := NewValidator(cfg)
	require.Error(t, v.ValidateAll())
}

func TestSelfTriggerWithEscapeAllowed(t *testing.T) {
	cfg := validConfig()
	cfg.Agents[0].Triggers = append(cfg.Agents[0].Triggers, Trigger{
		Topic: ledger.TopicClusterComplete, Action: ActionExecuteTask, Logic: "message.data.retry == true",
	})
	v := NewValidator(cfg)
	require.NoError(t, v.ValidateAll())
}

func TestTopicNeverProducedRejected(t *testing.T) {
	cfg := validConfig()
	cfg.Agents = append(cfg.Agents, AgentConfig{
		ID:       "phantom-listener",
		Role:     "implementation",
		Triggers: []Trigger{{Topic: ledger.TopicValidationResult, Action: ActionExecuteTask}},
	})
	v := NewValidator(cfg)
	require.Error(t, v.ValidateAll())
}

func TestValidatorWithoutRetriggerRejected(t *testing.T) {
	cfg := validConfig()
	cfg.Agents = append(cfg.Agents, AgentConfig{
		ID:       "validator",
		Role:     "validator",
		Triggers: []Trigger{{Topic: ledger.TopicImplementationReady, Action: ActionExecuteTask}},
		Hooks: Hooks{OnComplete: &HookSpec{
			Action: HookPublishMessage,
			Config: HookConfig{Topic: ledger.TopicValidationResult},
		}},
	})
	cfg.Agents = append(cfg.Agents, AgentConfig{
		ID:       "impl-producer",
		Role:     "implementation",
		Triggers: []Trigger{{Topic: ledger.TopicIssueOpened, Action: ActionExecuteTask}},
		Hooks: Hooks{OnComplete: &HookSpec{
			Action: HookPublishMessage,
			Config: HookConfig{Topic: ledger.TopicImplementationReady},
		}},
	})
	v := NewValidator(cfg)
	require.Error(t, v.ValidateAll())
}

func TestHighMaxIterationsWarns(t *testing.T) {
	cfg := validConfig()
	cfg.Agents[0].MaxIterations = 150
	v := NewValidator(cfg)
	require.NoError(t, v.ValidateAll())
	require.NotEmpty(t, v.Warnings())
}

func TestJSONOutputWithoutSchemaWarns(t *testing.T) {
	cfg := validConfig()
	cfg.Agents[0].OutputFormat = "json"
	v := NewValidator(cfg)
	require.NoError(t, v.ValidateAll())

	var found bool
	for _, w := range v.Warnings() {
		if w.AgentID == "worker" {
			found = true
		}
	}
	require.True(t, found)
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	raw := []byte(`{"agents":[{"id":"a","role":"implementation","triggers":[{"topic":"ISSUE_OPENED"}],"bogusField":true}]}`)
	_, err := Decode(raw)
	require.Error(t, err)
}

func TestDecodeValidConfig(t *testing.T) {
	raw := []byte(`{
		"agents": [
			{
				"id": "worker",
				"role": "implementation",
				"modelRules": [{"iterations": "all", "model": "opus"}],
				"triggers": [{"topic": "ISSUE_OPENED", "action": "execute_task"}],
				"contextStrategy": {
					"sources": [{"topic": "ISSUE_OPENED", "priority": "required", "strategy": "latest", "amount": 1}],
					"maxTokens": 100000
				},
				"prompt": "do the work",
				"hooks": {"onComplete": {"action": "publish_message", "config": {"topic": "CLUSTER_COMPLETE"}}},
				"maxIterations": 25
			},
			{"id": "completion", "role": "orchestrator", "triggers": [{"topic": "CLUSTER_COMPLETE", "action": "stop_cluster"}]}
		]
	}`)

	cfg, err := Decode(raw)
	require.NoError(t, err)
	require.Len(t, cfg.Agents, 2)
	require.Equal(t, "worker", cfg.Agents[0].ID)

	v := NewValidator(cfg)
	require.NoError(t, v.ValidateAll())
}
