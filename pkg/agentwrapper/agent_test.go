package agentwrapper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeroshot-dev/zeroshot/pkg/agentcontext"
	"github.com/zeroshot-dev/zeroshot/pkg/bus"
	"github.com/zeroshot-dev/zeroshot/pkg/clusterconfig"
	"github.com/zeroshot-dev/zeroshot/pkg/ledger"
	"github.com/zeroshot-dev/zeroshot/pkg/runner"
)

func newTestBus(t *testing.T) *bus.MessageBus {
	t.Helper()
	path := t.TempDir() + "/c1.db"
	l, err := ledger.Open("c1", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return bus.New(l)
}

func workerConfig() clusterconfig.AgentConfig {
	return clusterconfig.AgentConfig{
		ID:         "worker",
		Role:       "worker",
		ModelLevel: clusterconfig.ModelLevel1,
		Triggers:   []clusterconfig.Trigger{{Topic: ledger.TopicIssueOpened}},
		Prompt:     "implement the task",
		Hooks: clusterconfig.Hooks{
			OnComplete: &clusterconfig.HookSpec{
				Action: clusterconfig.HookPublishMessage,
				Config: clusterconfig.HookConfig{Topic: ledger.TopicImplementationReady},
			},
		},
	}
}

func TestTriggerIsolationSkipsRunnerOnFalsyPredicate(t *testing.T) {
	b := newTestBus(t)
	cfg := workerConfig()
	cfg.Triggers = []clusterconfig.Trigger{{
		Topic: ledger.TopicIssueOpened,
		Logic: "message.data.approved == true",
	}}

	mock := runner.NewMockTaskRunner()
	w := NewWrapper("c1", cfg, b, agentcontext.NewBuilder(b, nil), mock, nil, 0)

	msg, err := b.Publish(ledger.Message{
		ClusterID: "c1",
		Topic:     ledger.TopicIssueOpened,
		Sender:    "orchestrator",
		Content:   ledger.Content{Data: map[string]any{"approved": false}},
	})
	require.NoError(t, err)

	w.OnMessage(msg)

	require.Equal(t, 0, mock.CallCount())
	require.Equal(t, StateIdle, w.State().State)
}

func TestTriggerFiresRunnerOnTruthyPredicate(t *testing.T) {
	b := newTestBus(t)
	cfg := workerConfig()
	cfg.Triggers = []clusterconfig.Trigger{{
		Topic: ledger.TopicIssueOpened,
		Logic: "message.data.approved == true",
	}}

	mock := runner.NewMockTaskRunner()
	w := NewWrapper("c1", cfg, b, agentcontext.NewBuilder(b, nil), mock, nil, 0)

	msg, err := b.Publish(ledger.Message{
		ClusterID: "c1",
		Topic:     ledger.TopicIssueOpened,
		Sender:    "orchestrator",
		Content:   ledger.Content{Data: map[string]any{"approved": true}},
	})
	require.NoError(t, err)

	w.OnMessage(msg)

	require.Equal(t, 1, mock.CallCount())
	require.Equal(t, 1, w.State().Iteration)
}

func TestStopClusterTriggerIsIdempotentAfterFirstDelivery(t *testing.T) {
	b := newTestBus(t)
	cfg := clusterconfig.AgentConfig{
		ID:       "completion",
		Role:     "completion",
		Triggers: []clusterconfig.Trigger{{Topic: ledger.TopicClusterComplete, Action: clusterconfig.ActionStopCluster}},
	}
	mock := runner.NewMockTaskRunner()
	w := NewWrapper("c1", cfg, b, agentcontext.NewBuilder(b, nil), mock, nil, 0)

	stops := 0
	w.OnStopCluster = func() { stops++ }

	msg, err := b.Publish(ledger.Message{ClusterID: "c1", Topic: ledger.TopicClusterComplete, Sender: "worker"})
	require.NoError(t, err)

	w.OnMessage(msg)
	require.Equal(t, StateStopped, w.State().State)
	require.Equal(t, 1, stops)

	// A second delivery after stopped must be a no-op: OnStopCluster does
	// not fire again and the runner is never invoked.
	w.OnMessage(msg)
	require.Equal(t, 1, stops)
	require.Equal(t, 0, mock.CallCount())
}

func TestSuccessfulRunPublishesHookMessageAndIncrementsIteration(t *testing.T) {
	b := newTestBus(t)
	cfg := workerConfig()
	mock := runner.NewMockTaskRunner()
	mock.RunFunc = func(ctx context.Context, prompt string, opts runner.Options) (runner.Result, error) {
		return runner.Result{Success: true, Output: `{"text":"done"}`}, nil
	}
	w := NewWrapper("c1", cfg, b, agentcontext.NewBuilder(b, nil), mock, nil, 0)

	msg, err := b.Publish(ledger.Message{ClusterID: "c1", Topic: ledger.TopicIssueOpened, Sender: "orchestrator"})
	require.NoError(t, err)

	w.OnMessage(msg)

	require.Equal(t, 1, w.State().Iteration)
	require.Equal(t, StateIdle, w.State().State)

	found, err := b.FindLast("c1", ledger.TopicImplementationReady, "worker")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, "done", found.Content.Text)
}

func TestFailedRunDoesNotIncrementIterationOrPublish(t *testing.T) {
	b := newTestBus(t)
	cfg := workerConfig()
	mock := runner.NewMockTaskRunner()
	mock.RunFunc = func(ctx context.Context, prompt string, opts runner.Options) (runner.Result, error) {
		return runner.Result{Success: false, Error: "boom"}, nil
	}
	w := NewWrapper("c1", cfg, b, agentcontext.NewBuilder(b, nil), mock, nil, 0)

	msg, err := b.Publish(ledger.Message{ClusterID: "c1", Topic: ledger.TopicIssueOpened, Sender: "orchestrator"})
	require.NoError(t, err)

	w.OnMessage(msg)

	require.Equal(t, 0, w.State().Iteration)
	require.Equal(t, StateIdle, w.State().State)
	require.Equal(t, "boom", w.State().LastError)

	found, err := b.FindLast("c1", ledger.TopicImplementationReady, "worker")
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestMaxIterationsReachedStopsAgent(t *testing.T) {
	b := newTestBus(t)
	cfg := workerConfig()
	cfg.MaxIterations = 1
	mock := runner.NewMockTaskRunner()
	w := NewWrapper("c1", cfg, b, agentcontext.NewBuilder(b, nil), mock, nil, 0)

	msg, err := b.Publish(ledger.Message{ClusterID: "c1", Topic: ledger.TopicIssueOpened, Sender: "orchestrator"})
	require.NoError(t, err)

	w.OnMessage(msg)

	require.Equal(t, StateStopped, w.State().State)
}
