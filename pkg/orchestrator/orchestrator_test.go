package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zeroshot-dev/zeroshot/pkg/clusterconfig"
	"github.com/zeroshot-dev/zeroshot/pkg/ledger"
	"github.com/zeroshot-dev/zeroshot/pkg/runner"
)

func writeConfig(t *testing.T, dir string, cfg clusterconfig.Config) string {
	t.Helper()
	path := filepath.Join(dir, "cluster.json")
	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// singleWorkerConfig mirrors spec §8 Scenario A: one worker triggered by
// ISSUE_OPENED whose onComplete publishes CLUSTER_COMPLETE, and a
// completion agent triggered by CLUSTER_COMPLETE with stop_cluster.
func singleWorkerConfig() clusterconfig.Config {
	return clusterconfig.Config{
		Agents: []clusterconfig.AgentConfig{
			{
				ID:       "worker",
				Role:     "implementation",
				Prompt:   "do the thing",
				Triggers: []clusterconfig.Trigger{{Topic: ledger.TopicIssueOpened, Action: clusterconfig.ActionExecuteTask}},
				Hooks: clusterconfig.Hooks{OnComplete: &clusterconfig.HookSpec{
					Action: clusterconfig.HookPublishMessage,
					Config: clusterconfig.HookConfig{Topic: ledger.TopicClusterComplete},
				}},
			},
			{
				ID:       "completion",
				Role:     "orchestrator",
				Triggers: []clusterconfig.Trigger{{Topic: ledger.TopicClusterComplete, Action: clusterconfig.ActionStopCluster}},
			},
		},
	}
}

func waitForStatus(t *testing.T, o *Orchestrator, id string, want Status, timeout time.Duration) ClusterStatus {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		st, err := o.GetStatus(id)
		require.NoError(t, err)
		if st.Status == want {
			return st
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for cluster %s to reach status %s, got %s", id, want, st.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestScenarioASingleWorkerHappyPath(t *testing.T) {
	dir := t.TempDir()
	cfg := singleWorkerConfig()
	configPath := writeConfig(t, dir, cfg)

	mock := runner.NewMockTaskRunner()
	mock.RunFunc = func(ctx context.Context, prompt string, opts runner.Options) (runner.Result, error) {
		return runner.Result{Success: true, Output: `{"summary":"done"}`}, nil
	}

	o, err := Create(dir, mock)
	require.NoError(t, err)
	defer o.Close()

	id, err := o.Start(cfg, configPath, Input{Text: "Do the thing"})
	require.NoError(t, err)

	st := waitForStatus(t, o, id, StatusStopped, 2*time.Second)

	var worker AgentState
	for _, a := range st.Agents {
		if a.ID == "worker" {
			worker = a
		}
	}
	require.Equal(t, 1, worker.Iteration)

	transcript, err := o.Export(id, "markdown")
	require.NoError(t, err)
	require.Contains(t, transcript, ledger.TopicIssueOpened)
	require.Contains(t, transcript, ledger.TopicClusterComplete)
}

func TestScenarioFCrashRestartReplaysBootstrapIdempotently(t *testing.T) {
	dir := t.TempDir()
	cfg := singleWorkerConfig()
	configPath := writeConfig(t, dir, cfg)

	id := "cluster-x"
	ledgerPath := filepath.Join(dir, id, "ledger.db")
	l, err := ledger.Open(id, ledgerPath)
	require.NoError(t, err)

	_, err = l.Append(ledger.Message{ClusterID: id, Topic: ledger.TopicIssueOpened, Sender: "orchestrator", Content: ledger.Content{Text: "do the thing"}})
	require.NoError(t, err)
	_, err = l.Append(ledger.Message{ClusterID: id, Topic: ledger.TopicPlanReady, Sender: "planner", Content: ledger.Content{Data: map[string]any{"summary": "plan v1"}}})
	require.NoError(t, err)
	require.NoError(t, l.Close())

	reg := newRegistry(dir)
	require.NoError(t, reg.upsert(registryEntry{ID: id, LedgerPath: ledgerPath, ConfigPath: configPath, Status: string(StatusRunning), CreatedAt: time.Now().UnixMilli()}))

	mock := runner.NewMockTaskRunner()
	o, err := Create(dir, mock)
	require.NoError(t, err)

	snapshots, err := o.clusters[id].ledger.Query(ledger.QueryFilter{ClusterID: id, Topic: ledger.TopicStateSnapshot})
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	require.NoError(t, o.Close())

	o2, err := Create(dir, mock)
	require.NoError(t, err)
	defer o2.Close()

	snapshots2, err := o2.clusters[id].ledger.Query(ledger.QueryFilter{ClusterID: id, Topic: ledger.TopicStateSnapshot})
	require.NoError(t, err)
	require.Len(t, snapshots2, 1)
}
