package healthsvc

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/zeroshot-dev/zeroshot/pkg/clusterconfig"
	"github.com/zeroshot-dev/zeroshot/pkg/ledger"
	"github.com/zeroshot-dev/zeroshot/pkg/orchestrator"
	"github.com/zeroshot-dev/zeroshot/pkg/runner"
)

func newOrchestratorWithoutClusters(t *testing.T) *orchestrator.Orchestrator {
	t.Helper()
	orch, err := orchestrator.Create(t.TempDir(), runner.NewMockTaskRunner())
	require.NoError(t, err)
	return orch
}

func TestCheckReportsNotServingWithNoClusters(t *testing.T) {
	orch := newOrchestratorWithoutClusters(t)
	defer orch.Close()

	svc := New(orch)
	resp, err := svc.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, resp.Status)
}

func TestCheckReportsServingWithRunningCluster(t *testing.T) {
	dir := t.TempDir()
	cfg := clusterconfig.Config{
		Agents: []clusterconfig.AgentConfig{
			{
				ID:       "worker",
				Role:     "implementation",
				Triggers: []clusterconfig.Trigger{{Topic: ledger.TopicIssueOpened, Action: clusterconfig.ActionExecuteTask}},
				Hooks: clusterconfig.Hooks{
					OnComplete: &clusterconfig.HookSpec{
						Action: clusterconfig.HookPublishMessage,
						Config: clusterconfig.HookConfig{Topic: ledger.TopicClusterComplete},
					},
				},
			},
			{
				ID:       "completion",
				Role:     "orchestrator",
				Triggers: []clusterconfig.Trigger{{Topic: ledger.TopicClusterComplete, Action: clusterconfig.ActionStopCluster}},
			},
		},
	}
	// The worker's task fails, so CLUSTER_COMPLETE is never published and the
	// cluster stays running.
	mock := runner.NewMockTaskRunner()
	mock.RunFunc = func(ctx context.Context, prompt string, opts runner.Options) (runner.Result, error) {
		return runner.Result{Success: false, Error: "not finished"}, nil
	}
	orch, err := orchestrator.Create(dir, mock)
	require.NoError(t, err)
	defer orch.Close()

	_, err = orch.Start(cfg, filepath.Join(dir, "cluster.json"), orchestrator.Input{Text: "go"})
	require.NoError(t, err)

	svc := New(orch)
	resp, err := svc.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, grpc_health_v1.HealthCheckResponse_SERVING, resp.Status)
}

func TestShutdownForcesNotServing(t *testing.T) {
	orch := newOrchestratorWithoutClusters(t)
	defer orch.Close()

	svc := New(orch)
	svc.Shutdown()

	resp, err := svc.Check(context.Background(), &grpc_health_v1.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, grpc_health_v1.HealthCheckResponse_NOT_SERVING, resp.Status)
}
