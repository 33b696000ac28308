package snapshot

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zeroshot-dev/zeroshot/pkg/bus"
	"github.com/zeroshot-dev/zeroshot/pkg/ledger"
)

func newTestBus(t *testing.T) *bus.MessageBus {
	t.Helper()
	l, err := ledger.Open("cluster-1", t.TempDir()+"/ledger.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return bus.New(l)
}

func TestNormalizeBoolean(t *testing.T) {
	require.True(t, normalizeBoolean(true))
	require.True(t, normalizeBoolean("true"))
	require.False(t, normalizeBoolean(false))
	require.False(t, normalizeBoolean("false"))
	require.False(t, normalizeBoolean(nil))
}

func TestBootstrapFromEmptyHistoryProducesNoSnapshot(t *testing.T) {
	b := newTestBus(t)
	snap := New(b, "cluster-1")
	require.NoError(t, snap.Start())
	defer snap.Stop()

	msgs, err := b.Query(ledger.QueryFilter{ClusterID: "cluster-1", Topic: ledger.TopicStateSnapshot})
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestLiveFoldPublishesSnapshotOnChange(t *testing.T) {
	b := newTestBus(t)
	snap := New(b, "cluster-1")
	require.NoError(t, snap.Start())
	defer snap.Stop()

	_, err := b.Publish(ledger.Message{
		ClusterID: "cluster-1",
		Topic:     ledger.TopicIssueOpened,
		Sender:    "system",
		Content:   ledger.Content{Text: "do the thing", Data: map[string]any{"title": "Fix bug"}},
	})
	require.NoError(t, err)

	msgs, err := b.Query(ledger.QueryFilter{ClusterID: "cluster-1", Topic: ledger.TopicStateSnapshot})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, "state-snapshotter", msgs[0].Sender)
	require.Equal(t, "broadcast", msgs[0].Receiver)
}

// TestSnapshotIdempotence maps to testable property 7: publishing the same
// state-affecting message twice in a row produces exactly one additional
// STATE_SNAPSHOT.
func TestSnapshotIdempotence(t *testing.T) {
	b := newTestBus(t)
	snap := New(b, "cluster-1")
	require.NoError(t, snap.Start())
	defer snap.Stop()

	issue := ledger.Message{
		ClusterID: "cluster-1",
		Topic:     ledger.TopicIssueOpened,
		Sender:    "system",
		Content:   ledger.Content{Text: "do the thing"},
	}
	_, err := b.Publish(issue)
	require.NoError(t, err)
	_, err = b.Publish(issue)
	require.NoError(t, err)

	msgs, err := b.Query(ledger.QueryFilter{ClusterID: "cluster-1", Topic: ledger.TopicStateSnapshot})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestValidationResultFoldsApprovedAndCriteria(t *testing.T) {
	b := newTestBus(t)
	snap := New(b, "cluster-1")
	require.NoError(t, snap.Start())
	defer snap.Stop()

	_, err := b.Publish(ledger.Message{
		ClusterID: "cluster-1",
		Topic:     ledger.TopicValidationResult,
		Sender:    "validator",
		Content: ledger.Content{
			Data: map[string]any{
				"approved": "true",
				"criteria": []any{
					map[string]any{"id": "AC1", "status": "CANNOT_VALIDATE", "reason": "kubectl not installed"},
				},
			},
		},
	})
	require.NoError(t, err)

	require.NotNil(t, snap.State().Validation)
	require.True(t, snap.State().Validation.Approved)
	require.Len(t, snap.State().Validation.Criteria, 1)
	require.Equal(t, "AC1", snap.State().Validation.Criteria[0].ID)
}

// TestBootstrapFaithfulness maps to testable property 8 / Scenario F: after
// replaying the most recent message per subscribed topic in timestamp order,
// a fresh Snapshotter's state matches what live folding would have produced,
// and bootstrap itself is idempotent (no second snapshot on a later Start).
func TestBootstrapFaithfulness(t *testing.T) {
	l, err := ledger.Open("cluster-2", t.TempDir()+"/ledger.db")
	require.NoError(t, err)
	defer l.Close()
	b := bus.New(l)

	_, err = b.Publish(ledger.Message{ClusterID: "cluster-2", Topic: ledger.TopicIssueOpened, Sender: "system", Content: ledger.Content{Text: "issue"}})
	require.NoError(t, err)
	_, err = b.Publish(ledger.Message{ClusterID: "cluster-2", Topic: ledger.TopicPlanReady, Sender: "planner", Content: ledger.Content{Data: map[string]any{"summary": "the plan"}}})
	require.NoError(t, err)

	snap := New(b, "cluster-2")
	require.NoError(t, snap.Start())
	defer snap.Stop()

	require.NotNil(t, snap.State().Task)
	require.NotNil(t, snap.State().Plan)
	require.Equal(t, "the plan", snap.State().Plan.Summary)

	msgs, err := b.Query(ledger.QueryFilter{ClusterID: "cluster-2", Topic: ledger.TopicStateSnapshot})
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	// A second bootstrap against the now-persisted snapshot must not publish again.
	snap2 := New(b, "cluster-2")
	require.NoError(t, snap2.Start())
	defer snap2.Stop()

	msgs, err = b.Query(ledger.QueryFilter{ClusterID: "cluster-2", Topic: ledger.TopicStateSnapshot})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}
