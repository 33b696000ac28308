package bus

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeroshot-dev/zeroshot/pkg/ledger"
)

func newTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	path := t.TempDir() + "/c1.db"
	l, err := ledger.Open("c1", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestPublishRejectsMissingFields(t *testing.T) {
	b := New(newTestLedger(t))

	_, err := b.Publish(ledger.Message{Topic: "T", Sender: "s"})
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestPublishFansOutInRegistrationOrder(t *testing.T) {
	b := New(newTestLedger(t))

	var mu sync.Mutex
	var order []string

	b.Subscribe(func(m ledger.Message) {
		mu.Lock()
		order = append(order, "all-1")
		mu.Unlock()
	})
	b.SubscribeTopic("ISSUE_OPENED", func(m ledger.Message) {
		mu.Lock()
		order = append(order, "topic")
		mu.Unlock()
	})
	b.Subscribe(func(m ledger.Message) {
		mu.Lock()
		order = append(order, "all-2")
		mu.Unlock()
	})

	_, err := b.Publish(ledger.Message{ClusterID: "c1", Topic: "ISSUE_OPENED", Sender: "system"})
	require.NoError(t, err)

	require.Equal(t, []string{"all-1", "topic", "all-2"}, order)
}

func TestSubscriberPanicDoesNotBreakSiblingsOrPublisher(t *testing.T) {
	b := New(newTestLedger(t))

	delivered := false
	b.Subscribe(func(m ledger.Message) { panic("boom") })
	b.Subscribe(func(m ledger.Message) { delivered = true })

	_, err := b.Publish(ledger.Message{ClusterID: "c1", Topic: "T", Sender: "s"})
	require.NoError(t, err)
	require.True(t, delivered)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(newTestLedger(t))

	count := 0
	unsub := b.Subscribe(func(m ledger.Message) { count++ })

	_, err := b.Publish(ledger.Message{ClusterID: "c1", Topic: "T", Sender: "s"})
	require.NoError(t, err)
	require.Equal(t, 1, count)

	unsub()
	_, err = b.Publish(ledger.Message{ClusterID: "c1", Topic: "T", Sender: "s"})
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestSubscribeTopicsMultiplexesAndUnsubscribesAll(t *testing.T) {
	b := New(newTestLedger(t))

	count := 0
	unsub := b.SubscribeTopics([]string{"A", "B"}, func(m ledger.Message) { count++ })

	_, err := b.Publish(ledger.Message{ClusterID: "c1", Topic: "A", Sender: "s"})
	require.NoError(t, err)
	_, err = b.Publish(ledger.Message{ClusterID: "c1", Topic: "B", Sender: "s"})
	require.NoError(t, err)
	_, err = b.Publish(ledger.Message{ClusterID: "c1", Topic: "C", Sender: "s"})
	require.NoError(t, err)
	require.Equal(t, 2, count)

	unsub()
	_, err = b.Publish(ledger.Message{ClusterID: "c1", Topic: "A", Sender: "s"})
	require.NoError(t, err)
	require.Equal(t, 2, count)
}
