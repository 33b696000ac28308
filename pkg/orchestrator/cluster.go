package orchestrator

import (
	"os"
	"sync"

	"github.com/zeroshot-dev/zeroshot/pkg/agentcontext"
	"github.com/zeroshot-dev/zeroshot/pkg/agentwrapper"
	"github.com/zeroshot-dev/zeroshot/pkg/bus"
	"github.com/zeroshot-dev/zeroshot/pkg/clusterconfig"
	"github.com/zeroshot-dev/zeroshot/pkg/ledger"
	"github.com/zeroshot-dev/zeroshot/pkg/runner"
	"github.com/zeroshot-dev/zeroshot/pkg/snapshot"
)

// Status is a cluster's lifecycle state (spec §4.7).
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// Cluster owns one cluster's Ledger, MessageBus, StateSnapshotter, and one
// AgentWrapper per configured agent.
type Cluster struct {
	ID         string
	ConfigPath string
	LedgerPath string
	CreatedAt  int64

	ledger      *ledger.Ledger
	bus         *bus.MessageBus
	snapshotter *snapshot.Snapshotter
	wrappers    []*agentwrapper.Wrapper

	mu     sync.Mutex
	status Status
	unsubs []bus.Unsubscribe
}

// newCluster opens the bus above l, bootstraps the snapshotter, and
// instantiates one AgentWrapper per cfg.Agents entry, subscribing each to
// the bus off the dispatch path (spec §4.7 `start`, §5 suspension points).
func newCluster(id, configPath, ledgerPath string, cfg clusterconfig.Config, l *ledger.Ledger, r runner.TaskRunner, createdAt int64) (*Cluster, error) {
	b := bus.New(l)
	snap := snapshot.New(b, id)
	if err := snap.Start(); err != nil {
		return nil, err
	}

	c := &Cluster{
		ID:          id,
		ConfigPath:  configPath,
		LedgerPath:  ledgerPath,
		CreatedAt:   createdAt,
		ledger:      l,
		bus:         b,
		snapshotter: snap,
		status:      StatusRunning,
	}

	contextBuilder := agentcontext.NewBuilder(b, b)
	for _, agentCfg := range cfg.Agents {
		w := agentwrapper.NewWrapper(id, agentCfg, b, contextBuilder, r, snap, createdAt)
		w.OnStopCluster = c.stopFromTrigger
		c.wrappers = append(c.wrappers, w)

		wrapper := w
		unsub := b.Subscribe(func(msg ledger.Message) {
			c.mu.Lock()
			stopped := c.status == StatusStopped
			c.mu.Unlock()
			if stopped {
				return
			}
			go wrapper.OnMessage(msg)
		})
		c.unsubs = append(c.unsubs, unsub)
	}

	return c, nil
}

// stopFromTrigger is wired to every wrapper's OnStopCluster: the first
// delivery of the cluster's stop_cluster trigger wins (testable property
// 10); subsequent calls are no-ops.
func (c *Cluster) stopFromTrigger() {
	c.mu.Lock()
	already := c.status == StatusStopped
	c.status = StatusStopped
	c.mu.Unlock()
	if already {
		return
	}
	c.snapshotter.Stop()
	_, _ = c.bus.Publish(ledger.Message{
		ClusterID: c.ID,
		Topic:     ledger.TopicClusterComplete,
		Sender:    "orchestrator",
	})
}

// Stop transitions the cluster to stopped gracefully: no new triggers will
// be evaluated, but wrappers already executing a task run it to completion
// (bounded by their own configured timeout).
func (c *Cluster) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusStopped {
		return
	}
	c.status = StatusStopped
	c.snapshotter.Stop()
}

// Kill forcefully stops the cluster: in addition to Stop's effect, it
// unsubscribes every wrapper immediately so no in-flight bus delivery
// triggers a new task.
func (c *Cluster) Kill() {
	c.Stop()
	c.mu.Lock()
	unsubs := c.unsubs
	c.unsubs = nil
	c.mu.Unlock()
	for _, u := range unsubs {
		u()
	}
}

// AgentState is one agent's runtime status as reported by GetStatus.
type AgentState = agentwrapper.AgentState

// ClusterStatus is the aggregate snapshot returned by GetStatus.
type ClusterStatus struct {
	ID           string
	Status       Status
	CreatedAt    int64
	MessageCount int
	PID          int
	Agents       []AgentState
}

// GetStatus aggregates agent states, message count, creation time, and pid
// (spec §4.7 `getStatus`).
func (c *Cluster) GetStatus() (ClusterStatus, error) {
	msgs, err := c.ledger.Query(ledger.QueryFilter{ClusterID: c.ID})
	if err != nil {
		return ClusterStatus{}, err
	}

	agents := make([]AgentState, 0, len(c.wrappers))
	for _, w := range c.wrappers {
		agents = append(agents, w.State())
	}

	c.mu.Lock()
	status := c.status
	c.mu.Unlock()

	return ClusterStatus{
		ID:           c.ID,
		Status:       status,
		CreatedAt:    c.CreatedAt,
		MessageCount: len(msgs),
		PID:          os.Getpid(),
		Agents:       agents,
	}, nil
}

// Close releases the underlying ledger file. Idempotent.
func (c *Cluster) Close() error {
	return c.ledger.Close()
}
