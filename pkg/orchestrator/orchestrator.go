// Package orchestrator owns the cluster registry: starting, stopping,
// killing, and re-opening clusters, each wiring a Ledger, MessageBus,
// StateSnapshotter, and one AgentWrapper per configured agent (spec §4.7).
package orchestrator

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeroshot-dev/zeroshot/pkg/agentwrapper"
	"github.com/zeroshot-dev/zeroshot/pkg/clusterconfig"
	"github.com/zeroshot-dev/zeroshot/pkg/ledger"
	"github.com/zeroshot-dev/zeroshot/pkg/runner"
)

// Input is the {text, data} payload Start derives ISSUE_OPENED from.
type Input struct {
	Text string
	Data map[string]any
}

// ErrClusterNotFound is returned by any cluster-scoped operation on an
// unknown id.
var ErrClusterNotFound = errors.New("orchestrator: cluster not found")

// Orchestrator is the engine's single entry point for cluster lifecycle
// operations. One Orchestrator owns every cluster rooted at storageDir.
type Orchestrator struct {
	storageDir string
	runner     runner.TaskRunner
	registry   *registry

	mu       sync.Mutex
	clusters map[string]*Cluster
}

// Create scans the registry under storageDir and re-opens every persisted,
// non-stopped cluster's ledger, replaying StateSnapshotter bootstrap for
// each (spec §4.7 `create({ storageDir })`).
func Create(storageDir string, r runner.TaskRunner) (*Orchestrator, error) {
	o := &Orchestrator{
		storageDir: storageDir,
		runner:     r,
		registry:   newRegistry(storageDir),
		clusters:   make(map[string]*Cluster),
	}

	entries, err := o.registry.list()
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		if e.Status == string(StatusStopped) {
			continue
		}
		if err := o.reopen(e); err != nil {
			slog.Error("orchestrator: failed to reopen cluster on startup",
				"cluster_id", e.ID, "error", err)
		}
	}

	return o, nil
}

func (o *Orchestrator) reopen(e registryEntry) error {
	cfg, err := loadConfig(e.ConfigPath)
	if err != nil {
		return err
	}

	l, err := ledger.Open(e.ID, e.LedgerPath)
	if err != nil {
		return err
	}

	c, err := newCluster(e.ID, e.ConfigPath, e.LedgerPath, *cfg, l, o.runner, e.CreatedAt)
	if err != nil {
		_ = l.Close()
		return err
	}

	o.mu.Lock()
	o.clusters[e.ID] = c
	o.mu.Unlock()
	return nil
}

func loadConfig(path string) (*clusterconfig.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := clusterconfig.Decode(data)
	if err != nil {
		return nil, err
	}
	if err := clusterconfig.NewValidator(cfg).ValidateAll(); err != nil {
		return nil, err
	}
	warnPredicateSyntax(cfg)
	return cfg, nil
}

// warnPredicateSyntax logs a warning for any trigger.logic that fails to
// parse. clusterconfig's own validator cannot perform this check itself
// without importing pkg/agentwrapper (which already imports clusterconfig
// for trigger/hook types), so it runs here, the first place both packages
// are available together. A malformed predicate is not fatal -- it simply
// evaluates false on every delivery (spec §4.6) -- so this only warns.
func warnPredicateSyntax(cfg *clusterconfig.Config) {
	for _, agent := range cfg.Agents {
		for _, t := range agent.Triggers {
			if t.Logic == "" {
				continue
			}
			if err := agentwrapper.ValidatePredicateSyntax(t.Logic); err != nil {
				slog.Warn("orchestrator: trigger predicate will never fire",
					"agent_id", agent.ID, "topic", t.Topic, "error", err)
			}
		}
	}
}

// Start allocates a cluster id, opens a new Ledger and MessageBus,
// publishes ISSUE_OPENED derived from input, instantiates the
// StateSnapshotter and one AgentWrapper per agent in cfg, subscribes each
// wrapper to the bus, transitions the cluster to running, and writes an
// entry into the cluster registry file (spec §4.7 `start`). configPath is
// recorded so the cluster can be re-opened by Create after a restart.
func (o *Orchestrator) Start(cfg clusterconfig.Config, configPath string, input Input) (string, error) {
	if err := clusterconfig.NewValidator(&cfg).ValidateAll(); err != nil {
		return "", err
	}
	warnPredicateSyntax(&cfg)

	id := uuid.New().String()
	ledgerPath := filepath.Join(o.storageDir, id, "ledger.db")
	createdAt := time.Now().UnixMilli()

	l, err := ledger.Open(id, ledgerPath)
	if err != nil {
		return "", err
	}

	c, err := newCluster(id, configPath, ledgerPath, cfg, l, o.runner, createdAt)
	if err != nil {
		_ = l.Close()
		return "", err
	}

	if _, err := c.bus.Publish(ledger.Message{
		ClusterID: id,
		Topic:     ledger.TopicIssueOpened,
		Sender:    "orchestrator",
		Content:   ledger.Content{Text: input.Text, Data: input.Data},
	}); err != nil {
		_ = c.Close()
		return "", err
	}

	if err := o.registry.upsert(registryEntry{
		ID:         id,
		LedgerPath: ledgerPath,
		ConfigPath: configPath,
		Status:     string(StatusRunning),
		CreatedAt:  createdAt,
	}); err != nil {
		_ = c.Close()
		return "", err
	}

	o.mu.Lock()
	o.clusters[id] = c
	o.mu.Unlock()

	return id, nil
}

func (o *Orchestrator) get(id string) (*Cluster, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.clusters[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClusterNotFound, id)
	}
	return c, nil
}

// Stop gracefully stops cluster id: running tasks finish, no new trigger
// fires afterward.
func (o *Orchestrator) Stop(id string) error {
	c, err := o.get(id)
	if err != nil {
		return err
	}
	c.Stop()
	return o.persistStatus(c)
}

// Kill forcefully stops cluster id, unsubscribing every agent immediately.
func (o *Orchestrator) Kill(id string) error {
	c, err := o.get(id)
	if err != nil {
		return err
	}
	c.Kill()
	return o.persistStatus(c)
}

func (o *Orchestrator) persistStatus(c *Cluster) error {
	status, err := c.GetStatus()
	if err != nil {
		return err
	}
	return o.registry.upsert(registryEntry{
		ID:         c.ID,
		LedgerPath: c.LedgerPath,
		ConfigPath: c.ConfigPath,
		Status:     string(status.Status),
		CreatedAt:  c.CreatedAt,
	})
}

// GetStatus reports cluster id's aggregate status (spec §4.7 `getStatus`).
func (o *Orchestrator) GetStatus(id string) (ClusterStatus, error) {
	c, err := o.get(id)
	if err != nil {
		return ClusterStatus{}, err
	}
	return c.GetStatus()
}

// Export renders cluster id's transcript in the given format. Only
// "markdown" is supported (spec §4.7 `export`).
func (o *Orchestrator) Export(id, format string) (string, error) {
	c, err := o.get(id)
	if err != nil {
		return "", err
	}
	if format != "markdown" {
		return "", fmt.Errorf("orchestrator: unsupported export format %q", format)
	}
	return c.ExportMarkdown()
}

// ListClusters returns every in-memory cluster's current aggregate status
// (spec §4.7 `listClusters`).
func (o *Orchestrator) ListClusters() []ClusterStatus {
	o.mu.Lock()
	ids := make([]string, 0, len(o.clusters))
	for id := range o.clusters {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	out := make([]ClusterStatus, 0, len(ids))
	for _, id := range ids {
		if st, err := o.GetStatus(id); err == nil {
			out = append(out, st)
		}
	}
	return out
}

// WatchForNewClusters polls the registry every intervalMs for entries not
// yet held in memory -- e.g. written by a sibling process sharing
// storageDir -- reopens each, and invokes cb with its status (spec §4.7
// `watchForNewClusters`). Returns a stop function, safe to call more than
// once.
func (o *Orchestrator) WatchForNewClusters(cb func(ClusterStatus), intervalMs int) func() {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				o.pollRegistry(cb)
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }
}

func (o *Orchestrator) pollRegistry(cb func(ClusterStatus)) {
	entries, err := o.registry.list()
	if err != nil {
		slog.Error("orchestrator: failed to list registry while watching", "error", err)
		return
	}

	for _, e := range entries {
		o.mu.Lock()
		_, known := o.clusters[e.ID]
		o.mu.Unlock()
		if known {
			continue
		}

		if err := o.reopen(e); err != nil {
			slog.Error("orchestrator: failed to reopen newly discovered cluster",
				"cluster_id", e.ID, "error", err)
			continue
		}

		if st, err := o.GetStatus(e.ID); err == nil {
			cb(st)
		}
	}
}

// Close closes every open cluster's ledger file. Intended for process
// shutdown.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var firstErr error
	for _, c := range o.clusters {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
