package agentwrapper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zeroshot-dev/zeroshot/pkg/agentcontext"
	"github.com/zeroshot-dev/zeroshot/pkg/clusterconfig"
	"github.com/zeroshot-dev/zeroshot/pkg/ledger"
	"github.com/zeroshot-dev/zeroshot/pkg/runner"
	"github.com/zeroshot-dev/zeroshot/pkg/snapshot"
)

// Bus is the subset of pkg/bus.MessageBus a Wrapper depends on.
type Bus interface {
	Query(ledger.QueryFilter) ([]ledger.Message, error)
	Publish(ledger.Message) (ledger.Message, error)
}

// Wrapper drives one agent through the spec §4.6 state machine:
// evaluating -> building_context -> executing -> (hooks) -> idle/stopped.
// One Wrapper exists per agent entry in a cluster's config; the orchestrator
// subscribes its OnMessage to the cluster's bus.
type Wrapper struct {
	ClusterID string
	Config    clusterconfig.AgentConfig
	Bus       Bus
	Context   *agentcontext.Builder
	Runner    runner.TaskRunner
	Snapshot  *snapshot.Snapshotter // read-only; supplies Validation for skip criteria

	// OnStopCluster is invoked when this agent's stop_cluster trigger fires
	// or its onComplete hook requests one. The orchestrator wires this to
	// its own cluster-transition logic (spec §4.7); nil is a safe no-op for
	// tests that only assert on AgentWrapper state.
	OnStopCluster func()

	mu             sync.Mutex
	state          State
	iteration      int
	lastTaskEnd    int64
	lastAgentStart int64
	clusterStart   int64
	lastErr        string
}

// NewWrapper wires a Wrapper for one agent config. clusterStart is the
// cluster's creation time in epoch milliseconds, used to resolve the
// "cluster_start" since anchor.
func NewWrapper(clusterID string, cfg clusterconfig.AgentConfig, bus Bus, cb *agentcontext.Builder, r runner.TaskRunner, snap *snapshot.Snapshotter, clusterStart int64) *Wrapper {
	return &Wrapper{
		ClusterID:    clusterID,
		Config:       cfg,
		Bus:          bus,
		Context:      cb,
		Runner:       r,
		Snapshot:     snap,
		state:        StateIdle,
		clusterStart: clusterStart,
	}
}

// State returns a point-in-time snapshot of this agent's runtime state.
func (w *Wrapper) State() AgentState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return AgentState{
		ID:              w.Config.ID,
		Role:            w.Config.Role,
		State:           w.state,
		Iteration:       w.iteration,
		MaxIterations:   w.Config.MaxIterations,
		LastTaskEndTime: w.lastTaskEnd,
		LastAgentStart:  w.lastAgentStart,
		LastError:       w.lastErr,
	}
}

// OnMessage is the bus subscriber entry point. A delivery whose topic
// matches no trigger is a silent no-op; one that fires a stop_cluster
// trigger transitions to stopped without running a task; otherwise the
// agent executes synchronously on the calling goroutine. Per spec §5, a
// caller that must not block the bus's dispatch path should invoke this via
// `go w.OnMessage(msg)`.
func (w *Wrapper) OnMessage(msg ledger.Message) {
	if msg.ClusterID != w.ClusterID {
		return
	}

	w.mu.Lock()
	if w.state == StateStopped {
		w.mu.Unlock()
		return
	}
	w.state = StateEvaluating
	w.mu.Unlock()

	trig, ok := MatchTrigger(w.Config.Triggers, msg)
	if !ok {
		w.mu.Lock()
		w.state = StateIdle
		w.mu.Unlock()
		return
	}

	if trig.Action == clusterconfig.ActionStopCluster {
		w.mu.Lock()
		w.state = StateStopped
		w.mu.Unlock()
		if w.OnStopCluster != nil {
			w.OnStopCluster()
		}
		return
	}

	w.execute(msg)
}

func (w *Wrapper) execute(trigger ledger.Message) {
	w.mu.Lock()
	w.state = StateBuildingContext
	w.lastAgentStart = nowMillis()
	anchors := agentcontext.Anchors{
		ClusterStart:   w.clusterStart,
		LastTaskEnd:    w.lastTaskEnd,
		LastAgentStart: w.lastAgentStart,
	}
	iteration := w.iteration + 1 // 1-based number of the run about to start
	w.mu.Unlock()

	info := w.buildAgentInfo(iteration)
	strategy := agentcontext.Strategy{
		Sources:   clusterconfig.DecodeSources(w.Config.ContextStrategy.Sources),
		MaxTokens: w.Config.ContextStrategy.MaxTokens,
	}

	built, err := w.Context.Build(w.ClusterID, info, strategy, anchors, &trigger)
	if err != nil {
		w.fail(fmt.Sprintf("build context: %v", err))
		return
	}

	model, err := w.resolveModel(iteration)
	if err != nil {
		w.fail(fmt.Sprintf("resolve model: %v", err))
		return
	}

	w.mu.Lock()
	w.state = StateExecuting
	w.mu.Unlock()

	ctx := context.Background()
	if w.Config.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(w.Config.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	isolation := ""
	if w.Config.Isolated {
		isolation = "worktree"
	}

	res, err := w.Runner.Run(ctx, built.Context, runner.Options{
		AgentID:      w.Config.ID,
		Model:        model,
		OutputFormat: info.OutputFormat,
		JSONSchema:   info.JSONSchema,
		Isolation:    isolation,
		Timeout:      w.Config.TimeoutMs,
	})
	if err != nil {
		w.fail(fmt.Sprintf("runner: %v", err))
		return
	}
	if !res.Success {
		w.fail(res.Error)
		return
	}

	output := w.parseOutput(res.Output)
	stop, hookErr := ApplyHooks(w.Bus, w.ClusterID, w.Config.ID, w.Config.Hooks, output)
	if hookErr != nil {
		slog.Error("agentwrapper: onComplete hook failed", "agent", w.Config.ID, "error", hookErr)
	}

	w.mu.Lock()
	w.lastTaskEnd = nowMillis()
	w.iteration++
	reachedMax := w.Config.MaxIterations > 0 && w.iteration >= w.Config.MaxIterations
	if stop || reachedMax {
		w.state = StateStopped
	} else {
		w.state = StateIdle
	}
	w.mu.Unlock()

	if stop && w.OnStopCluster != nil {
		w.OnStopCluster()
	}
}

// fail records a failed task and returns the agent to idle without
// incrementing iteration or publishing anything (spec §4.6 "Failure
// semantics"): a failed task publishes nothing unless the config says
// otherwise, and the agent logs and remains idle.
func (w *Wrapper) fail(reason string) {
	w.mu.Lock()
	w.lastErr = reason
	w.lastTaskEnd = nowMillis()
	w.state = StateIdle
	w.mu.Unlock()
	slog.Warn("agentwrapper: task failed", "agent", w.Config.ID, "reason", reason)
}

func (w *Wrapper) resolveModel(iteration int) (string, error) {
	if len(w.Config.ModelRules) == 0 {
		return string(w.Config.ModelLevel), nil
	}
	return ResolveModel(w.Config.ModelRules, iteration)
}

func (w *Wrapper) buildAgentInfo(iteration int) agentcontext.AgentInfo {
	var jsonSchema map[string]any
	if len(w.Config.JSONSchema) > 0 {
		_ = json.Unmarshal(w.Config.JSONSchema, &jsonSchema)
	}

	legacy := ""
	outputFormat := ""
	if w.Config.OutputFormat == "json" && jsonSchema != nil {
		outputFormat = "json"
	} else if w.Config.OutputFormat != "" {
		legacy = w.Config.OutputFormat
	}

	var skip []agentcontext.SkipCriterion
	if w.Snapshot != nil {
		if st := w.Snapshot.State(); st != nil && st.Validation != nil {
			skip = PermanentSkipCriteria(st.Validation, w.Config.Isolated)
		}
	}

	return agentcontext.AgentInfo{
		ID:                    w.Config.ID,
		Role:                  w.Config.Role,
		Iteration:             iteration,
		Isolated:              w.Config.Isolated,
		Prompt:                w.Config.Prompt,
		PromptVariants:        w.Config.PromptVariants,
		LegacyOutputFormat:    legacy,
		OutputFormat:          outputFormat,
		JSONSchema:            jsonSchema,
		IsValidator:           w.Config.IsValidator(),
		PermanentSkipCriteria: skip,
	}
}

// parseOutput decodes a successful run's raw output. Undecodable output is
// wrapped as {"text": raw} rather than discarded, so a non-JSON-configured
// agent's plain-text result still flows through ApplyHooks. Validator
// output additionally gets its CANNOT_VALIDATE criteria demoted for
// platform mismatches when isolated (spec §4.6 step 5).
func (w *Wrapper) parseOutput(raw string) map[string]any {
	if raw == "" {
		return nil
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"text": raw}
	}

	if w.Config.IsValidator() {
		if rawCriteria, ok := out["criteria"].([]any); ok {
			criteria := make([]map[string]any, 0, len(rawCriteria))
			for _, c := range rawCriteria {
				if m, ok := c.(map[string]any); ok {
					criteria = append(criteria, m)
				}
			}
			demotePlatformMismatches(criteria, w.Config.Isolated)
			asAny := make([]any, len(criteria))
			for i, m := range criteria {
				asAny[i] = m
			}
			out["criteria"] = asAny
		}
	}

	return out
}

func nowMillis() int64 { return time.Now().UnixMilli() }
