// Package agentcontext resolves an agent's declarative ContextStrategy
// against the ledger and composes the static and dynamic sections of an
// agent prompt (spec §4.4), handing the assembled packs to
// pkg/contextpack for budgeted selection and rendering.
package agentcontext

import (
	"errors"
	"fmt"

	"github.com/zeroshot-dev/zeroshot/pkg/contextpack"
	"github.com/zeroshot-dev/zeroshot/pkg/ledger"
)

// Strategy is an agent's declarative contextStrategy (spec §3, §6).
type Strategy struct {
	Sources   []Source
	MaxTokens int
}

// SelectStrategy identifies how a Source's messages are queried.
type SelectStrategy string

const (
	StrategyLatest SelectStrategy = "latest"
	StrategyOldest SelectStrategy = "oldest"
	StrategyAll    SelectStrategy = "all"
)

// Source is one entry of contextStrategy.sources (spec §3, §9 "Dynamic
// named parameters"). Unknown JSON keys on the wire must be rejected by the
// decoder that builds this struct (pkg/clusterconfig), not here.
type Source struct {
	Topic           string
	Sender          string
	Since           string // "cluster_start" | "last_task_end" | "last_agent_start" | RFC3339 | ""
	Strategy        SelectStrategy
	Amount          int
	Limit           int // deprecated alias for Amount; Amount wins when both set
	CompactAmount   int
	CompactStrategy SelectStrategy
	Priority        contextpack.Priority
}

// ErrUnknownSince is returned by ResolveSince for an unrecognized literal
// since token. Builder.Build passes it up unchanged; it is not converted to
// a clusterconfig.ConfigError, and pkg/agentwrapper records it as a failed
// task.
var ErrUnknownSince = errors.New("unknown since token")

// Anchors carries the timestamps referenced by the literal since tokens.
type Anchors struct {
	ClusterStart   int64
	LastTaskEnd    int64 // 0 if never set
	LastAgentStart int64 // 0 if never set
}

// Querier is the subset of ledger/bus access AgentContextBuilder needs.
type Querier interface {
	Query(ledger.QueryFilter) ([]ledger.Message, error)
}

func fmtConfigError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnknownSince, fmt.Sprintf(format, args...))
}
