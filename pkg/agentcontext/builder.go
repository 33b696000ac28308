package agentcontext

import (
	"github.com/zeroshot-dev/zeroshot/pkg/contextpack"
	"github.com/zeroshot-dev/zeroshot/pkg/ledger"
)

// Builder assembles the full pack set for one agent execution: up to six
// static packs plus one dynamic pack per contextStrategy.sources entry, and
// hands them to contextpack.Build under the strategy's token budget.
type Builder struct {
	Querier   Querier
	Publisher Publisher // optional; nil disables ledger-published metrics
}

// NewBuilder wires a Builder to a ledger/bus query interface.
func NewBuilder(q Querier, pub Publisher) *Builder {
	return &Builder{Querier: q, Publisher: pub}
}

const defaultMaxTokens = 100_000

// Build resolves info's sources against clusterID/anchors, combines them
// with the static packs, runs contextpack.Build, and emits context metrics
// per the ZEROSHOT_CONTEXT_METRICS* environment switches. maxTokens <= 0
// falls back to the 100,000-token default (spec §3).
func (b *Builder) Build(clusterID string, info AgentInfo, strategy Strategy, anchors Anchors, trigger *ledger.Message) (contextpack.Result, error) {
	packs := BuildStaticPacks(info, trigger)

	order := len(packs)
	for _, src := range strategy.Sources {
		pack, err := BuildSourcePack(b.Querier, clusterID, src, anchors, order)
		if err != nil {
			return contextpack.Result{}, err
		}
		packs = append(packs, pack)
		order++
	}

	maxTokens := strategy.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	res := contextpack.Build(packs, maxTokens, 0)
	EmitMetrics(b.Publisher, buildMetrics(clusterID, info.ID, info.Iteration, res))
	return res, nil
}
