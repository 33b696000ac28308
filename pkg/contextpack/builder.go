package contextpack

import "sort"

// Status of a pack's selection outcome.
type Status string

const (
	StatusIncluded Status = "included"
	StatusSkipped  Status = "skipped"
)

// Variant identifies which rendering of a pack was used.
type Variant string

const (
	VariantFull    Variant = "full"
	VariantCompact Variant = "compact"
	VariantNone    Variant = "none"
)

// Decision records what happened to one pack.
type Decision struct {
	PackID    string
	Status    Status
	Variant   Variant
	Chars     int
	Tokens    int
	Truncated bool
	Reason    string // "budget", "char_guard", ""
}

// Accounting summarizes the budget outcome of one Build call.
type Accounting struct {
	MaxTokens        int
	UsedTokens       int
	OverBudgetTokens int
	MaxChars         int
	FinalChars       int
}

// Result is the output of Build.
type Result struct {
	Context    string
	Decisions  []Decision
	Accounting Accounting
}

const defaultMaxChars = 500_000
const truncationMarker = "\n…[truncated]"

type entry struct {
	pack      Pack
	status    Status
	variant   Variant
	text      string
	truncated bool
	reason    string
}

func (e *entry) chars() int  { return len(e.text) }
func (e *entry) tokens() int { return EstimateTokens(e.text) }

// Build selects and renders packs under maxTokens, then applies the
// maxChars hard guard (defaultMaxChars if maxChars <= 0). Spec §4.3.
func Build(packs []Pack, maxTokens int, maxChars int) Result {
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}

	entries := make(map[string]*entry, len(packs))
	order := make([]string, 0, len(packs))
	for _, p := range packs {
		entries[p.ID] = &entry{pack: p}
		order = append(order, p.ID)
	}

	queue := make([]Pack, len(packs))
	copy(queue, packs)
	sort.SliceStable(queue, func(i, j int) bool {
		pi, pj := queue[i].effectivePriority(), queue[j].effectivePriority()
		if pi != pj {
			return priorityRank(pi) < priorityRank(pj)
		}
		return queue[i].Order < queue[j].Order
	})

	remaining := maxTokens
	overBudget := 0

	for _, p := range queue {
		e := entries[p.ID]
		full := p.Render()
		fullTokens := EstimateTokens(full)

		var compact string
		hasCompact := p.hasCompact()
		if hasCompact {
			compact = p.Compact()
		}
		compactTokens := EstimateTokens(compact)

		if p.effectivePriority() == PriorityRequired {
			switch {
			case fullTokens <= remaining:
				e.status, e.variant, e.text = StatusIncluded, VariantFull, full
			case hasCompact && (compactTokens <= remaining || compactTokens < fullTokens):
				e.status, e.variant, e.text = StatusIncluded, VariantCompact, compact
			default:
				e.status, e.variant, e.text = StatusIncluded, VariantFull, full
			}
			used := EstimateTokens(e.text)
			if used > remaining {
				overBudget += used - remaining
				remaining = 0
			} else {
				remaining -= used
			}
			continue
		}

		switch {
		case fullTokens <= remaining:
			e.status, e.variant, e.text = StatusIncluded, VariantFull, full
			remaining -= fullTokens
		case hasCompact && compactTokens <= remaining:
			e.status, e.variant, e.text = StatusIncluded, VariantCompact, compact
			remaining -= compactTokens
		default:
			e.status, e.variant, e.text = StatusSkipped, VariantNone, ""
		}
	}

	applyCharGuard(packs, entries, order, maxChars)

	var ctx string
	decisions := make([]Decision, 0, len(order))
	usedTokens := 0
	for i, id := range order {
		e := entries[id]
		if e.status == StatusIncluded {
			if i > 0 && ctx != "" {
				ctx += "\n\n"
			}
			ctx += e.text
			usedTokens += e.tokens()
		}
		reason := ""
		if e.status == StatusSkipped {
			reason = e.reasonOrDefault()
		}
		decisions = append(decisions, Decision{
			PackID:    id,
			Status:    e.status,
			Variant:   e.variant,
			Chars:     e.chars(),
			Tokens:    e.tokens(),
			Truncated: e.truncated,
			Reason:    reason,
		})
	}

	return Result{
		Context:   ctx,
		Decisions: decisions,
		Accounting: Accounting{
			MaxTokens:        maxTokens,
			UsedTokens:       usedTokens,
			OverBudgetTokens: overBudget,
			MaxChars:         maxChars,
			FinalChars:       len(ctx),
		},
	}
}

func (e *entry) reasonOrDefault() string {
	if e.reason == "" {
		return "budget"
	}
	return e.reason
}
