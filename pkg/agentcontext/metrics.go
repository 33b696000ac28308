package agentcontext

import (
	"fmt"
	"os"

	"github.com/zeroshot-dev/zeroshot/pkg/contextpack"
	"github.com/zeroshot-dev/zeroshot/pkg/ledger"
)

const (
	envPrintMetrics   = "ZEROSHOT_CONTEXT_METRICS"
	envPublishMetrics = "ZEROSHOT_CONTEXT_METRICS_LEDGER"

	metricsSender = "context-builder"
)

// Metrics summarizes one context build for observability (spec §4.4, §6).
type Metrics struct {
	ClusterID      string `json:"cluster_id"`
	AgentID        string `json:"agent_id"`
	Iteration      int    `json:"iteration"`
	MaxTokens      int    `json:"max_tokens"`
	UsedTokens     int    `json:"used_tokens"`
	OverBudget     int    `json:"over_budget_tokens"`
	FinalChars     int    `json:"final_chars"`
	PacksIncluded  int    `json:"packs_included"`
	PacksSkipped   int    `json:"packs_skipped"`
	PacksTruncated int    `json:"packs_truncated"`
}

func buildMetrics(clusterID, agentID string, iteration int, res contextpack.Result) Metrics {
	m := Metrics{
		ClusterID:  clusterID,
		AgentID:    agentID,
		Iteration:  iteration,
		MaxTokens:  res.Accounting.MaxTokens,
		UsedTokens: res.Accounting.UsedTokens,
		OverBudget: res.Accounting.OverBudgetTokens,
		FinalChars: res.Accounting.FinalChars,
	}
	for _, d := range res.Decisions {
		switch d.Status {
		case contextpack.StatusIncluded:
			m.PacksIncluded++
		case contextpack.StatusSkipped:
			m.PacksSkipped++
		}
		if d.Truncated {
			m.PacksTruncated++
		}
	}
	return m
}

// Publisher is the subset of MessageBus needed to emit CONTEXT_METRICS.
type Publisher interface {
	Publish(ledger.Message) (ledger.Message, error)
}

// EmitMetrics prints and/or publishes m according to the ZEROSHOT_CONTEXT_METRICS*
// environment switches (spec §6). Either, both, or neither may be enabled.
func EmitMetrics(pub Publisher, m Metrics) {
	if os.Getenv(envPrintMetrics) == "1" {
		fmt.Printf("context metrics: cluster=%s agent=%s iteration=%d tokens=%d/%d chars=%d included=%d skipped=%d truncated=%d\n",
			m.ClusterID, m.AgentID, m.Iteration, m.UsedTokens, m.MaxTokens, m.FinalChars, m.PacksIncluded, m.PacksSkipped, m.PacksTruncated)
	}

	if os.Getenv(envPublishMetrics) == "1" && pub != nil {
		_, _ = pub.Publish(ledger.Message{
			ClusterID: m.ClusterID,
			Topic:     ledger.TopicContextMetrics,
			Sender:    metricsSender,
			Content: ledger.Content{
				Data: map[string]any{
					"agent_id":        m.AgentID,
					"iteration":       m.Iteration,
					"max_tokens":      m.MaxTokens,
					"used_tokens":     m.UsedTokens,
					"over_budget":     m.OverBudget,
					"final_chars":     m.FinalChars,
					"packs_included":  m.PacksIncluded,
					"packs_skipped":   m.PacksSkipped,
					"packs_truncated": m.PacksTruncated,
				},
			},
		})
	}
}
