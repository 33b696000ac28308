package agentcontext

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/zeroshot-dev/zeroshot/pkg/contextpack"
	"github.com/zeroshot-dev/zeroshot/pkg/ledger"
)

// requiredByDefault lists topics that default to required priority when the
// source config doesn't declare one explicitly (spec §4.4).
var requiredByDefault = map[string]bool{
	ledger.TopicStateSnapshot: true,
	ledger.TopicIssueOpened:   true,
	ledger.TopicPlanReady:     true,
}

// highByDefault lists topics that default to high priority.
var highByDefault = map[string]bool{
	ledger.TopicValidationResult:    true,
	ledger.TopicImplementationReady: true,
}

func defaultPriority(topic string) contextpack.Priority {
	switch {
	case requiredByDefault[topic]:
		return contextpack.PriorityRequired
	case highByDefault[topic]:
		return contextpack.PriorityHigh
	default:
		return contextpack.PriorityMedium
	}
}

// resolvedAmount implements spec §9 Open Question 1: amount and limit are
// both accepted; amount wins when both are set, and limit alone is
// deprecated but still honored (logging a warning each time it is resolved).
func resolvedAmount(s Source) int {
	if s.Amount > 0 {
		if s.Limit > 0 && s.Limit != s.Amount {
			slog.Warn("contextStrategy source sets both amount and limit; amount takes precedence",
				"topic", s.Topic, "amount", s.Amount, "limit", s.Limit)
		}
		return s.Amount
	}
	if s.Limit > 0 {
		slog.Warn("contextStrategy source uses deprecated 'limit'; prefer 'amount'", "topic", s.Topic)
		return s.Limit
	}
	return 0
}

func resolvedCompactAmount(s Source) int {
	if s.CompactAmount > 0 {
		return s.CompactAmount
	}
	return 1
}

func resolvedCompactStrategy(s Source) SelectStrategy {
	if s.CompactStrategy != "" {
		return s.CompactStrategy
	}
	if s.Strategy == StrategyAll {
		return StrategyLatest
	}
	return s.Strategy
}

// fetch runs one strategy/amount combination against the querier and returns
// the messages in chronological (ascending) order, per spec §4.4:
//   - latest: DESC with limit, then reverse to chronological
//   - oldest: ASC with limit
//   - all: ASC, limit only if amount is set
func fetch(q Querier, clusterID string, s Source, since int64, strategy SelectStrategy, amount int) ([]ledger.Message, error) {
	filter := ledger.QueryFilter{
		ClusterID: clusterID,
		Topic:     s.Topic,
		Sender:    s.Sender,
		Since:     since,
	}

	switch strategy {
	case StrategyLatest:
		filter.Order = ledger.OrderDesc
		filter.Limit = amount
		msgs, err := q.Query(filter)
		if err != nil {
			return nil, err
		}
		reverse(msgs)
		return msgs, nil
	case StrategyOldest:
		filter.Order = ledger.OrderAsc
		filter.Limit = amount
		return q.Query(filter)
	default: // StrategyAll
		filter.Order = ledger.OrderAsc
		filter.Limit = amount
		return q.Query(filter)
	}
}

func reverse(msgs []ledger.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}

func renderMessages(msgs []ledger.Message) string {
	if len(msgs) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, m := range msgs {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		fmt.Fprintf(&sb, "[%s from %s]\n", m.Topic, m.Sender)
		if m.Content.Text != "" {
			sb.WriteString(m.Content.Text)
		}
		if len(m.Content.Data) > 0 {
			fmt.Fprintf(&sb, "\ndata: %v", m.Content.Data)
		}
	}
	return sb.String()
}

// BuildSourcePack resolves a single Source against the ledger and returns
// its contextpack.Pack. order is the pack's stable tie-breaker.
func BuildSourcePack(q Querier, clusterID string, s Source, anchors Anchors, order int) (contextpack.Pack, error) {
	since, err := ResolveSince(s.Since, anchors)
	if err != nil {
		return contextpack.Pack{}, err
	}

	strategy := s.Strategy
	if strategy == "" {
		strategy = StrategyLatest
	}
	amount := resolvedAmount(s)

	priority := s.Priority
	if priority == "" {
		priority = defaultPriority(s.Topic)
	}

	id := "source:" + s.Topic
	if s.Sender != "" {
		id += ":" + s.Sender
	}

	return contextpack.Pack{
		ID:       id,
		Section:  s.Topic,
		Priority: priority,
		Order:    order,
		Render: func() string {
			msgs, err := fetch(q, clusterID, s, since, strategy, amount)
			if err != nil {
				slog.Error("context source query failed", "topic", s.Topic, "error", err)
				return ""
			}
			return renderMessages(msgs)
		},
		Compact: func() string {
			cs := resolvedCompactStrategy(s)
			ca := resolvedCompactAmount(s)
			msgs, err := fetch(q, clusterID, s, since, cs, ca)
			if err != nil {
				slog.Error("context source compact query failed", "topic", s.Topic, "error", err)
				return ""
			}
			return renderMessages(msgs)
		},
	}, nil
}
