package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/zeroshot-dev/zeroshot/pkg/ledger"
)

// ExportMarkdown renders the cluster's full message history as a readable
// transcript (spec §4.7 `export(id, "markdown")`).
func (c *Cluster) ExportMarkdown() (string, error) {
	msgs, err := c.ledger.Query(ledger.QueryFilter{ClusterID: c.ID, Order: ledger.OrderAsc})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# Cluster %s\n\n", c.ID)

	for _, m := range msgs {
		ts := time.UnixMilli(m.Timestamp).UTC().Format(time.RFC3339)
		fmt.Fprintf(&sb, "## %s — %s (%s)\n\n", m.Topic, m.Sender, ts)
		if m.Content.Text != "" {
			sb.WriteString(m.Content.Text)
			sb.WriteString("\n\n")
		}
		if len(m.Content.Data) > 0 {
			fmt.Fprintf(&sb, "```json\n%v\n```\n\n", m.Content.Data)
		}
	}

	return sb.String(), nil
}
