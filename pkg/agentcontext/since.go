package agentcontext

import "time"

const (
	sinceClusterStart   = "cluster_start"
	sinceLastTaskEnd    = "last_task_end"
	sinceLastAgentStart = "last_agent_start"
)

// ResolveSince resolves a source's since value against anchors. Empty
// returns 0 (no lower bound). Spec §4.4.
func ResolveSince(since string, anchors Anchors) (int64, error) {
	switch since {
	case "":
		return 0, nil
	case sinceClusterStart:
		return anchors.ClusterStart, nil
	case sinceLastTaskEnd:
		return anchors.LastTaskEnd, nil
	case sinceLastAgentStart:
		return anchors.LastAgentStart, nil
	}

	if t, err := time.Parse(time.RFC3339, since); err == nil {
		return t.UnixMilli(), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, since); err == nil {
		return t.UnixMilli(), nil
	}

	return 0, fmtConfigError("since=%q", since)
}
