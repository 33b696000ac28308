package ledger

import (
	"context"
	"log/slog"
	"time"
)

// PollForMessages streams new messages strictly after the highest id already
// delivered. On the first tick it may emit up to backlog historical
// messages (the most recent backlog, in chronological order) before
// switching to pure tail-following. Blocks until ctx is cancelled.
//
// This is the restartable alternative to a live bus subscription — used by
// collaborators (e.g. the out-of-scope TUI) that reattach to a cluster after
// a process restart and have no subscriber state to resume from.
func (l *Ledger) PollForMessages(ctx context.Context, onMessage func(Message), intervalMs int, backlog int) error {
	if intervalMs <= 0 {
		intervalMs = 500
	}

	lastID, err := l.seedBacklog(onMessage, backlog)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			msgs, err := l.Query(QueryFilter{ClusterID: l.clusterID, Order: OrderAsc})
			if err != nil {
				slog.Error("pollForMessages query failed", "cluster_id", l.clusterID, "error", err)
				continue
			}
			for _, m := range msgs {
				if m.ID <= lastID {
					continue
				}
				onMessage(m)
				lastID = m.ID
			}
		}
	}
}

// seedBacklog emits up to backlog of the most recent historical messages (in
// chronological order) and returns the id to resume polling after.
func (l *Ledger) seedBacklog(onMessage func(Message), backlog int) (int64, error) {
	if backlog <= 0 {
		last, err := l.LastID()
		return last, err
	}

	msgs, err := l.Query(QueryFilter{
		ClusterID: l.clusterID,
		Order:     OrderDesc,
		Limit:     backlog,
	})
	if err != nil {
		return 0, err
	}
	// msgs is newest-first; reverse to chronological for delivery.
	for i := len(msgs) - 1; i >= 0; i-- {
		onMessage(msgs[i])
	}

	last, err := l.LastID()
	if err != nil {
		return 0, err
	}
	return last, nil
}
