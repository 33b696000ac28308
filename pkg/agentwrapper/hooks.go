package agentwrapper

import (
	"github.com/zeroshot-dev/zeroshot/pkg/clusterconfig"
	"github.com/zeroshot-dev/zeroshot/pkg/ledger"
)

// Publisher is the subset of bus access ApplyHooks needs.
type Publisher interface {
	Publish(ledger.Message) (ledger.Message, error)
}

// ApplyHooks runs agentID's onComplete hook, if any, against a successfully
// completed task's parsed output (spec §4.6 step 6). Returns whether the
// hook requests a cluster stop; the caller is responsible for acting on it
// (the orchestrator owns cluster-level transitions, spec §4.7).
func ApplyHooks(pub Publisher, clusterID, agentID string, hooks clusterconfig.Hooks, output map[string]any) (stopCluster bool, err error) {
	if hooks.OnComplete == nil {
		return false, nil
	}

	switch hooks.OnComplete.Action {
	case clusterconfig.HookStopCluster:
		return true, nil

	case clusterconfig.HookPublishMessage:
		msg := ledger.Message{
			ClusterID: clusterID,
			Topic:     hooks.OnComplete.Config.Topic,
			Sender:    agentID,
			Content:   contentFromOutput(output),
		}
		if _, err := pub.Publish(msg); err != nil {
			return false, &HookError{AgentID: agentID, Topic: msg.Topic, Err: err}
		}
		return false, nil

	default:
		return false, nil
	}
}

// contentFromOutput derives a follow-up message's content from a task's
// parsed JSON output: a top-level "text" string becomes content.text, the
// whole object becomes content.data.
func contentFromOutput(output map[string]any) ledger.Content {
	text, _ := output["text"].(string)
	return ledger.Content{Text: text, Data: output}
}
