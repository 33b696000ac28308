package agentwrapper

import (
	"github.com/zeroshot-dev/zeroshot/pkg/clusterconfig"
	"github.com/zeroshot-dev/zeroshot/pkg/ledger"
)

// MatchTrigger returns the first trigger whose topic matches msg and, for
// execute_task triggers carrying a predicate, whose Logic evaluates truthy
// against msg (spec §4.6). stop_cluster triggers never carry a predicate in
// practice but are matched unconditionally if present, since the cluster
// should halt on topic delivery alone.
func MatchTrigger(triggers []clusterconfig.Trigger, msg ledger.Message) (clusterconfig.Trigger, bool) {
	for _, t := range triggers {
		if t.Topic != msg.Topic {
			continue
		}
		action := t.Action
		if action == "" {
			action = clusterconfig.ActionExecuteTask
		}
		if action == clusterconfig.ActionStopCluster {
			return t, true
		}
		if EvaluatePredicate(t.Logic, msg) {
			return t, true
		}
	}
	return clusterconfig.Trigger{}, false
}
