package snapshot

import (
	"fmt"

	"github.com/zeroshot-dev/zeroshot/pkg/ledger"
)

// SubscribedTopics are the state-affecting topics the snapshotter watches
// (spec §4.5).
var SubscribedTopics = []string{
	ledger.TopicIssueOpened,
	ledger.TopicPlanReady,
	ledger.TopicWorkerProgress,
	ledger.TopicImplementationReady,
	ledger.TopicValidationResult,
	ledger.TopicInvestigationComplete,
}

func stringField(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func boolField(data map[string]any, key string) bool {
	return normalizeBoolean(data[key])
}

// normalizeBoolean implements spec §9 Open Question 2: some producers send
// approved as the string "true"/"false" rather than a JSON boolean. The
// snapshotter accepts both, normalizing to a strict Go bool.
func normalizeBoolean(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t == "true"
	default:
		return false
	}
}

func stringListField(data map[string]any, key string) []string {
	raw, ok := data[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func numberField(data map[string]any, key string) int {
	switch v := data[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Fold applies one state-affecting message to state, returning the updated
// state. state is mutated in place and also returned for convenience.
func Fold(state *State, msg ledger.Message) *State {
	if state == nil {
		state = &State{Version: schemaVersion}
	}
	data := msg.Content.Data

	switch msg.Topic {
	case ledger.TopicIssueOpened:
		state.Task = &Task{
			RawText: truncate(msg.Content.Text, maxTextField),
			Title:   truncate(stringField(data, "title"), maxListField),
			Issue:   stringField(data, "issue"),
			Source:  stringField(data, "source"),
		}

	case ledger.TopicPlanReady:
		state.Plan = &Plan{
			Summary:            truncate(stringField(data, "summary"), maxTextField),
			AcceptanceCriteria: truncateList(stringListField(data, "acceptanceCriteria"), maxListItems, maxListField),
			FilesAffected:      truncateList(stringListField(data, "filesAffected"), maxListItems, maxListField),
			PlanText:           truncate(stringField(data, "planText"), maxTextField),
		}

	case ledger.TopicWorkerProgress, ledger.TopicImplementationReady:
		cs, _ := data["completionStatus"].(map[string]any)
		state.Progress = &Progress{
			CanValidate:     boolField(cs, "canValidate"),
			PercentComplete: numberField(cs, "percentComplete"),
			Blockers:        truncateList(stringListField(cs, "blockers"), maxListItems, maxListField),
			NextSteps:       truncateList(stringListField(cs, "nextSteps"), maxListItems, maxListField),
			LastSummary:     truncate(stringField(cs, "summary"), maxTextField),
		}

	case ledger.TopicValidationResult:
		state.Validation = &Validation{
			Approved: boolField(data, "approved"),
			Errors:   truncateList(stringListField(data, "errors"), maxListItems, maxListField),
			Criteria: foldCriteria(data),
		}

	case ledger.TopicInvestigationComplete:
		state.Debug = &Debug{
			FixPlan:         truncate(stringField(data, "fixPlan"), maxTextField),
			SuccessCriteria: truncateList(stringListField(data, "successCriteria"), maxListItems, maxListField),
			RootCauses:      truncateList(stringListField(data, "rootCauses"), maxListItems, maxListField),
		}
	}

	return state
}

func foldCriteria(data map[string]any) []CriteriaResult {
	raw, ok := data["criteria"].([]any)
	if !ok {
		return nil
	}
	n := len(raw)
	if n > maxListItems {
		n = maxListItems
	}
	out := make([]CriteriaResult, 0, n)
	for i := 0; i < n; i++ {
		m, ok := raw[i].(map[string]any)
		if !ok {
			continue
		}
		out = append(out, CriteriaResult{
			ID:       stringField(m, "id"),
			Status:   stringField(m, "status"),
			Reason:   truncate(stringField(m, "reason"), maxListField),
			Evidence: truncate(stringField(m, "evidence"), maxListField),
		})
	}
	return out
}

// Summary renders the short multi-line text published alongside State.data
// (spec §4.5: "content.text being a short multi-line summary").
func Summary(s *State) string {
	if s == nil {
		return "(no state)"
	}
	out := ""
	if s.Task != nil {
		out += fmt.Sprintf("task: %s\n", firstNonEmpty(s.Task.Title, s.Task.RawText))
	}
	if s.Plan != nil {
		out += fmt.Sprintf("plan: %s\n", s.Plan.Summary)
	}
	if s.Progress != nil {
		out += fmt.Sprintf("progress: %d%% canValidate=%v\n", s.Progress.PercentComplete, s.Progress.CanValidate)
	}
	if s.Validation != nil {
		out += fmt.Sprintf("validation: approved=%v errors=%d\n", s.Validation.Approved, len(s.Validation.Errors))
	}
	if s.Debug != nil {
		out += fmt.Sprintf("debug: %s\n", s.Debug.FixPlan)
	}
	if out == "" {
		return "(no state)"
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
