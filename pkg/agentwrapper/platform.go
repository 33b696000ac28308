package agentwrapper

import (
	"regexp"

	"github.com/zeroshot-dev/zeroshot/pkg/agentcontext"
	"github.com/zeroshot-dev/zeroshot/pkg/snapshot"
)

// platformMismatchPattern matches CANNOT_VALIDATE reasons that stem from a
// cross-arch/platform build error rather than a genuine validation gap --
// e.g. "EBADPLATFORM @esbuild/linux-x64" from an npm install run under a
// worktree/container whose arch differs from the host (spec §4.4 point 5,
// §4.6 step 5).
var platformMismatchPattern = regexp.MustCompile(`(?i)EBADPLATFORM|unsupported platform|wrong architecture|cross-arch`)

// IsPlatformMismatch reports whether reason describes a platform/arch
// mismatch rather than a genuine validation gap.
func IsPlatformMismatch(reason string) bool {
	return platformMismatchPattern.MatchString(reason)
}

// PermanentSkipCriteria extracts CANNOT_VALIDATE (not _YET) criteria ids from
// the current validation snapshot for use as
// agentcontext.AgentInfo.PermanentSkipCriteria, silently excluding
// platform-mismatch reasons when the agent is isolated (spec §4.4 point 5,
// Scenario E).
func PermanentSkipCriteria(v *snapshot.Validation, isolated bool) []agentcontext.SkipCriterion {
	if v == nil {
		return nil
	}
	out := make([]agentcontext.SkipCriterion, 0, len(v.Criteria))
	for _, c := range v.Criteria {
		if c.Status != "CANNOT_VALIDATE" {
			continue
		}
		if isolated && IsPlatformMismatch(c.Reason) {
			continue
		}
		out = append(out, agentcontext.SkipCriterion{ID: c.ID, Reason: c.Reason})
	}
	return out
}

// demotePlatformMismatches rewrites CANNOT_VALIDATE criteria in a validator's
// freshly parsed output to PASS when the agent is isolated and the reason is
// a platform mismatch (spec §4.6 step 5). criteria is the decoded
// output.criteria array; entries are mutated in place and also returned.
func demotePlatformMismatches(criteria []map[string]any, isolated bool) []map[string]any {
	if !isolated {
		return criteria
	}
	for _, c := range criteria {
		status, _ := c["status"].(string)
		reason, _ := c["reason"].(string)
		if status == "CANNOT_VALIDATE" && IsPlatformMismatch(reason) {
			c["status"] = "PASS"
			c["reason"] = ""
		}
	}
	return criteria
}
