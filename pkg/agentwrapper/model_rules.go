package agentwrapper

import (
	"errors"
	"fmt"

	"github.com/zeroshot-dev/zeroshot/pkg/agentcontext"
	"github.com/zeroshot-dev/zeroshot/pkg/clusterconfig"
)

// ErrNoCatchAllModelRule indicates a model-rule list with no "all" pattern.
// pkg/clusterconfig.Validator should reject this before start, so resolution
// hitting it at runtime indicates a config that bypassed validation.
var ErrNoCatchAllModelRule = errors.New("no catch-all model rule")

// ResolveModel picks the model for iteration using the first rule whose
// iterations pattern matches, per spec §4.6 ("the first matching rule
// wins; there must be a catch-all").
func ResolveModel(rules []clusterconfig.ModelRule, iteration int) (string, error) {
	for _, r := range rules {
		if agentcontext.MatchesIterationPattern(r.Iterations, iteration) {
			return r.Model, nil
		}
	}
	return "", fmt.Errorf("%w: iteration %d matched no rule", ErrNoCatchAllModelRule, iteration)
}
