package agentwrapper

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zeroshot-dev/zeroshot/pkg/ledger"
)

func msgWithData(data map[string]any) ledger.Message {
	return ledger.Message{Topic: "VALIDATION_RESULT", Sender: "validator", Content: ledger.Content{Data: data}}
}

func TestEvaluatePredicateEmptyScriptAlwaysFires(t *testing.T) {
	require.True(t, EvaluatePredicate("", msgWithData(nil)))
}

func TestEvaluatePredicateFieldComparison(t *testing.T) {
	require.True(t, EvaluatePredicate("message.data.approved == true", msgWithData(map[string]any{"approved": true})))
	require.False(t, EvaluatePredicate("message.data.approved == true", msgWithData(map[string]any{"approved": false})))
}

func TestEvaluatePredicateAndOrNot(t *testing.T) {
	data := map[string]any{"approved": true, "count": float64(3)}
	require.True(t, EvaluatePredicate("message.data.approved == true && message.data.count > 1", msgWithData(data)))
	require.False(t, EvaluatePredicate("message.data.approved == true && message.data.count > 10", msgWithData(data)))
	require.True(t, EvaluatePredicate("message.data.count > 10 || message.data.approved == true", msgWithData(data)))
	require.False(t, EvaluatePredicate("!message.data.approved", msgWithData(data)))
}

func TestEvaluatePredicateMalformedScriptIsFalse(t *testing.T) {
	require.False(t, EvaluatePredicate("message.data.approved ==", msgWithData(nil)))
	require.False(t, EvaluatePredicate("((unbalanced", msgWithData(nil)))
}

func TestEvaluatePredicateMissingFieldIsFalsy(t *testing.T) {
	require.False(t, EvaluatePredicate("message.data.missing == true", msgWithData(map[string]any{})))
}

func TestValidatePredicateSyntaxAcceptsValidScript(t *testing.T) {
	require.NoError(t, ValidatePredicateSyntax("message.data.approved == true"))
	require.NoError(t, ValidatePredicateSyntax(""))
}

func TestValidatePredicateSyntaxRejectsMalformedScript(t *testing.T) {
	err := ValidatePredicateSyntax("message.data.approved ==")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrPredicate)
}
