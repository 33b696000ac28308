package runner

import "context"

// MockTaskRunner is a scriptable TaskRunner for tests and for exercising the
// engine without a real provider CLI. Calls is appended to on every Run.
type MockTaskRunner struct {
	// RunFunc, when set, is called for every Run instead of the default
	// success response. Lets tests script per-call sequences.
	RunFunc func(ctx context.Context, prompt string, opts Options) (Result, error)

	Calls []MockCall
}

// MockCall records one Run invocation for assertions.
type MockCall struct {
	Prompt string
	Opts   Options
}

// NewMockTaskRunner returns a MockTaskRunner that succeeds with output on
// every call unless RunFunc is set.
func NewMockTaskRunner() *MockTaskRunner {
	return &MockTaskRunner{}
}

func (m *MockTaskRunner) Run(ctx context.Context, prompt string, opts Options) (Result, error) {
	m.Calls = append(m.Calls, MockCall{Prompt: prompt, Opts: opts})

	if m.RunFunc != nil {
		return m.RunFunc(ctx, prompt, opts)
	}
	return Result{Success: true, Output: "{}"}, nil
}

// CallCount returns how many times Run has been invoked.
func (m *MockTaskRunner) CallCount() int {
	return len(m.Calls)
}
