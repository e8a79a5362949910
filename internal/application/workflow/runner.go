package workflow

import "context"

// Runner decides where a workflow's step loop executes
type Runner interface {
	Run(ctx context.Context, workflowID string, fn func(ctx context.Context)) error
}

// InlineRunner runs the step loop on the calling goroutine
type InlineRunner struct{}

// Run calls fn and returns once it finishes
func (InlineRunner) Run(ctx context.Context, _ string, fn func(ctx context.Context)) error {
	fn(ctx)
	return nil
}
