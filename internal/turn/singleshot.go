package turn

import "context"

// #region single-shot

// SingleShotLoop is the minimal answer strategy: one chat call, no tools.
// Richer loops satisfy the same ToolLoop interface.
type SingleShotLoop struct {
	provider ChatProvider
	system   string
	model    string
}

// NewSingleShotLoop wraps a chat provider as a one-iteration tool loop.
func NewSingleShotLoop(provider ChatProvider, systemPrompt, model string) *SingleShotLoop {
	return &SingleShotLoop{provider: provider, system: systemPrompt, model: model}
}

func (l *SingleShotLoop) Run(ctx context.Context, prompt string, temperature float64) (ToolLoopResult, error) {
	text, err := l.provider.ChatWithSystem(ctx, l.system, prompt, l.model, temperature)
	if err != nil {
		return ToolLoopResult{}, err
	}
	return ToolLoopResult{
		FinalText:  text,
		Iterations: 1,
		Stop:       StopReason{Kind: StopCompleted},
	}, nil
}

// #endregion single-shot
