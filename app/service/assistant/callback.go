package assistant

import (
	"context"
	"log/slog"

	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"
)

var _ callbacks.Handler = (*LogCallbackHandler)(nil)

// LogCallbackHandler logs model calls made by the provider.
type LogCallbackHandler struct {
	callbacks.SimpleHandler
}

func (l LogCallbackHandler) HandleLLMGenerateContentStart(ctx context.Context, ms []llms.MessageContent) {
	slog.DebugContext(ctx, "LLM generate content start", "messages", len(ms))
}

func (l LogCallbackHandler) HandleLLMGenerateContentEnd(ctx context.Context, res *llms.ContentResponse) {
	if res == nil || len(res.Choices) == 0 {
		return
	}
	choice := res.Choices[0]
	slog.DebugContext(ctx, "LLM generate content end",
		"stop_reason", choice.StopReason,
		"length", len(choice.Content),
	)
}

func (l LogCallbackHandler) HandleLLMError(ctx context.Context, err error) {
	slog.ErrorContext(ctx, "LLM error", "error", err)
}
