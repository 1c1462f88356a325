package llm

import (
	"context"
	"log/slog"

	"github.com/tmc/langchaingo/callbacks"
	"github.com/tmc/langchaingo/llms"
)

var _ callbacks.Handler = LogCallbackHandler{}

// LogCallbackHandler reports langchaingo model activity to slog.
type LogCallbackHandler struct {
	callbacks.SimpleHandler
}

func (l LogCallbackHandler) HandleLLMGenerateContentStart(ctx context.Context, ms []llms.MessageContent) {
	slog.DebugContext(ctx, "LLM generate content start", "messages", len(ms))
}

func (l LogCallbackHandler) HandleLLMGenerateContentEnd(ctx context.Context, res *llms.ContentResponse) {
	if res == nil || len(res.Choices) == 0 {
		slog.DebugContext(ctx, "LLM generate content end", "choices", 0)
		return
	}

	slog.DebugContext(ctx, "LLM generate content end",
		"choices", len(res.Choices),
		"tool_calls", len(res.Choices[0].ToolCalls),
		"stop_reason", res.Choices[0].StopReason,
	)
}

func (l LogCallbackHandler) HandleLLMError(ctx context.Context, err error) {
	slog.ErrorContext(ctx, "LLM error", "error", err)
}
