package llm

import (
	"context"
	"encoding/json"
	"familycoach/app/config"
	"fmt"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/llms"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
)

// LangChain adapts any langchaingo llms.Model with tool calling support.
type LangChain struct {
	model       llms.Model
	temperature float64
}

func NewLangChain(model llms.Model, temperature float64) *LangChain {
	return &LangChain{
		model:       model,
		temperature: temperature,
	}
}

func NewLangChainOpenAI(cfg config.Model) (*LangChain, error) {
	model, err := lcopenai.New(
		lcopenai.WithToken(cfg.Token),
		lcopenai.WithBaseURL(cfg.BaseURL),
		lcopenai.WithModel(cfg.Model),
		lcopenai.WithHTTPClient(&http.Client{
			Timeout: cfg.Timeout,
		}),
		lcopenai.WithCallback(LogCallbackHandler{}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create langchain openai model: %w", err)
	}

	return NewLangChain(model, cfg.Temperature), nil
}

func (l *LangChain) Generate(ctx context.Context, req Request) (*Response, error) {
	options := []llms.CallOption{
		llms.WithTemperature(l.temperature),
	}
	if len(req.Tools) > 0 {
		options = append(options, llms.WithTools(toLangChainTools(req.Tools)))
	}

	resp, err := l.model.GenerateContent(ctx, toLangChainMessages(req), options...)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in model response")
	}

	choice := resp.Choices[0]
	result := &Response{
		Content: strings.TrimSpace(choice.Content),
	}

	for _, call := range choice.ToolCalls {
		if call.FunctionCall == nil {
			continue
		}

		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.FunctionCall.Name,
			Arguments: json.RawMessage(call.FunctionCall.Arguments),
		})
	}

	return result, nil
}

func toLangChainMessages(req Request) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(req.Messages)+1)

	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}

	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, m.Content))
		case RoleUser:
			messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		case RoleAssistant:
			var parts []llms.ContentPart
			if m.Content != "" {
				parts = append(parts, llms.TextContent{Text: m.Content})
			}
			for _, call := range m.ToolCalls {
				parts = append(parts, llms.ToolCall{
					ID:   call.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      call.Name,
						Arguments: string(call.Arguments),
					},
				})
			}
			messages = append(messages, llms.MessageContent{
				Role:  llms.ChatMessageTypeAI,
				Parts: parts,
			})
		case RoleTool:
			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: m.ToolCallID,
						Name:       m.Name,
						Content:    m.Content,
					},
				},
			})
		}
	}

	return messages
}

func toLangChainTools(decls []ToolDecl) []llms.Tool {
	result := make([]llms.Tool, 0, len(decls))
	for _, d := range decls {
		result = append(result, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}

	return result
}
