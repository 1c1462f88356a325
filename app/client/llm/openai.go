package llm

import (
	"context"
	"encoding/json"
	"familycoach/app/config"
	"fmt"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

const maxCompletionTokens = 1500

// OpenAI talks to any OpenAI compatible chat completion endpoint directly.
type OpenAI struct {
	client      *openai.Client
	model       string
	temperature float32
}

func NewOpenAI(cfg config.Model) *OpenAI {
	clientConfig := openai.DefaultConfig(cfg.Token)

	clientConfig.BaseURL = cfg.BaseURL
	clientConfig.HTTPClient = &http.Client{
		Timeout: cfg.Timeout,
	}

	return &OpenAI{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
	}
}

func (o *OpenAI) Generate(ctx context.Context, req Request) (*Response, error) {
	aiResponse, err := o.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:               o.model,
			Messages:            toOpenAIMessages(req),
			Tools:               toOpenAITools(req.Tools),
			Temperature:         o.temperature,
			MaxCompletionTokens: maxCompletionTokens,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat completion: %w", err)
	}

	if len(aiResponse.Choices) == 0 {
		return nil, fmt.Errorf("no chat completion found")
	}

	message := aiResponse.Choices[0].Message
	result := &Response{
		Content: strings.TrimSpace(message.Content),
	}

	for _, call := range message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: json.RawMessage(call.Function.Arguments),
		})
	}

	return result, nil
}

func toOpenAIMessages(req Request) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)

	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: m.Content,
			})
		case RoleUser:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: m.Content,
			})
		case RoleAssistant:
			msg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: m.Content,
			}
			for _, call := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: string(call.Arguments),
					},
				})
			}
			messages = append(messages, msg)
		case RoleTool:
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    m.Content,
				Name:       m.Name,
				ToolCallID: m.ToolCallID,
			})
		}
	}

	return messages
}

func toOpenAITools(decls []ToolDecl) []openai.Tool {
	if len(decls) == 0 {
		return nil
	}

	result := make([]openai.Tool, 0, len(decls))
	for _, d := range decls {
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.Parameters,
			},
		})
	}

	return result
}
