package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Mock is an offline stand-in used for local development. It never asks
// for tools and answers from whatever tool results are already in the
// conversation.
type Mock struct{}

func NewMock() *Mock {
	return &Mock{}
}

func (m *Mock) Generate(_ context.Context, req Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("mock: empty conversation")
	}

	var lastUser string
	var places []string

	for _, msg := range req.Messages {
		switch msg.Role {
		case RoleUser:
			lastUser = msg.Content
			places = nil
		case RoleTool:
			places = append(places, parsePlaces(msg.Content)...)
		}
	}

	if len(places) > 0 {
		return &Response{
			Content: "I'm really glad you told me how you are feeling. You don't have to handle this alone. " +
				"These places nearby can help right now:\n- " + strings.Join(places, "\n- "),
		}, nil
	}

	return &Response{
		Content: fmt.Sprintf("Thanks for sharing. You said %q. "+
			"A small step that often helps families is setting aside ten calm minutes together today.", lastUser),
	}, nil
}

func parsePlaces(content string) []string {
	var entries []struct {
		Name    string `json:"name"`
		Phone   string `json:"phone"`
		Address string `json:"address"`
	}
	if err := json.Unmarshal([]byte(content), &entries); err != nil {
		return nil
	}

	result := make([]string, 0, len(entries))
	for _, e := range entries {
		result = append(result, fmt.Sprintf("%s: %s, %s", e.Name, e.Phone, e.Address))
	}

	return result
}
