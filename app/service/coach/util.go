package coach

import (
	"encoding/json"
	"familycoach/app/client/llm"
	"familycoach/app/service/session"
	"strings"
)

// fillTemplate replaces each {key} with its value in a single pass, so
// placeholders inside substituted values stay literal. pairs alternate
// key and value.
func fillTemplate(template string, pairs ...string) string {
	oldnew := make([]string, 0, len(pairs))
	for i := 0; i+1 < len(pairs); i += 2 {
		oldnew = append(oldnew, "{"+pairs[i]+"}", pairs[i+1])
	}

	return strings.NewReplacer(oldnew...).Replace(template)
}

// toMessages converts the stored conversation into the model's working
// history and appends the new user message.
func toMessages(history []session.Turn, userMessage string) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+1)

	for _, t := range history {
		role := llm.RoleUser
		if t.Role == session.RoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: t.Content})
	}

	return append(messages, llm.Message{Role: llm.RoleUser, Content: userMessage})
}

func toolError(call llm.ToolCall, err error) llm.Message {
	payload, _ := json.Marshal(map[string]string{"error": err.Error()})

	return llm.Message{
		Role:       llm.RoleTool,
		Content:    string(payload),
		ToolCallID: call.ID,
		Name:       call.Name,
	}
}
