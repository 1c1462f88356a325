package directory

import (
	"context"
	"encoding/json"
	"errors"
	"familycoach/app/config"
	"familycoach/app/service/tools"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

const initTimeout = time.Minute

type toolCaller interface {
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// MCP looks providers up through a tool exposed by an MCP server. The
// remote tool receives {serviceType, location} and answers with a JSON
// array of {name, phone, address} as text content.
type MCP struct {
	caller toolCaller
	closer func() error
	tool   string
}

func NewMCP(ctx context.Context, cfg config.MCPServer) (*MCP, error) {
	mcpClient, err := client.NewStdioMCPClient(cfg.Command, nil, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to create MCP client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "familycoach-directory",
		Version: "1.0.0",
	}

	if _, err = mcpClient.Initialize(ctx, initRequest); err != nil {
		_ = mcpClient.Close()
		return nil, fmt.Errorf("failed to initialize MCP client: %w", err)
	}

	toolsResponse, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = mcpClient.Close()
		return nil, fmt.Errorf("failed to list MCP tools: %w", err)
	}

	found := false
	for _, t := range toolsResponse.Tools {
		if t.Name == cfg.Tool {
			found = true
			break
		}
	}
	if !found {
		_ = mcpClient.Close()
		return nil, fmt.Errorf("MCP server does not expose tool %q", cfg.Tool)
	}

	return &MCP{
		caller: mcpClient,
		closer: mcpClient.Close,
		tool:   cfg.Tool,
	}, nil
}

func (m *MCP) Find(ctx context.Context, serviceType tools.ServiceType, location tools.Location) ([]tools.Service, error) {
	request := mcp.CallToolRequest{
		Request: mcp.Request{
			Method: "tools/call",
		},
	}
	request.Params.Name = m.tool
	request.Params.Arguments = map[string]any{
		"serviceType": string(serviceType),
		"location": map[string]any{
			"city":  location.City,
			"state": location.State,
			"zip":   location.Zip,
		},
	}

	response, err := m.caller.CallTool(ctx, request)
	if err != nil {
		return nil, tools.Unavailable(tools.FindNearbyServices, fmt.Errorf("MCP tool call failed: %w", err))
	}

	var text strings.Builder
	for _, content := range response.Content {
		if textContent, ok := content.(mcp.TextContent); ok {
			text.WriteString(textContent.Text)
		}
	}

	if response.IsError {
		return nil, fmt.Errorf("MCP tool %s reported an error: %s", m.tool, strings.TrimSpace(text.String()))
	}

	body := strings.TrimSpace(text.String())
	if body == "" {
		return []tools.Service{}, nil
	}

	var services []tools.Service
	if err = json.Unmarshal([]byte(body), &services); err != nil {
		return nil, fmt.Errorf("failed to parse MCP tool result: %w", err)
	}

	return services, nil
}

func (m *MCP) Shutdown() error {
	if m.closer == nil {
		return nil
	}

	if err := m.closer(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close MCP client: %w", err)
	}

	return nil
}
