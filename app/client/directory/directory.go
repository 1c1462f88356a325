package directory

import (
	"context"
	"familycoach/app/config"
	"familycoach/app/service/tools"
	"log/slog"

	"github.com/samber/do"
	"github.com/samber/oops"
)

func New(di *do.Injector) (tools.ServiceDirectory, error) {
	ctx := do.MustInvoke[context.Context](di)
	cfg := do.MustInvoke[*config.Config](di)

	switch cfg.Tools.Directory.Backend {
	case "static":
		slog.Info("Using static service directory")
		return NewStatic(DefaultEntries()), nil
	case "mcp":
		slog.Info("Using MCP service directory",
			"command", cfg.Tools.Directory.MCP.Command,
			"tool", cfg.Tools.Directory.MCP.Tool)

		dir, err := NewMCP(ctx, cfg.Tools.Directory.MCP)
		if err != nil {
			return nil, oops.In("directory").Wrapf(err, "failed to start MCP directory")
		}
		return dir, nil
	default:
		return nil, oops.In("directory").Errorf("unknown directory backend %q", cfg.Tools.Directory.Backend)
	}
}
