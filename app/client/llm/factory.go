package llm

import (
	"familycoach/app/config"
	"log/slog"

	"github.com/samber/do"
	"github.com/samber/oops"
)

func New(di *do.Injector) (Model, error) {
	cfg := do.MustInvoke[*config.Config](di)

	switch cfg.Model.Backend {
	case "mock":
		slog.Info("Using mock model")
		return NewMock(), nil
	case "openai":
		slog.Info("Using go-openai model", "model", cfg.Model.Model)
		return NewOpenAI(cfg.Model), nil
	case "langchain":
		slog.Info("Using langchain model", "model", cfg.Model.Model)
		return NewLangChainOpenAI(cfg.Model)
	default:
		return nil, oops.In("llm").Errorf("unknown model backend %q", cfg.Model.Backend)
	}
}
