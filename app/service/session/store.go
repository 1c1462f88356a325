package session

import (
	"context"
	"errors"
	"familycoach/app/config"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/do"
	"github.com/samber/oops"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

var ErrNotFound = errors.New("session not found")

// Turn is one written message of a conversation. Turns are never edited
// or removed once appended.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store keeps the ordered, append-only history of conversations.
type Store interface {
	Create(ctx context.Context) (string, error)
	Append(ctx context.Context, sessionID string, turns ...Turn) error
	History(ctx context.Context, sessionID string) ([]Turn, error)
}

func New(di *do.Injector) (Store, error) {
	cfg := do.MustInvoke[*config.Config](di)

	switch cfg.Storage.Backend {
	case "memory":
		slog.Info("Using in-memory session store")
		return NewMemoryStore(), nil
	case "sqlite":
		slog.Info("Using sqlite session store", "path", cfg.Storage.Path)

		store, err := NewSQLiteStore(cfg.Storage.Path)
		if err != nil {
			return nil, oops.In("session").Wrapf(err, "failed to open sqlite store")
		}
		return store, nil
	default:
		return nil, oops.In("session").Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func validateTurns(turns []Turn) error {
	for i, t := range turns {
		if t.Role != RoleUser && t.Role != RoleAssistant {
			return fmt.Errorf("turn %d: invalid role %q", i, t.Role)
		}
	}

	return nil
}

func stamp(turns []Turn) []Turn {
	now := time.Now().UTC()

	result := make([]Turn, len(turns))
	for i, t := range turns {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		result[i] = t
	}

	return result
}
