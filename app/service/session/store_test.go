package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()

	sqliteStore, err := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "sessions.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { _ = sqliteStore.Shutdown() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func TestStoreAppendAndHistory(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			id, err := store.Create(ctx)
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}

			history, err := store.History(ctx, id)
			if err != nil || len(history) != 0 {
				t.Fatalf("History() = %v, %v; want empty", history, err)
			}

			if err = store.Append(ctx, id, Turn{Role: RoleUser, Content: "hi"}, Turn{Role: RoleAssistant, Content: "hello"}); err != nil {
				t.Fatalf("Append() error = %v", err)
			}
			if err = store.Append(ctx, id, Turn{Role: RoleUser, Content: "again"}); err != nil {
				t.Fatalf("Append() error = %v", err)
			}

			history, err = store.History(ctx, id)
			if err != nil {
				t.Fatalf("History() error = %v", err)
			}

			want := []string{"hi", "hello", "again"}
			if len(history) != len(want) {
				t.Fatalf("len(history) = %d, want %d", len(history), len(want))
			}
			for i, content := range want {
				if history[i].Content != content {
					t.Fatalf("history[%d] = %q, want %q", i, history[i].Content, content)
				}
				if history[i].CreatedAt.IsZero() {
					t.Fatalf("history[%d] has no timestamp", i)
				}
			}
			if history[1].Role != RoleAssistant {
				t.Fatalf("history[1].Role = %q", history[1].Role)
			}
		})
	}
}

func TestStoreHistoryIsACopy(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, _ := store.Create(ctx)
			_ = store.Append(ctx, id, Turn{Role: RoleUser, Content: "original"})

			history, _ := store.History(ctx, id)
			history[0].Content = "edited"

			again, _ := store.History(ctx, id)
			if again[0].Content != "original" {
				t.Fatalf("stored turn was mutated: %q", again[0].Content)
			}
		})
	}
}

func TestStoreUnknownSession(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := store.History(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("History() error = %v, want ErrNotFound", err)
			}
			if err := store.Append(ctx, "missing", Turn{Role: RoleUser, Content: "x"}); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Append() error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStoreRejectsInvalidRole(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			id, _ := store.Create(ctx)

			if err := store.Append(ctx, id, Turn{Role: "tool", Content: "{}"}); err == nil {
				t.Fatal("Append() error = nil, want invalid role")
			}

			history, _ := store.History(ctx, id)
			if len(history) != 0 {
				t.Fatalf("rejected turn was stored: %v", history)
			}
		})
	}
}
