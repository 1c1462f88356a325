package coach

import (
	"context"
	"errors"
	"familycoach/app/service/digest"
	"familycoach/app/service/family"
	"familycoach/app/service/safety"
	"familycoach/app/service/session"
	"familycoach/app/util/mylog"
	"log/slog"
	"strings"
	"sync"

	"github.com/samber/do"
	"github.com/samber/oops"
)

// Reply is the caller-facing result of a turn.
type Reply struct {
	SessionID string
	Response  string
	Risk      bool
	Degraded  bool
	// Fallback is set when Response is the built-in safety answer rather
	// than a model answer.
	Fallback bool
}

// Service runs coaching turns against stored sessions, one turn per
// session at a time.
type Service struct {
	store        session.Store
	digests      *digest.Builder
	orchestrator *Orchestrator

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewService(store session.Store, digests *digest.Builder, orchestrator *Orchestrator) *Service {
	return &Service{
		store:        store,
		digests:      digests,
		orchestrator: orchestrator,
		locks:        make(map[string]*sync.Mutex),
	}
}

func NewServiceDI(di *do.Injector) (*Service, error) {
	return NewService(
		do.MustInvoke[session.Store](di),
		do.MustInvoke[*digest.Builder](di),
		do.MustInvoke[*Orchestrator](di),
	), nil
}

func (s *Service) CreateSession(ctx context.Context) (string, error) {
	id, err := s.store.Create(ctx)
	if err != nil {
		return "", oops.In("coach").Wrapf(err, "failed to create session")
	}

	slog.Info("Session created", "session_id", id)

	return id, nil
}

func (s *Service) History(ctx context.Context, sessionID string) ([]session.Turn, error) {
	history, err := s.store.History(ctx, sessionID)
	if err != nil {
		return nil, oops.In("coach").With("session_id", sessionID).Wrapf(err, "failed to load history")
	}

	return history, nil
}

// Reply answers message within the given session, using snapshot as the
// family context of this turn only. On success the user message and the
// answer are appended to the session. A failed risk-flagged turn still
// gets a safety answer; any other failure is returned and nothing is
// stored.
func (s *Service) Reply(ctx context.Context, sessionID string, snapshot family.Snapshot, message string) (*Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	if !s.acquire(sessionID) {
		return nil, ErrTurnInProgress
	}
	defer s.release(sessionID)

	history, err := s.store.History(ctx, sessionID)
	if err != nil {
		return nil, oops.In("coach").With("session_id", sessionID).Wrapf(err, "failed to load history")
	}

	dg := s.digests.Build(snapshot)

	outcome, err := s.orchestrator.RunTurn(ctx, history, dg, message)

	reply := &Reply{
		SessionID: sessionID,
		Risk:      outcome.Risk,
		Degraded:  outcome.Degraded,
	}

	switch {
	case err == nil:
		reply.Response = outcome.Message
	case outcome.Risk && ctx.Err() == nil:
		slog.Error("Risk-flagged turn failed, sending safety fallback",
			"session_id", sessionID,
			"services", len(outcome.Services),
			"error", err,
			mylog.TelegramKey, true,
		)

		reply.Response = safety.Fallback(outcome.Services)
		reply.Degraded = true
		reply.Fallback = true
	default:
		return nil, oops.In("coach").
			With("session_id", sessionID).
			With("rounds", outcome.Rounds).
			Wrapf(err, "turn failed")
	}

	err = s.store.Append(ctx, sessionID,
		session.Turn{Role: session.RoleUser, Content: message},
		session.Turn{Role: session.RoleAssistant, Content: reply.Response},
	)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, oops.In("coach").With("session_id", sessionID).Wrapf(err, "failed to store turn")
	}

	slog.Debug("Turn completed",
		"session_id", sessionID,
		"risk", reply.Risk,
		"degraded", reply.Degraded,
		"rounds", outcome.Rounds,
		"tools", outcome.ToolCalls,
	)

	return reply, nil
}

func (s *Service) acquire(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}

	return lock.TryLock()
}

func (s *Service) release(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lock, ok := s.locks[sessionID]; ok {
		lock.Unlock()
		delete(s.locks, sessionID)
	}
}
