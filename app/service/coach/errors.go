package coach

import (
	"errors"
	"familycoach/app/service/safety"
	"fmt"
)

var (
	ErrRoundLimit     = errors.New("model round limit reached")
	ErrTurnInProgress = errors.New("another turn is in progress for this session")
	ErrEmptyMessage   = errors.New("message is empty")

	errEmptyReply = errors.New("model returned neither text nor tool calls")
)

// SafetyUnresolvedError ends a turn whose round budget ran out before an
// acceptable answer was produced. It wraps ErrRoundLimit.
type SafetyUnresolvedError struct {
	Rounds int
	State  safety.State
	Risk   bool
}

func (e *SafetyUnresolvedError) Error() string {
	return fmt.Sprintf("turn unresolved after %d rounds (risk=%v, state=%s)", e.Rounds, e.Risk, e.State)
}

func (e *SafetyUnresolvedError) Unwrap() error {
	return ErrRoundLimit
}

// ModelProviderError reports a model round-trip that kept failing after
// local retries.
type ModelProviderError struct {
	Attempts int
	Err      error
}

func (e *ModelProviderError) Error() string {
	return fmt.Sprintf("model provider failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ModelProviderError) Unwrap() error {
	return e.Err
}
