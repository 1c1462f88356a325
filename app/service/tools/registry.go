package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"familycoach/app/client/llm"
	"fmt"
	"sync"

	"github.com/elliotchance/pie/v2"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Spec declares a tool: its contract for the model and the handler behind it.
type Spec struct {
	Name         string
	Description  string
	InputSchema  map[string]any
	OutputSchema map[string]any

	bind func(raw json.RawMessage) (any, error)
	call func(ctx context.Context, input any) (any, error)
}

// NewSpec builds a Spec whose arguments are decoded into In and checked
// with validator struct tags before handler runs.
func NewSpec[In any, Out any](
	name, description string,
	inputSchema, outputSchema map[string]any,
	handler func(ctx context.Context, input In) (Out, error),
) Spec {
	return Spec{
		Name:         name,
		Description:  description,
		InputSchema:  inputSchema,
		OutputSchema: outputSchema,
		bind: func(raw json.RawMessage) (any, error) {
			var input In
			if err := decodeStrict(raw, &input); err != nil {
				return nil, err
			}
			if err := validate.Struct(input); err != nil {
				return nil, err
			}
			return input, nil
		},
		call: func(ctx context.Context, input any) (any, error) {
			return handler(ctx, input.(In))
		},
	}
}

type Registry struct {
	mu     sync.RWMutex
	specs  []Spec
	byName map[string]int
}

func NewRegistry(specs ...Spec) *Registry {
	r := &Registry{
		byName: make(map[string]int, len(specs)),
	}
	for _, s := range specs {
		r.Register(s)
	}

	return r
}

// Register adds a tool, replacing any tool with the same name.
func (r *Registry) Register(spec Spec) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i, ok := r.byName[spec.Name]; ok {
		r.specs[i] = spec
		return
	}

	r.byName[spec.Name] = len(r.specs)
	r.specs = append(r.specs, spec)
}

// List returns the tools in registration order.
func (r *Registry) List() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]Spec(nil), r.specs...)
}

func (r *Registry) Declarations() []llm.ToolDecl {
	return pie.Map(r.List(), func(s Spec) llm.ToolDecl {
		return llm.ToolDecl{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  s.InputSchema,
		}
	})
}

// Invoke validates arguments and runs the handler. The handler runs until
// it returns or ctx is done, whichever comes first; an expired ctx is
// reported as UnavailableError.
func (r *Registry) Invoke(ctx context.Context, name string, arguments json.RawMessage) (any, error) {
	r.mu.RLock()
	i, ok := r.byName[name]
	var spec Spec
	if ok {
		spec = r.specs[i]
	}
	r.mu.RUnlock()

	if !ok {
		return nil, &ValidationError{Tool: name, Err: errors.New("unknown tool")}
	}

	input, err := spec.bind(arguments)
	if err != nil {
		return nil, &ValidationError{Tool: name, Err: err}
	}

	type outcome struct {
		value any
		err   error
	}

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", rec)}
			}
		}()

		value, err := spec.call(ctx, input)
		done <- outcome{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, &UnavailableError{Tool: name, Err: ctx.Err()}
	case res := <-done:
		if res.err == nil {
			return res.value, nil
		}

		var unavailableErr *UnavailableError
		if errors.As(res.err, &unavailableErr) {
			return nil, res.err
		}
		if errors.Is(res.err, context.DeadlineExceeded) {
			return nil, &UnavailableError{Tool: name, Err: res.err}
		}

		return nil, &ExecutionError{Tool: name, Err: res.err}
	}
}

func decodeStrict(raw json.RawMessage, target any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		trimmed = []byte("{}")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	if decoder.More() {
		return errors.New("decode arguments: trailing data")
	}

	return nil
}
