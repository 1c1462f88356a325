package coach

import (
	"context"
	"encoding/json"
	"familycoach/app/client/llm"
	"familycoach/app/service/safety"
	"familycoach/app/service/tools"
	"familycoach/app/util/metrics"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var testLocation = tools.Location{City: "Mountain View", State: "CA", Zip: "94043"}

var elCamino = tools.Service{
	Name:    "El Camino Hospital",
	Phone:   "650-940-7000",
	Address: "2500 Grant Rd, Mountain View, CA 94040",
}

type step func(req llm.Request) (*llm.Response, error)

func text(content string) step {
	return func(llm.Request) (*llm.Response, error) {
		return &llm.Response{Content: content}, nil
	}
}

func callWithText(id, name, arguments, content string) step {
	return func(llm.Request) (*llm.Response, error) {
		return &llm.Response{Content: content, ToolCalls: []llm.ToolCall{{
			ID:        id,
			Name:      name,
			Arguments: json.RawMessage(arguments),
		}}}, nil
	}
}

func call(id, name, arguments string) step {
	return func(llm.Request) (*llm.Response, error) {
		return &llm.Response{ToolCalls: []llm.ToolCall{{
			ID:        id,
			Name:      name,
			Arguments: json.RawMessage(arguments),
		}}}, nil
	}
}

func fail(err error) step {
	return func(llm.Request) (*llm.Response, error) {
		return nil, err
	}
}

// scriptedModel replays steps in order and then repeats last forever.
type scriptedModel struct {
	mu       sync.Mutex
	steps    []step
	last     step
	requests []llm.Request
}

func script(last step, steps ...step) *scriptedModel {
	return &scriptedModel{steps: steps, last: last}
}

func (m *scriptedModel) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req.Messages = slices.Clone(req.Messages)
	m.requests = append(m.requests, req)

	if len(m.steps) > 0 {
		next := m.steps[0]
		m.steps = m.steps[1:]
		return next(req)
	}

	return m.last(req)
}

func (m *scriptedModel) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.requests)
}

func (m *scriptedModel) request(i int) llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.requests[i]
}

type fakeDirectory struct {
	calls    atomic.Int32
	services []tools.Service
	err      error
	block    bool

	mu        sync.Mutex
	locations []tools.Location
}

func (f *fakeDirectory) Find(ctx context.Context, _ tools.ServiceType, location tools.Location) ([]tools.Service, error) {
	f.calls.Add(1)

	f.mu.Lock()
	f.locations = append(f.locations, location)
	f.mu.Unlock()

	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	return f.services, f.err
}

func (f *fakeDirectory) queried() []tools.Location {
	f.mu.Lock()
	defer f.mu.Unlock()

	return slices.Clone(f.locations)
}

func testOptions() Options {
	return Options{
		MaxRounds:     6,
		ModelTimeout:  time.Second,
		ModelAttempts: 2,
		ToolTimeout:   50 * time.Millisecond,
		ToolAttempts:  2,
		BackoffBase:   time.Millisecond,
		BackoffCap:    2 * time.Millisecond,
		ServiceType:   tools.Hospital,
	}
}

func newTestOrchestrator(model llm.Model, directory tools.ServiceDirectory, opts Options) *Orchestrator {
	registry := tools.NewRegistry(
		tools.LocationSpec(tools.StaticLocator(testLocation)),
		tools.ServicesSpec(directory),
	)

	return NewOrchestrator(
		model,
		registry,
		safety.NewClassifier(nil),
		metrics.NewWithRegistry(prometheus.NewRegistry()),
		opts,
	)
}

func toolMessages(req llm.Request) []llm.Message {
	var result []llm.Message
	for _, m := range req.Messages {
		if m.Role == llm.RoleTool {
			result = append(result, m)
		}
	}

	return result
}
