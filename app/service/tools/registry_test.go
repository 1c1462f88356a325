package tools

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type fakeDirectory struct {
	calls    atomic.Int32
	services []Service
	err      error
	block    bool
}

func (f *fakeDirectory) Find(ctx context.Context, _ ServiceType, _ Location) ([]Service, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.services, f.err
}

var mountainView = Location{City: "Mountain View", State: "CA", Zip: "94043"}

func newTestRegistry(dir ServiceDirectory) *Registry {
	return NewRegistry(LocationSpec(StaticLocator(mountainView)), ServicesSpec(dir))
}

func TestListKeepsRegistrationOrder(t *testing.T) {
	r := newTestRegistry(&fakeDirectory{})

	specs := r.List()
	if len(specs) != 2 || specs[0].Name != GetUserLocation || specs[1].Name != FindNearbyServices {
		t.Fatalf("unexpected specs: %+v", specs)
	}

	decls := r.Declarations()
	if decls[1].Parameters["required"] == nil {
		t.Fatalf("services declaration lacks required fields: %+v", decls[1].Parameters)
	}
}

func TestInvokeLocation(t *testing.T) {
	r := newTestRegistry(&fakeDirectory{})

	for _, args := range []string{"", "null", "{}"} {
		got, err := r.Invoke(context.Background(), GetUserLocation, json.RawMessage(args))
		if err != nil {
			t.Fatalf("Invoke(%q) error = %v", args, err)
		}
		if got != mountainView {
			t.Fatalf("Invoke(%q) = %+v", args, got)
		}
	}
}

func TestInvokeServices(t *testing.T) {
	dir := &fakeDirectory{services: []Service{{Name: "El Camino Hospital", Phone: "650-940-7000"}}}
	r := newTestRegistry(dir)

	got, err := r.Invoke(context.Background(), FindNearbyServices,
		json.RawMessage(`{"serviceType":"hospital","location":{"city":"Mountain View","state":"CA","zip":"94043"}}`))
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	services, ok := got.([]Service)
	if !ok || len(services) != 1 || services[0].Phone != "650-940-7000" {
		t.Fatalf("unexpected result: %#v", got)
	}
}

func TestInvokeServicesEmptyIsValid(t *testing.T) {
	r := newTestRegistry(&fakeDirectory{})

	got, err := r.Invoke(context.Background(), FindNearbyServices,
		json.RawMessage(`{"serviceType":"doctor","location":{"city":"X","state":"Y","zip":"1"}}`))
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if services := got.([]Service); services == nil || len(services) != 0 {
		t.Fatalf("want empty non-nil slice, got %#v", got)
	}
}

func TestInvokeRejectsInvalidArgumentsWithoutCallingHandler(t *testing.T) {
	cases := map[string]string{
		"bad enum":         `{"serviceType":"firefighters","location":{"city":"X","state":"Y","zip":"1"}}`,
		"missing location": `{"serviceType":"hospital"}`,
		"partial location": `{"serviceType":"hospital","location":{"city":"X"}}`,
		"unknown field":    `{"serviceType":"hospital","location":{"city":"X","state":"Y","zip":"1"},"radius":5}`,
		"not json":         `hospital please`,
		"wrong type":       `{"serviceType":7,"location":{"city":"X","state":"Y","zip":"1"}}`,
	}

	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			dir := &fakeDirectory{}
			r := newTestRegistry(dir)

			_, err := r.Invoke(context.Background(), FindNearbyServices, json.RawMessage(args))

			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("error = %v, want ValidationError", err)
			}
			if dir.calls.Load() != 0 {
				t.Fatalf("handler called %d times, want 0", dir.calls.Load())
			}
		})
	}
}

func TestInvokeLocationRejectsArguments(t *testing.T) {
	r := newTestRegistry(&fakeDirectory{})

	_, err := r.Invoke(context.Background(), GetUserLocation, json.RawMessage(`{"precise":true}`))
	if Kind(err) != "validation" {
		t.Fatalf("error = %v, want validation", err)
	}
}

func TestInvokeUnknownTool(t *testing.T) {
	r := newTestRegistry(&fakeDirectory{})

	_, err := r.Invoke(context.Background(), "callTaxi", nil)
	if Kind(err) != "validation" {
		t.Fatalf("error = %v, want validation", err)
	}
}

func TestInvokeWrapsHandlerFailure(t *testing.T) {
	r := newTestRegistry(&fakeDirectory{err: errors.New("directory corrupted")})

	_, err := r.Invoke(context.Background(), FindNearbyServices,
		json.RawMessage(`{"serviceType":"police","location":{"city":"X","state":"Y","zip":"1"}}`))

	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("error = %v, want ExecutionError", err)
	}
	if !IsRetryable(err) {
		t.Fatal("execution errors should be retryable")
	}
}

func TestInvokeKeepsUnavailableFromHandler(t *testing.T) {
	r := newTestRegistry(&fakeDirectory{err: Unavailable(FindNearbyServices, errors.New("503"))})

	_, err := r.Invoke(context.Background(), FindNearbyServices,
		json.RawMessage(`{"serviceType":"police","location":{"city":"X","state":"Y","zip":"1"}}`))
	if Kind(err) != "unavailable" {
		t.Fatalf("error = %v, want unavailable", err)
	}
}

func TestInvokeTimeoutIsUnavailable(t *testing.T) {
	r := newTestRegistry(&fakeDirectory{block: true})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Invoke(ctx, FindNearbyServices,
		json.RawMessage(`{"serviceType":"hospital","location":{"city":"X","state":"Y","zip":"1"}}`))

	var unavailableErr *UnavailableError
	if !errors.As(err, &unavailableErr) {
		t.Fatalf("error = %v, want UnavailableError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded cause", err)
	}
}

func TestInvokeRecoversHandlerPanic(t *testing.T) {
	r := NewRegistry(LocationSpec(func(context.Context) (Location, error) {
		panic("gps exploded")
	}))

	_, err := r.Invoke(context.Background(), GetUserLocation, nil)
	if Kind(err) != "execution" || !strings.Contains(err.Error(), "gps exploded") {
		t.Fatalf("error = %v, want execution error with panic text", err)
	}
}
