package safety

import (
	"encoding/json"
	"errors"
	"familycoach/app/service/tools"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrLocationFirst    = errors.New("call " + tools.GetUserLocation + " first")
	ErrLocationMismatch = errors.New("services must be looked up for the location returned by " + tools.GetUserLocation)
)

type State int

const (
	Normal State = iota
	RiskDetected
	LocationPending
	ServicesPending
	Satisfied
)

func (s State) String() string {
	switch s {
	case Normal:
		return "NORMAL"
	case RiskDetected:
		return "RISK_DETECTED"
	case LocationPending:
		return "LOCATION_PENDING"
	case ServicesPending:
		return "SERVICES_PENDING"
	case Satisfied:
		return "SATISFIED"
	default:
		return "UNKNOWN"
	}
}

// Tracker enforces the escalation sequence of a single turn:
// location first, then services for that location, then the final answer.
// A Tracker is not safe for concurrent use; each turn owns a fresh one.
type Tracker struct {
	state      State
	assessment Assessment
	degraded   bool
	location   *tools.Location
	services   []tools.Service
}

func NewTracker() *Tracker {
	return &Tracker{state: Normal}
}

// Classify records the assessment of the user's message. It only has an
// effect in the NORMAL state.
func (t *Tracker) Classify(a Assessment) State {
	if t.state != Normal {
		return t.state
	}

	t.assessment = a
	if a.Risk {
		t.state = RiskDetected
	} else {
		t.state = Satisfied
	}

	return t.state
}

func (t *Tracker) State() State {
	return t.state
}

func (t *Tracker) Risk() bool {
	return t.assessment.Risk
}

func (t *Tracker) Terminal() bool {
	return t.state == Satisfied
}

// Degraded reports that a mandatory step could not be completed and the
// turn fell back to the disclaimer alone.
func (t *Tracker) Degraded() bool {
	return t.degraded
}

// Required names the tool that must succeed next, or "" once nothing is
// outstanding.
func (t *Tracker) Required() string {
	switch t.state {
	case RiskDetected, LocationPending:
		return tools.GetUserLocation
	case ServicesPending:
		return tools.FindNearbyServices
	default:
		return ""
	}
}

// Location returns the location obtained in this turn.
func (t *Tracker) Location() (tools.Location, bool) {
	if t.location == nil {
		return tools.Location{}, false
	}

	return *t.location, true
}

// Services returns every provider found in this turn, in discovery order.
func (t *Tracker) Services() []tools.Service {
	return slices.Clone(t.services)
}

// Issued notes that a call to tool has been dispatched.
func (t *Tracker) Issued(tool string) {
	if t.state == RiskDetected && tool == tools.GetUserLocation {
		t.state = LocationPending
	}
}

// Allow reports whether a call may run now. A services lookup needs the
// location obtained in this turn and must name exactly that location.
// Arguments that do not decode are left to the registry to reject.
func (t *Tracker) Allow(tool string, arguments json.RawMessage) error {
	if tool != tools.FindNearbyServices {
		return nil
	}
	if t.location == nil {
		return ErrLocationFirst
	}

	var input tools.ServicesInput
	if err := json.Unmarshal(arguments, &input); err != nil {
		return nil
	}

	if !sameLocation(input.Location, *t.location) {
		return fmt.Errorf("%w: %s, %s %s", ErrLocationMismatch, t.location.City, t.location.State, t.location.Zip)
	}

	return nil
}

// Succeeded advances the machine with a successful tool result. Services
// only count when their arguments pass Allow.
func (t *Tracker) Succeeded(tool string, arguments json.RawMessage, result any) {
	switch tool {
	case tools.GetUserLocation:
		loc, ok := result.(tools.Location)
		if !ok {
			return
		}
		if t.location == nil {
			t.location = &loc
		}
		if t.state == RiskDetected || t.state == LocationPending {
			t.state = ServicesPending
		}
	case tools.FindNearbyServices:
		services, ok := result.([]tools.Service)
		if !ok || t.Allow(tool, arguments) != nil {
			return
		}
		t.addServices(services)
		if t.state == ServicesPending {
			t.state = Satisfied
		}
	}
}

// Failed notes that tool ended in an error that will not be retried. When
// tool is the step the machine is waiting on, the sequence cannot finish
// and the turn degrades to a disclaimer-only answer.
func (t *Tracker) Failed(tool string) {
	if t.Terminal() || tool != t.Required() {
		return
	}

	t.degraded = true
	t.state = Satisfied
}

func (t *Tracker) addServices(services []tools.Service) {
	for _, s := range services {
		if !slices.Contains(t.services, s) {
			t.services = append(t.services, s)
		}
	}
}

func sameLocation(a, b tools.Location) bool {
	return strings.EqualFold(strings.TrimSpace(a.City), strings.TrimSpace(b.City)) &&
		strings.EqualFold(strings.TrimSpace(a.State), strings.TrimSpace(b.State)) &&
		strings.TrimSpace(a.Zip) == strings.TrimSpace(b.Zip)
}
