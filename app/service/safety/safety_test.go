package safety

import (
	"encoding/json"
	"errors"
	"familycoach/app/service/tools"
	"strings"
	"testing"
)

func servicesArgs(t *testing.T, loc tools.Location) json.RawMessage {
	t.Helper()

	data, err := json.Marshal(tools.ServicesInput{ServiceType: tools.Hospital, Location: loc})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}

	return data
}

func TestClassifierDefaults(t *testing.T) {
	c := NewClassifier(nil)

	risky := []string{
		"I feel unsafe and don't know what to do",
		"Sometimes I think about ending my life",
		"my son said he wants to HURT   MYSELF",
		"I don’t want to live like this",
		"Alex seems seriously unwell",
	}
	for _, msg := range risky {
		if a := c.Assess(msg); !a.Risk || len(a.Matched) == 0 {
			t.Errorf("Assess(%q) = %+v, want risk", msg, a)
		}
	}

	calm := []string{
		"What's a good weekend activity?",
		"How can I help my daughter with exam stress?",
		"Suggest a fun family activity for a rainy day.",
	}
	for _, msg := range calm {
		if a := c.Assess(msg); a.Risk {
			t.Errorf("Assess(%q) = %+v, want no risk", msg, a)
		}
	}
}

func TestClassifierCustomPhrases(t *testing.T) {
	c := NewClassifier([]string{"  Hopeless ", "hopeless", ""})

	if len(c.phrases) != 1 {
		t.Fatalf("phrases = %v, want one normalized phrase", c.phrases)
	}
	if !c.Assess("I feel so hopeless today").Risk {
		t.Fatal("custom phrase should match")
	}
	if c.Assess("I feel unsafe").Risk {
		t.Fatal("custom list replaces the defaults")
	}
}

func TestTrackerNonRiskIsImmediatelySatisfied(t *testing.T) {
	tr := NewTracker()

	if got := tr.Classify(Assessment{}); got != Satisfied {
		t.Fatalf("Classify() = %v, want SATISFIED", got)
	}
	if tr.Required() != "" || tr.Risk() || tr.Degraded() {
		t.Fatalf("unexpected tracker: %+v", tr)
	}
}

func TestTrackerFullSequence(t *testing.T) {
	tr := NewTracker()
	tr.Classify(Assessment{Risk: true, Matched: []string{"unsafe"}})

	if tr.State() != RiskDetected || tr.Required() != tools.GetUserLocation {
		t.Fatalf("state = %v required = %q", tr.State(), tr.Required())
	}

	tr.Issued(tools.GetUserLocation)
	if tr.State() != LocationPending {
		t.Fatalf("state = %v, want LOCATION_PENDING", tr.State())
	}

	loc := tools.Location{City: "Mountain View", State: "CA", Zip: "94043"}
	tr.Succeeded(tools.GetUserLocation, nil, loc)
	if tr.State() != ServicesPending || tr.Required() != tools.FindNearbyServices {
		t.Fatalf("state = %v required = %q", tr.State(), tr.Required())
	}
	if got, ok := tr.Location(); !ok || got != loc {
		t.Fatalf("Location() = %+v, %v", got, ok)
	}

	tr.Issued(tools.FindNearbyServices)
	tr.Succeeded(tools.FindNearbyServices, servicesArgs(t, loc), []tools.Service{{Name: "El Camino Hospital", Phone: "650-940-7000"}})
	if !tr.Terminal() || tr.Degraded() {
		t.Fatalf("state = %v degraded = %v", tr.State(), tr.Degraded())
	}
	if len(tr.Services()) != 1 {
		t.Fatalf("Services() = %v", tr.Services())
	}
}

func TestTrackerServicesBeforeLocationDoesNotAdvance(t *testing.T) {
	tr := NewTracker()
	tr.Classify(Assessment{Risk: true})

	args := servicesArgs(t, tools.Location{City: "Springfield", State: "IL", Zip: "62701"})
	if err := tr.Allow(tools.FindNearbyServices, args); !errors.Is(err, ErrLocationFirst) {
		t.Fatalf("Allow() = %v, want ErrLocationFirst", err)
	}

	tr.Succeeded(tools.FindNearbyServices, args, []tools.Service{{Name: "Clinic"}})

	if tr.State() != RiskDetected {
		t.Fatalf("state = %v, want RISK_DETECTED", tr.State())
	}
	if len(tr.Services()) != 0 {
		t.Fatalf("services found out of order were kept: %v", tr.Services())
	}
}

func TestTrackerServicesMustUseObtainedLocation(t *testing.T) {
	tr := NewTracker()
	tr.Classify(Assessment{Risk: true})

	loc := tools.Location{City: "Mountain View", State: "CA", Zip: "94043"}
	tr.Succeeded(tools.GetUserLocation, nil, loc)

	elsewhere := servicesArgs(t, tools.Location{City: "Nowhere", State: "ZZ", Zip: "00000"})
	if err := tr.Allow(tools.FindNearbyServices, elsewhere); !errors.Is(err, ErrLocationMismatch) {
		t.Fatalf("Allow() = %v, want ErrLocationMismatch", err)
	}

	tr.Succeeded(tools.FindNearbyServices, elsewhere, []tools.Service{{Name: "Clinic"}})
	if tr.State() != ServicesPending || len(tr.Services()) != 0 {
		t.Fatalf("state = %v services = %v", tr.State(), tr.Services())
	}

	sameCity := servicesArgs(t, tools.Location{City: "mountain view ", State: "ca", Zip: "94043"})
	if err := tr.Allow(tools.FindNearbyServices, sameCity); err != nil {
		t.Fatalf("Allow() = %v for the obtained location", err)
	}
	if err := tr.Allow(tools.GetUserLocation, nil); err != nil {
		t.Fatalf("Allow(location) = %v", err)
	}
}

func TestTrackerEmptyServicesSatisfies(t *testing.T) {
	tr := NewTracker()
	tr.Classify(Assessment{Risk: true})
	loc := tools.Location{City: "X", State: "Y", Zip: "1"}
	tr.Succeeded(tools.GetUserLocation, nil, loc)
	tr.Succeeded(tools.FindNearbyServices, servicesArgs(t, loc), []tools.Service{})

	if !tr.Terminal() || tr.Degraded() {
		t.Fatalf("state = %v degraded = %v", tr.State(), tr.Degraded())
	}
}

func TestTrackerFailedRequiredStepDegrades(t *testing.T) {
	tr := NewTracker()
	tr.Classify(Assessment{Risk: true})
	tr.Succeeded(tools.GetUserLocation, nil, tools.Location{City: "X", State: "Y", Zip: "1"})

	tr.Failed(tools.GetUserLocation)
	if tr.Terminal() {
		t.Fatal("failure of a step that is not outstanding must not change state")
	}

	tr.Failed(tools.FindNearbyServices)
	if !tr.Terminal() || !tr.Degraded() {
		t.Fatalf("state = %v degraded = %v, want degraded SATISFIED", tr.State(), tr.Degraded())
	}
}

func TestClassifyOnlyOnce(t *testing.T) {
	tr := NewTracker()
	tr.Classify(Assessment{})
	if got := tr.Classify(Assessment{Risk: true}); got != Satisfied || tr.Risk() {
		t.Fatalf("second Classify changed the turn: %v risk=%v", got, tr.Risk())
	}
}

func TestEnsureDisclaimer(t *testing.T) {
	got := EnsureDisclaimer("Take a breath.")
	if !strings.HasSuffix(got, Disclaimer) || !strings.HasPrefix(got, "Take a breath.") {
		t.Fatalf("EnsureDisclaimer() = %q", got)
	}
	if again := EnsureDisclaimer(got); again != got {
		t.Fatalf("EnsureDisclaimer() not idempotent: %q", again)
	}
	if EnsureDisclaimer("  ") != Disclaimer {
		t.Fatal("empty text should become the disclaimer")
	}
}

func TestEnsureResources(t *testing.T) {
	services := []tools.Service{{Name: "El Camino Hospital", Phone: "650-940-7000", Address: "2500 Grant Rd"}}

	mentioned := "Please call El Camino Hospital at 650-940-7000."
	if got := EnsureResources(mentioned, services); got != mentioned {
		t.Fatalf("EnsureResources() changed text that already lists a contact: %q", got)
	}

	got := EnsureResources("Please reach out for help.", services)
	if !strings.Contains(got, "650-940-7000") || !strings.Contains(got, "2500 Grant Rd") {
		t.Fatalf("EnsureResources() = %q", got)
	}

	if got := EnsureResources("x", nil); got != "x" {
		t.Fatalf("EnsureResources(nil) = %q", got)
	}
}

func TestFallback(t *testing.T) {
	withServices := Fallback([]tools.Service{{Name: "Clinic", Phone: "555-0100", Address: "1 Main St"}})
	if !strings.Contains(withServices, "555-0100") || !strings.Contains(withServices, Disclaimer) {
		t.Fatalf("Fallback() = %q", withServices)
	}

	bare := Fallback(nil)
	if !strings.Contains(bare, Disclaimer) {
		t.Fatalf("Fallback(nil) = %q", bare)
	}
}
