package directory

import (
	"context"
	"familycoach/app/service/tools"
	"log/slog"
	"slices"
)

// Static serves providers from a fixed in-memory table. Location is
// ignored: the table describes a single area.
type Static struct {
	entries map[tools.ServiceType][]tools.Service
}

func NewStatic(entries map[tools.ServiceType][]tools.Service) *Static {
	return &Static{entries: entries}
}

func DefaultEntries() map[tools.ServiceType][]tools.Service {
	return map[tools.ServiceType][]tools.Service{
		tools.Hospital: {
			{Name: "El Camino Hospital", Phone: "650-940-7000", Address: "2500 Grant Rd, Mountain View, CA 94040"},
			{Name: "Stanford Health Care", Phone: "650-723-4000", Address: "300 Pasteur Dr, Stanford, CA 94305"},
		},
		tools.Police: {
			{Name: "Mountain View Police Department", Phone: "911 or (650) 903-6344", Address: "1000 Villa St, Mountain View, CA 94041"},
		},
		tools.Doctor: {
			{Name: "Palo Alto Medical Foundation", Phone: "650-934-7000", Address: "701 E El Camino Real, Mountain View, CA 94040"},
		},
	}
}

func (s *Static) Find(ctx context.Context, serviceType tools.ServiceType, location tools.Location) ([]tools.Service, error) {
	services := slices.Clone(s.entries[serviceType])

	slog.DebugContext(ctx, "Static directory lookup",
		"service_type", serviceType,
		"city", location.City,
		"results", len(services))

	return services, nil
}
