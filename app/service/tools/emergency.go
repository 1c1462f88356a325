package tools

import (
	"context"
	"familycoach/app/config"

	"github.com/samber/do"
)

const (
	GetUserLocation    = "getUserLocation"
	FindNearbyServices = "findNearbyServices"
)

type ServiceType string

const (
	Hospital ServiceType = "hospital"
	Police   ServiceType = "police"
	Doctor   ServiceType = "doctor"
)

type Location struct {
	City  string `json:"city" validate:"required"`
	State string `json:"state" validate:"required"`
	Zip   string `json:"zip" validate:"required"`
}

type Service struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

type LocationInput struct{}

type ServicesInput struct {
	ServiceType ServiceType `json:"serviceType" validate:"required,oneof=hospital police doctor"`
	Location    Location    `json:"location" validate:"required"`
}

// ServiceDirectory finds emergency and care providers near a location.
// An empty result means no known provider of that type.
type ServiceDirectory interface {
	Find(ctx context.Context, serviceType ServiceType, location Location) ([]Service, error)
}

var locationSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"city":  map[string]any{"type": "string"},
		"state": map[string]any{"type": "string"},
		"zip":   map[string]any{"type": "string"},
	},
	"required":             []string{"city", "state", "zip"},
	"additionalProperties": false,
}

func New(di *do.Injector) (*Registry, error) {
	cfg := do.MustInvoke[*config.Config](di)
	directory := do.MustInvoke[ServiceDirectory](di)

	location := Location{
		City:  cfg.Tools.Location.City,
		State: cfg.Tools.Location.State,
		Zip:   cfg.Tools.Location.Zip,
	}

	return NewRegistry(
		LocationSpec(StaticLocator(location)),
		ServicesSpec(directory),
	), nil
}

// Locator resolves the user's current location.
type Locator func(ctx context.Context) (Location, error)

func StaticLocator(location Location) Locator {
	return func(context.Context) (Location, error) {
		return location, nil
	}
}

func LocationSpec(locate Locator) Spec {
	return NewSpec(
		GetUserLocation,
		"Gets the user's current geographical location to find nearby services.",
		map[string]any{
			"type":                 "object",
			"properties":           map[string]any{},
			"additionalProperties": false,
		},
		locationSchema,
		func(ctx context.Context, _ LocationInput) (Location, error) {
			return locate(ctx)
		},
	)
}

func ServicesSpec(directory ServiceDirectory) Spec {
	return NewSpec(
		FindNearbyServices,
		"Finds nearby emergency services like hospitals or police stations.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"serviceType": map[string]any{
					"type":        "string",
					"enum":        []string{string(Hospital), string(Police), string(Doctor)},
					"description": "The type of service to search for.",
				},
				"location": locationSchema,
			},
			"required":             []string{"serviceType", "location"},
			"additionalProperties": false,
		},
		map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":    map[string]any{"type": "string"},
					"phone":   map[string]any{"type": "string"},
					"address": map[string]any{"type": "string"},
				},
			},
		},
		func(ctx context.Context, input ServicesInput) ([]Service, error) {
			services, err := directory.Find(ctx, input.ServiceType, input.Location)
			if err != nil {
				return nil, err
			}
			if services == nil {
				services = []Service{}
			}
			return services, nil
		},
	)
}
