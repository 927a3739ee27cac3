package controllers

import (
	"github.com/go-chi/chi/v5"

	"github.com/rzbill/warden/internal/runtime"
)

// ControllerRegistry manages all HTTP controllers.
type ControllerRegistry struct {
	general   *GeneralController
	events    *EventsController
	intruders *IntrudersController
}

// NewControllerRegistry creates a new controller registry.
func NewControllerRegistry(rt *runtime.Runtime) *ControllerRegistry {
	return &ControllerRegistry{
		general:   NewGeneralController(rt),
		events:    NewEventsController(rt),
		intruders: NewIntrudersController(rt),
	}
}

// RegisterAllRoutes registers all controller routes with the given router.
func (r *ControllerRegistry) RegisterAllRoutes(router chi.Router) {
	r.general.RegisterRoutes(router)
	r.events.RegisterRoutes(router)
	r.intruders.RegisterRoutes(router)
}
