// Package app wires the forms service's components together.
package app

import (
	"github.com/formsdesk/formsdesk/internal/app/services/forms"
	"github.com/formsdesk/formsdesk/internal/app/storage"
	"github.com/formsdesk/formsdesk/internal/app/storage/memory"
	"github.com/formsdesk/formsdesk/pkg/logger"
)

// Stores encapsulates persistence dependencies. A nil store defaults to the
// in-memory implementation.
type Stores struct {
	Records storage.RecordStore
}

// Application ties the domain services together.
type Application struct {
	log *logger.Logger

	Forms *forms.Service
}

// New builds a fully initialised application with the provided stores and
// renderer.
func New(stores Stores, renderer forms.Renderer, log *logger.Logger) *Application {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if stores.Records == nil {
		stores.Records = memory.New()
	}

	return &Application{
		log:   log,
		Forms: forms.New(stores.Records, renderer, log),
	}
}
