// Package di provides dependency injection configuration for the BookForge client.
package di

import (
	"github.com/samber/do/v2"

	"github.com/bookforgeapp/bookforge-client/internal/config"
	"github.com/bookforgeapp/bookforge-client/internal/di/providers"
	"github.com/bookforgeapp/bookforge-client/internal/export"
	"github.com/bookforgeapp/bookforge-client/internal/logger"
	"github.com/bookforgeapp/bookforge-client/internal/stream"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Storage layer
	do.Provide(injector, providers.ProvideSnapshotStore)
	do.Provide(injector, providers.ProvideLibrary)

	// Backend access
	do.Provide(injector, providers.ProvideAPIClient)
	do.Provide(injector, providers.ProvideTransport)

	// Output
	do.Provide(injector, providers.ProvideExporter)

	// Orchestration
	do.Provide(injector, providers.ProvideSessionManager)

	return injector
}

// Bootstrap triggers lazy initialization of all core services and returns the
// session manager handle, the entry point for everything the CLI does.
func Bootstrap(injector *do.RootScope) (*providers.SessionManagerHandle, error) {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return nil, err
	}
	if _, err := do.Invoke[*logger.Logger](injector); err != nil {
		return nil, err
	}
	if _, err := do.Invoke[*providers.SnapshotStoreHandle](injector); err != nil {
		return nil, err
	}
	if _, err := do.Invoke[*providers.LibraryHandle](injector); err != nil {
		return nil, err
	}
	if _, err := do.Invoke[*providers.APIClientHandle](injector); err != nil {
		return nil, err
	}
	if _, err := do.Invoke[*stream.Transport](injector); err != nil {
		return nil, err
	}
	if _, err := do.Invoke[*export.Exporter](injector); err != nil {
		return nil, err
	}
	return do.Invoke[*providers.SessionManagerHandle](injector)
}
