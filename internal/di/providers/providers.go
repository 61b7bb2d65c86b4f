// Package providers contains dependency injection providers for the BookForge client.
package providers

import (
	"path/filepath"

	"github.com/samber/do/v2"

	"github.com/bookforgeapp/bookforge-client/internal/api"
	"github.com/bookforgeapp/bookforge-client/internal/config"
	"github.com/bookforgeapp/bookforge-client/internal/export"
	"github.com/bookforgeapp/bookforge-client/internal/library"
	"github.com/bookforgeapp/bookforge-client/internal/logger"
	"github.com/bookforgeapp/bookforge-client/internal/session"
	"github.com/bookforgeapp/bookforge-client/internal/store"
	"github.com/bookforgeapp/bookforge-client/internal/stream"
)

// ProvideConfig provides the application configuration.
func ProvideConfig(i do.Injector) (*config.Config, error) {
	return config.LoadConfig()
}

// ProvideLogger provides the structured logger.
func ProvideLogger(i do.Injector) (*logger.Logger, error) {
	cfg := do.MustInvoke[*config.Config](i)

	log := logger.New(logger.Config{
		Level:       logger.ParseLevel(cfg.Logger.Level),
		AddSource:   cfg.App.Environment == "development",
		Environment: cfg.App.Environment,
	})

	log.Debug("starting BookForge client",
		"environment", cfg.App.Environment,
		"log_level", cfg.Logger.Level,
		"data_path", cfg.Storage.DataPath,
		"api_url", cfg.API.BaseURL,
	)

	return log, nil
}

// SnapshotStoreHandle wraps the snapshot store with shutdown capability.
type SnapshotStoreHandle struct {
	store.SnapshotStore
	badger *store.BadgerStore
}

// Shutdown implements do.Shutdownable.
func (h *SnapshotStoreHandle) Shutdown() error {
	return h.badger.Close()
}

// ProvideSnapshotStore provides the Badger-backed snapshot store.
func ProvideSnapshotStore(i do.Injector) (*SnapshotStoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	dbPath := filepath.Join(cfg.Storage.DataPath, "snapshots")
	bs, err := store.OpenBadger(dbPath, cfg.Storage.SnapshotTTL, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Debug("snapshot store opened", "path", dbPath)
	return &SnapshotStoreHandle{SnapshotStore: bs, badger: bs}, nil
}

// LibraryHandle wraps the book library with shutdown capability.
type LibraryHandle struct {
	*library.Library
}

// Shutdown implements do.Shutdownable.
func (h *LibraryHandle) Shutdown() error {
	return h.Close()
}

// ProvideLibrary provides the local book archive.
func ProvideLibrary(i do.Injector) (*LibraryHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	dbPath := filepath.Join(cfg.Storage.DataPath, "library.db")
	lib, err := library.Open(dbPath, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Debug("library opened", "path", dbPath)
	return &LibraryHandle{Library: lib}, nil
}

// APIClientHandle wraps the REST client with shutdown capability.
type APIClientHandle struct {
	*api.Client
}

// Shutdown implements do.Shutdownable.
func (h *APIClientHandle) Shutdown() error {
	h.Close()
	return nil
}

// ProvideAPIClient provides the rate-limited REST client.
func ProvideAPIClient(i do.Injector) (*APIClientHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	client := api.New(cfg.API.BaseURL, cfg.API.RequestTimeout, log.Logger)
	return &APIClientHandle{Client: client}, nil
}

// ProvideTransport provides the generation stream transport.
func ProvideTransport(i do.Injector) (*stream.Transport, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	return stream.New(cfg.API.BaseURL, log.Logger), nil
}

// ProvideExporter provides the file exporter.
func ProvideExporter(i do.Injector) (*export.Exporter, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	dir := filepath.Join(cfg.Storage.DataPath, "exports")
	return export.New(dir, log.Logger), nil
}

// SessionManagerHandle wraps the session manager with shutdown capability.
type SessionManagerHandle struct {
	*session.Manager
}

// Shutdown implements do.Shutdownable.
func (h *SessionManagerHandle) Shutdown() error {
	h.Manager.Close()
	return nil
}

// ProvideSessionManager provides the session orchestrator. Callbacks are
// installed by the caller via SetCallbacks before starting a session.
func ProvideSessionManager(i do.Injector) (*SessionManagerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	snapshots := do.MustInvoke[*SnapshotStoreHandle](i)
	client := do.MustInvoke[*APIClientHandle](i)
	transport := do.MustInvoke[*stream.Transport](i)

	mgr := session.NewManager(
		transport,
		client.Client,
		snapshots,
		session.Config{
			SnapshotTTL:          cfg.Storage.SnapshotTTL,
			HeartbeatInterval:    cfg.Recovery.HeartbeatInterval,
			MaxMissedHeartbeats:  cfg.Recovery.MaxMissedHeartbeats,
			StaleResumeThreshold: cfg.Recovery.StaleResumeThreshold,
		},
		session.Callbacks{},
		log.Logger,
	)
	return &SessionManagerHandle{Manager: mgr}, nil
}
