// Package easysave wires the EasySave service together: configuration,
// the HTTP surface, access control, and the live event feed.
//
// The service exposes a multi-tenant hierarchical key-value store. Every
// protected operation authenticates a (username, access key) pair against
// the user directory before touching data, and the caller's namespace root
// is always derived from the authenticated identity, never from request
// input.
package easysave

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/easysave/easysave/pkg/store"
	"github.com/easysave/easysave/pkg/store/postgres"
)

// Config holds application configuration.
type Config struct {
	// DatabaseDSN is the PostgreSQL connection string. Defaults to the
	// DATABASE_DSN environment variable.
	DatabaseDSN string

	// ServerPort is the HTTP listen port.
	ServerPort string

	// LogPath appends logs to a file instead of stdout when set.
	LogPath string
}

// App holds the application state. The store client is an explicit value
// owned here by the composition root; nothing in the service reaches for
// a global connection.
type App struct {
	store  store.Store
	config *Config
	log    zerolog.Logger
	events *eventHub
}

// New creates an application connected to the configured database.
func New(config *Config, log zerolog.Logger) (*App, error) {
	s, err := postgres.NewPostgresStore(config.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info().Msg("connected to database")
	return NewWithStore(s, config, log), nil
}

// NewWithStore creates an application on an already-open store. Tests use
// this to run the full HTTP surface against an in-memory database.
func NewWithStore(s store.Store, config *Config, log zerolog.Logger) *App {
	return &App{
		store:  s,
		config: config,
		log:    log,
		events: newEventHub(log),
	}
}

// Close closes the application and its resources.
func (a *App) Close() error {
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}

// Store returns the underlying store (useful for testing).
func (a *App) Store() store.Store {
	return a.store
}
