package easysave

// Command represents a discrete application operation with its specific
// configuration. Commands are created by [Parse] and executed by the
// matching method on [App].
type Command interface {
	// Name returns the command identifier used for routing to the
	// appropriate handler.
	Name() string
}

// MigrateCommand creates or updates the users and data tables, including
// their unique constraints. It is safe to run repeatedly: only missing
// schema elements are added and no data is dropped. Run it once before
// the first server start and after every model change.
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string {
	return "migrate"
}

// RunCommand starts the HTTP server. The server runs until the context is
// cancelled, then shuts down gracefully, letting in-flight requests
// finish.
type RunCommand struct{}

func (c *RunCommand) Name() string {
	return "run"
}
