package easysave

import "context"

// Migrate creates or updates the database schema for the users and data
// tables. The unique constraints this installs are what the user
// directory relies on for atomic uniqueness enforcement.
func (a *App) Migrate(ctx context.Context, cmd *MigrateCommand) error {
	if err := a.store.Migrate(ctx); err != nil {
		return err
	}
	a.log.Info().Msg("schema migration complete")
	return nil
}
