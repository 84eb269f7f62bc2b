package easysave

import (
	"context"
	"fmt"

	"github.com/easysave/easysave/pkg/logger"
)

// Main is the entry point for the easysave application. It takes a
// context for cancellation and command line arguments, then executes the
// appropriate command. Tests can call it directly without building the
// binary.
func Main(ctx context.Context, args []string) error {
	cmd, config, err := Parse(args)
	if err != nil {
		return fmt.Errorf("failed to parse configuration: %w", err)
	}

	build := logger.New()
	if config.LogPath != "" {
		build = build.FromPath(config.LogPath)
	}
	log, err := build.Make()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	app, err := New(config, log)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer app.Close()

	switch c := cmd.(type) {
	case *MigrateCommand:
		if err := app.Migrate(ctx, c); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	case *RunCommand:
		if err := app.Run(ctx, c); err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	default:
		return fmt.Errorf("unknown command type: %T", cmd)
	}

	return nil
}
