package easysave

import (
	"flag"
	"fmt"
	"os"
)

// Parse parses command line arguments and returns the command to execute,
// the application configuration shared across commands, and any error
// that occurred.
func Parse(args []string) (Command, *Config, error) {
	flagSet := flag.NewFlagSet("easysave", flag.ContinueOnError)

	var (
		port    = flagSet.String("port", "8080", "Server port")
		dsn     = flagSet.String("dsn", os.Getenv("DATABASE_DSN"), "PostgreSQL DSN (defaults to DATABASE_DSN)")
		logPath = flagSet.String("log-path", "", "Append logs to this file instead of stdout")
	)

	if err := flagSet.Parse(args); err != nil {
		return nil, nil, err
	}

	remainingArgs := flagSet.Args()
	if len(remainingArgs) == 0 {
		return nil, nil, fmt.Errorf(`subcommand required

Usage: easysave [flags] <command>

Commands:
  run       Start the EasySave server
  migrate   Create or update the database schema

Examples:
  easysave migrate
  easysave -port 9000 run
  DATABASE_DSN="postgres://..." easysave run`)
	}

	config := &Config{
		DatabaseDSN: *dsn,
		ServerPort:  *port,
		LogPath:     *logPath,
	}
	if config.DatabaseDSN == "" {
		return nil, nil, fmt.Errorf("database DSN required: set -dsn or DATABASE_DSN")
	}

	var cmd Command
	switch remainingArgs[0] {
	case "run":
		cmd = &RunCommand{}
	case "migrate":
		cmd = &MigrateCommand{}
	default:
		return nil, nil, fmt.Errorf("unknown command: %s", remainingArgs[0])
	}

	return cmd, config, nil
}
