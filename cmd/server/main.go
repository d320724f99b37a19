/*
main.go - Application entry point

PURPOSE:
  Command-line entry for the discipline point engine. Builds the logger
  from global flags and dispatches to a subcommand.

COMMANDS:
  serve            Run the HTTP API and the email outbox scheduler
  seed             Load a catalog and the demo roster, or a demo scenario
  migrate          Create or upgrade the SQLite schema and exit
  catalog export   Print the standard catalog as TOML

GLOBAL FLAGS:
  --log-level   debug|info|warn|error (DISCIPLINE_LOG_LEVEL, default: info)
  --log-format  text|json (DISCIPLINE_LOG_FORMAT, default: text)

EXAMPLES:
  # Serve against a file database, sending mail through SendGrid
  ./server serve --db=./data/discipline.db --sendgrid-api-key=SG.xxx \
      --mail-from=hr@example.org --base-url=https://portal.example.org

  # In-memory demo with the escalation story preloaded
  ./server serve --db=":memory:" --scenario=escalation

  # Start from the standard catalog and customize it
  ./server catalog export > catalog.toml
  ./server seed --catalog=catalog.toml

SEE ALSO:
  - commands.go: Subcommand definitions
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/warp/discipline-engine/logging"
)

func main() {
	if err := run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	var logLevel, logFormat string

	app := &cli.Command{
		Name:  "discipline",
		Usage: "Employee discipline point engine",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "Log level (debug, info, warn, error)",
				Value:       "info",
				Sources:     cli.EnvVars("DISCIPLINE_LOG_LEVEL"),
				Destination: &logLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "Log format (text, json)",
				Value:       "text",
				Sources:     cli.EnvVars("DISCIPLINE_LOG_FORMAT"),
				Destination: &logFormat,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			logger, err := logging.New(os.Stderr, logLevel, logFormat)
			if err != nil {
				return ctx, err
			}
			return logging.WithLogger(ctx, logger), nil
		},
		Commands: []*cli.Command{
			cmdServe(),
			cmdSeed(),
			cmdMigrate(),
			cmdCatalog(),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		logging.From(ctx).Error("failed to run app", logging.ErrAttrs(err)...)
		return err
	}
	return nil
}
