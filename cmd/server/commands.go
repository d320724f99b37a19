package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/warp/discipline-engine/api"
	"github.com/warp/discipline-engine/discipline"
	"github.com/warp/discipline-engine/factory"
	"github.com/warp/discipline-engine/generic"
	"github.com/warp/discipline-engine/logging"
	"github.com/warp/discipline-engine/notify"
	"github.com/warp/discipline-engine/store/sqlite"
)

// systemActor owns catalog changes made from the command line.
var systemActor = generic.Actor{ID: "system", Role: generic.RoleAdmin}

// =============================================================================
// SHARED FLAGS
// =============================================================================

type storeConfig struct {
	path string
}

func (c *storeConfig) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "db",
			Usage:       `SQLite database path (":memory:" for an in-memory database)`,
			Value:       "discipline.db",
			Sources:     cli.EnvVars("DISCIPLINE_DB"),
			Destination: &c.path,
		},
	}
}

func (c *storeConfig) Open(ctx context.Context) (*sqlite.Store, error) {
	store, err := sqlite.New(c.path)
	if err != nil {
		return nil, err
	}
	logging.From(ctx).Info("database ready", "path", c.path)
	return store, nil
}

type mailConfig struct {
	sendgridKey string
	from        string
	baseURL     string
}

func (c *mailConfig) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "sendgrid-api-key",
			Usage:       "SendGrid API key; without one emails are logged instead of sent",
			Category:    "Email",
			Sources:     cli.EnvVars("DISCIPLINE_SENDGRID_API_KEY"),
			Destination: &c.sendgridKey,
		},
		&cli.StringFlag{
			Name:        "mail-from",
			Usage:       "Sender address for sign-off emails",
			Category:    "Email",
			Value:       "no-reply@example.org",
			Sources:     cli.EnvVars("DISCIPLINE_MAIL_FROM"),
			Destination: &c.from,
		},
		&cli.StringFlag{
			Name:        "base-url",
			Usage:       "Portal URL used to build sign-off links",
			Category:    "Email",
			Value:       "http://localhost:8080",
			Sources:     cli.EnvVars("DISCIPLINE_BASE_URL"),
			Destination: &c.baseURL,
		},
	}
}

func (c *mailConfig) Mailer(ctx context.Context) notify.Mailer {
	if c.sendgridKey == "" {
		logging.From(ctx).Warn("SendGrid API key not configured, emails will only be logged")
		return notify.NewConsoleMailer()
	}
	logging.From(ctx).Info("SendGrid delivery enabled", "from", c.from)
	return notify.NewSendGridMailer(c.sendgridKey, "Discipline", c.from, "")
}

func (c *mailConfig) Dispatcher(ctx context.Context, store *sqlite.Store) (*notify.Dispatcher, notify.Mailer, error) {
	renderer, err := notify.NewRenderer(c.baseURL)
	if err != nil {
		return nil, nil, err
	}
	mailer := c.Mailer(ctx)
	return notify.NewDispatcher(store, mailer, renderer), mailer, nil
}

func seedCatalogFile(ctx context.Context, h *api.Handler, path string) error {
	catalog, err := factory.NewCatalogFactory().LoadFile(path)
	if err != nil {
		return err
	}
	seeder := discipline.Seeder{Manager: h.Manager, Directory: h.Store}
	effects, err := seeder.SeedCatalog(ctx, systemActor, catalog)
	if err != nil {
		return err
	}
	h.Dispatcher.Deliver(ctx, *effects)
	logging.From(ctx).Info("catalog seeded", "path", path,
		"categories", len(catalog.Categories), "thresholds", len(catalog.Thresholds))
	return nil
}

// =============================================================================
// SERVE
// =============================================================================

func cmdServe() *cli.Command {
	var (
		addr            string
		catalogPath     string
		scenario        string
		enableScenarios bool
		origins         []string
		outboxInterval  time.Duration
		storeCfg        storeConfig
		mailCfg         mailConfig
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("DISCIPLINE_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "catalog",
			Usage:       "TOML catalog to seed before serving",
			Sources:     cli.EnvVars("DISCIPLINE_CATALOG"),
			Destination: &catalogPath,
		},
		&cli.StringFlag{
			Name:        "scenario",
			Usage:       "Demo scenario to load at startup (wipes the database)",
			Category:    "Demo",
			Sources:     cli.EnvVars("DISCIPLINE_SCENARIO"),
			Destination: &scenario,
		},
		&cli.BoolFlag{
			Name:        "enable-scenarios",
			Usage:       "Mount the /api/scenarios routes",
			Category:    "Demo",
			Value:       true,
			Sources:     cli.EnvVars("DISCIPLINE_ENABLE_SCENARIOS"),
			Destination: &enableScenarios,
		},
		&cli.StringSliceFlag{
			Name:        "allowed-origin",
			Usage:       "CORS origin allowed to call the API (repeatable)",
			Sources:     cli.EnvVars("DISCIPLINE_ALLOWED_ORIGINS"),
			Destination: &origins,
		},
		&cli.DurationFlag{
			Name:        "outbox-interval",
			Usage:       "How often failed emails are retried",
			Category:    "Email",
			Value:       time.Minute,
			Sources:     cli.EnvVars("DISCIPLINE_OUTBOX_INTERVAL"),
			Destination: &outboxInterval,
		},
	}
	flags = append(flags, storeCfg.Flags()...)
	flags = append(flags, mailCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.From(ctx)

			store, err := storeCfg.Open(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize database")
			}
			defer store.Close()

			dispatcher, mailer, err := mailCfg.Dispatcher(ctx, store)
			if err != nil {
				return goerr.Wrap(err, "failed to configure email")
			}
			handler := api.NewHandler(store, dispatcher)

			if scenario != "" {
				if err := handler.LoadScenarioByID(ctx, scenario); err != nil {
					return goerr.Wrap(err, "failed to load scenario", goerr.V("scenario", scenario))
				}
			}
			if catalogPath != "" {
				if err := seedCatalogFile(ctx, handler, catalogPath); err != nil {
					return goerr.Wrap(err, "failed to seed catalog")
				}
			}

			outbox := notify.NewOutboxScheduler(store, mailer)
			outbox.Interval = outboxInterval
			outbox.Start(ctx)
			defer outbox.Stop()

			opts := api.DefaultRouterOptions()
			opts.EnableScenarios = enableScenarios
			if len(origins) > 0 {
				opts.AllowedOrigins = origins
			}

			server := &http.Server{
				Addr:         addr,
				Handler:      api.NewRouter(handler, opts),
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
				BaseContext:  func(net.Listener) context.Context { return ctx },
			}

			serverErr := make(chan error, 1)
			go func() {
				logger.Info("server starting", "addr", addr, "scenarios", enableScenarios)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
				close(serverErr)
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(quit)

			select {
			case err := <-serverErr:
				if err != nil {
					return goerr.Wrap(err, "server failed")
				}
				return nil
			case sig := <-quit:
				logger.Info("shutting down server", "signal", sig.String())
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "server forced to shutdown")
			}
			logger.Info("server stopped")
			return nil
		},
	}
}

// =============================================================================
// SEED
// =============================================================================

func cmdSeed() *cli.Command {
	var (
		catalogPath string
		scenario    string
		storeCfg    storeConfig
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "catalog",
			Usage:       "TOML catalog to seed (default: the built-in group-home catalog)",
			Sources:     cli.EnvVars("DISCIPLINE_CATALOG"),
			Destination: &catalogPath,
		},
		&cli.StringFlag{
			Name:        "scenario",
			Usage:       "Load a demo scenario instead (wipes the database)",
			Destination: &scenario,
		},
	}
	flags = append(flags, storeCfg.Flags()...)

	return &cli.Command{
		Name:  "seed",
		Usage: "Seed the catalog and demo roster, or load a demo scenario",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			store, err := storeCfg.Open(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize database")
			}
			defer store.Close()

			// Seeding never sends email.
			renderer, err := notify.NewRenderer("http://localhost")
			if err != nil {
				return err
			}
			handler := api.NewHandler(store, notify.NewDispatcher(store, notify.NewConsoleMailer(), renderer))

			if scenario != "" {
				return handler.LoadScenarioByID(ctx, scenario)
			}

			seeder := discipline.Seeder{Manager: handler.Manager, Directory: store}
			if err := seeder.SeedRoster(ctx, discipline.DemoRoster()); err != nil {
				return err
			}
			if catalogPath != "" {
				return seedCatalogFile(ctx, handler, catalogPath)
			}

			catalog, err := discipline.StandardCatalog()
			if err != nil {
				return err
			}
			effects, err := seeder.SeedCatalog(ctx, systemActor, catalog)
			if err != nil {
				return err
			}
			handler.Dispatcher.Deliver(ctx, *effects)
			logging.From(ctx).Info("standard catalog seeded", "categories", len(catalog.Categories))
			return nil
		},
	}
}

// =============================================================================
// MIGRATE & CATALOG
// =============================================================================

func cmdMigrate() *cli.Command {
	var storeCfg storeConfig

	return &cli.Command{
		Name:  "migrate",
		Usage: "Create or upgrade the database schema",
		Flags: storeCfg.Flags(),
		Action: func(ctx context.Context, c *cli.Command) error {
			store, err := storeCfg.Open(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to migrate database")
			}
			return store.Close()
		},
	}
}

func cmdCatalog() *cli.Command {
	return &cli.Command{
		Name:  "catalog",
		Usage: "Inspect the built-in catalog",
		Commands: []*cli.Command{
			{
				Name:  "export",
				Usage: "Print the standard catalog as TOML",
				Action: func(ctx context.Context, c *cli.Command) error {
					catalog, err := discipline.StandardCatalog()
					if err != nil {
						return err
					}
					data, err := factory.Marshal(*catalog)
					if err != nil {
						return err
					}
					_, err = os.Stdout.Write(data)
					return err
				},
			},
		},
	}
}
