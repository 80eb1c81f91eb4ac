package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/fuego-app/fuego/internal/config"
	dbpostgres "github.com/fuego-app/fuego/internal/db/postgres"
	"github.com/fuego-app/fuego/internal/ops"
	matchrepo "github.com/fuego-app/fuego/internal/repository/match"
	profilerepo "github.com/fuego-app/fuego/internal/repository/profile"
	"github.com/fuego-app/fuego/internal/transport/supabase"
	"github.com/fuego-app/fuego/internal/transport/upstream"
	"github.com/fuego-app/fuego/internal/version"
)

const defaultReadiness = 10 * time.Second

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:    "fuegoctl",
		Usage:   "Operate the fuego database: migrations, owner back-fill, setup and RLS checks",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dsn",
				Usage:   "Postgres connection string; falls back to database.dsn from config/<ENV>.yaml",
				EnvVars: []string{"DATABASE_URL", "SUPABASE_DB_URL"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the database to accept connections",
				Value: defaultReadiness,
			},
		},
		Commands: []*cli.Command{
			migrateCommand(),
			linkOwnersCommand(),
			verifyCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "fuegoctl: %v\n", err)
		os.Exit(1)
	}
}

func migrateCommand() *cli.Command {
	withMigrator := func(fn func(c *cli.Context, m *ops.Migrator) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			store, err := openStore(c)
			if err != nil {
				return err
			}
			defer store.Close()

			m, err := ops.NewMigrator(store.DB().DB)
			if err != nil {
				return err
			}
			defer func() { _ = m.Close() }()
			return fn(c, m)
		}
	}

	printVersion := func(c *cli.Context, m *ops.Migrator) error {
		v, dirty, err := m.Version()
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "version: %d dirty: %t\n", v, dirty)
		if dirty {
			return cli.Exit("database is dirty; fix the failed migration and force the version", 1)
		}
		return nil
	}

	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply or roll back the embedded schema migrations",
		Subcommands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations, stopping at the first failure",
				Action: withMigrator(func(c *cli.Context, m *ops.Migrator) error {
					if err := m.Up(); err != nil {
						return err
					}
					return printVersion(c, m)
				}),
			},
			{
				Name:  "down",
				Usage: "Roll back the last applied migration",
				Action: withMigrator(func(c *cli.Context, m *ops.Migrator) error {
					if err := m.Down(); err != nil {
						return err
					}
					return printVersion(c, m)
				}),
			},
			{
				Name:   "version",
				Usage:  "Print the applied migration version",
				Action: withMigrator(printVersion),
			},
		},
	}
}

func linkOwnersCommand() *cli.Command {
	return &cli.Command{
		Name:  "link-owners",
		Usage: "Set profiles.user_id from a JSON mapping file",
		Flags: []cli.Flag{
			&cli.PathFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    `Mapping file: [{"profile_id","user_id"}] or {"<profile_id>": "<user_id>"}`,
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Report what would change without writing",
			},
		},
		Action: func(c *cli.Context) error {
			data, err := os.ReadFile(c.Path("file"))
			if err != nil {
				return errors.Wrap(err, "read mapping file")
			}
			links, err := ops.ParseOwnerMapping(data)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Found %d mappings\n", len(links))

			store, err := openStore(c)
			if err != nil {
				return err
			}
			defer store.Close()

			report := ops.LinkOwners(c.Context, profilerepo.New(store.DB()), links, c.Bool("dry-run"))
			for _, r := range report.Results {
				line := fmt.Sprintf("%-9s profile=%q user=%q", r.Status, r.Link.ProfileID, r.Link.UserID)
				if r.Err != nil {
					line += " error=" + r.Err.Error()
				}
				fmt.Fprintln(c.App.Writer, line)
			}
			fmt.Fprintf(c.App.Writer, "\nSummary:\n  Updated: %d\n  Skipped: %d\n  Errors:  %d\n",
				report.Updated, report.Skipped, report.Failed)

			if report.Failed > 0 {
				return cli.Exit(fmt.Sprintf("%d mappings failed", report.Failed), 1)
			}
			return nil
		},
	}
}

func verifyCommand() *cli.Command {
	return &cli.Command{
		Name:  "verify",
		Usage: "Check pgvector, the matching functions, row level security and policies on profiles",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "function",
				Usage: "Matching function to inspect for SECURITY DEFINER; repeatable",
				Value: cli.NewStringSlice(ops.DefaultMatchFunctions...),
			},
			&cli.StringSliceFlag{
				Name:  "require-function",
				Usage: "Matching function that must exist; repeatable",
				Value: cli.NewStringSlice(ops.DefaultSetupFunctions...),
			},
			&cli.StringFlag{
				Name:  "profile-id",
				Usage: "Run find_matches(<id>, 1, 0) as a sample query",
			},
			&cli.BoolFlag{
				Name:  "test-rpc",
				Usage: "Call find_matches_cursor through PostgREST as the --jwt user; needs --profile-id",
			},
			&cli.StringFlag{
				Name:    "jwt",
				Usage:   "User access token for --test-rpc",
				EnvVars: []string{"FUEGO_TEST_JWT"},
			},
			&cli.StringFlag{
				Name:    "supabase-url",
				Usage:   "PostgREST base URL; falls back to supabase.url from config",
				EnvVars: []string{"SUPABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "anon-key",
				Usage:   "PostgREST anon key; falls back to supabase.anon_key from config",
				EnvVars: []string{"SUPABASE_ANON_KEY"},
			},
		},
		Action: func(c *cli.Context) error {
			if c.Bool("test-rpc") && c.String("profile-id") == "" {
				return cli.Exit("--test-rpc needs --profile-id", 2)
			}

			store, err := openStore(c)
			if err != nil {
				return err
			}
			defer store.Close()

			w := c.App.Writer
			failed := false

			setup, err := ops.VerifySetup(c.Context, store.DB(), c.StringSlice("require-function"))
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "pgvector installed: %t\n", setup.PGVector)
			fmt.Fprintf(w, "profiles.embedding present: %t\n", setup.EmbeddingColumn)
			fmt.Fprintf(w, "Functions: %s\n", strings.Join(setup.Functions, ", "))
			if len(setup.MissingFunctions) > 0 {
				fmt.Fprintf(w, "ERROR: missing functions: %s\n", strings.Join(setup.MissingFunctions, ", "))
			}
			failed = failed || !setup.OK()

			report, err := ops.Verify(c.Context, store.DB(), c.StringSlice("function"))
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "RLS enabled: %t\n", report.RLSEnabled)
			fmt.Fprintf(w, "Policies: %s\n", strings.Join(report.Policies, ", "))
			if len(report.MissingPolicies) > 0 {
				fmt.Fprintf(w, "WARNING: missing expected policies: %s\n", strings.Join(report.MissingPolicies, ", "))
			}
			for _, fn := range report.SecurityDefiner {
				fmt.Fprintf(w, "WARNING: %s is SECURITY DEFINER and bypasses RLS\n", fn)
			}
			failed = failed || !report.OK()

			if id := c.String("profile-id"); id != "" {
				repo, err := matchrepo.New(store.DB(), "find_matches_cursor")
				if err != nil {
					return err
				}
				if _, err := repo.WithOffsetFunction("find_matches"); err != nil {
					return err
				}
				rows, err := ops.SampleMatches(c.Context, repo, id)
				if err != nil {
					fmt.Fprintf(w, "ERROR: %v\n", err)
					failed = true
				} else {
					fmt.Fprintf(w, "Sample query returned %d row(s)\n", len(rows))
				}
			}

			if c.Bool("test-rpc") {
				rpc, err := newRPC(c)
				if err != nil {
					return err
				}
				rows, err := ops.SmokeRPC(c.Context, rpc, c.String("jwt"), c.String("profile-id"))
				if err != nil {
					fmt.Fprintf(w, "ERROR: %v\n", err)
					failed = true
				} else {
					fmt.Fprintf(w, "PostgREST call returned %d row(s)\n", len(rows))
				}
			}

			if failed {
				return cli.Exit("database is not fully configured for matching", 1)
			}
			fmt.Fprintln(w, "Setup, RLS and policies verified")
			return nil
		},
	}
}

// newRPC builds the PostgREST client from flags, falling back to config.
func newRPC(c *cli.Context) (*supabase.MatchRPC, error) {
	sb := config.SupabaseConfig{URL: c.String("supabase-url"), AnonKey: c.String("anon-key")}
	if !sb.Enabled() {
		cfg, err := config.Load(config.GetEnv())
		if err != nil {
			return nil, errors.Wrap(err, "no --supabase-url/--anon-key given and config could not be loaded")
		}
		sb = cfg.Supabase
	}
	if !sb.Enabled() {
		return nil, errors.New("supabase url and anon key are required for --test-rpc")
	}
	if sb.CursorFunction == "" {
		sb.CursorFunction = "find_matches_cursor"
	}

	client := upstream.New(upstream.Config{Name: "supabase"}, zap.NewNop())
	return supabase.NewMatchRPC(supabase.Config{
		URL:            sb.URL,
		AnonKey:        sb.AnonKey,
		CursorFunction: sb.CursorFunction,
	}, client), nil
}

func openStore(c *cli.Context) (*dbpostgres.Store, error) {
	dsn := c.String("dsn")
	if dsn == "" {
		cfg, err := config.Load(config.GetEnv())
		if err != nil {
			return nil, errors.Wrap(err, "no --dsn given and config could not be loaded")
		}
		dsn = cfg.Database.DSN
	}

	store, err := dbpostgres.NewStore(dbpostgres.Config{DSN: dsn, MaxOpenConns: 2, MaxIdleConns: 1})
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err := store.WaitForReady(c.Context, c.Duration("timeout")); err != nil {
		store.Close()
		return nil, errors.Wrap(err, "database not ready")
	}
	return store, nil
}
