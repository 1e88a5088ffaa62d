package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/agrimarket/fulfillment-backend/pkg/config"
	"github.com/agrimarket/fulfillment-backend/pkg/db"
	"github.com/agrimarket/fulfillment-backend/pkg/logger"
	"github.com/agrimarket/fulfillment-backend/pkg/migrate"
)

const usage = `usage: migrate [flags] <command>

commands:
  up | down | status    run goose against the database
  version               migrate to -version (YYYYMMDDHHMMSS)
  create                write a new migration named -name into -dir
  validate              check migration filenames and goose markers

flags:
`

type options struct {
	dir      string
	embedded bool
	name     string
	version  string
}

func main() {
	_ = godotenv.Load()

	var opts options
	flags := flag.NewFlagSet("migrate", flag.ExitOnError)
	flags.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flags.BoolVar(&opts.embedded, "embedded", false, "use the migrations compiled into the binary")
	flags.StringVar(&opts.name, "name", "", "migration name for create")
	flags.StringVar(&opts.version, "version", "", "target version for the version command")
	flags.Usage = func() {
		fmt.Fprint(flags.Output(), usage)
		flags.PrintDefaults()
	}
	_ = flags.Parse(os.Args[1:])

	command := flags.Arg(0)
	if command == "" {
		command = "up"
	}

	if err := run(context.Background(), command, opts); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", command, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, opts options) error {
	src := migrate.DirSource(opts.dir)
	if opts.embedded {
		src = migrate.EmbeddedSource()
	}

	// create and validate only touch the filesystem
	switch command {
	case "create":
		if opts.name == "" {
			return errors.New("-name is required")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return err
		}
		fmt.Println("created", path)
		return nil
	case "validate":
		validate := func() error { return migrate.ValidateDir(opts.dir) }
		if opts.embedded {
			validate = migrate.ValidateEmbedded
		}
		if err := validate(); err != nil {
			return err
		}
		fmt.Println("migrations valid:", src)
		return nil
	case "up", "down", "status", "version":
	default:
		return fmt.Errorf("unknown command %q", command)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"command":    command,
		"migrations": src.String(),
	})

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "database unavailable", err)
		return err
	}
	defer client.Close()

	pool, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql pool handle: %w", err)
	}

	if command == "version" {
		if opts.version == "" {
			return errors.New("-version is required")
		}
		err = src.MigrateTo(ctx, pool, opts.version)
	} else {
		err = src.Run(ctx, pool, command)
	}
	if err != nil {
		logg.Error(ctx, "migration failed", err)
		return err
	}
	logg.Info(ctx, "migration finished")
	return nil
}
