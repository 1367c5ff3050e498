package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/rosca-settlement/pkg/config"
	"github.com/angelmondragon/rosca-settlement/pkg/db"
	"github.com/angelmondragon/rosca-settlement/pkg/logger"
	"github.com/angelmondragon/rosca-settlement/pkg/migrate"
)

const usage = `usage: migrate <command> [args]

commands:
  up              apply all pending migrations
  down            roll back the latest migration
  to <version>    move the schema to YYYYMMDDHHMMSS
  status          list migrations and whether they are applied
  validate        check the embedded migration files
  new <title>     write an empty migration into ` + migrate.SourceDir + `
`

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()

	switch args[0] {
	case "validate":
		exitOn(migrate.Validate(migrate.Migrations()), "migration validation failed")
		fmt.Println("migrations ok")
		return
	case "new":
		if len(args) < 2 {
			flag.Usage()
			os.Exit(2)
		}
		path, err := migrate.NewFile(migrate.SourceDir, args[1], time.Now())
		exitOn(err, "failed to create migration")
		fmt.Println("created", path)
		return
	}

	cfg, err := config.Load()
	exitOn(err, "failed to load config")
	if cfg.DB.IsSQLite() {
		exitOn(fmt.Errorf("driver %q", cfg.DB.Driver), "goose migrations target postgres; sqlite uses the embedded schema")
	}

	logg := logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "command": args[0]})

	client, err := db.New(ctx, cfg.DB, logg)
	exitOn(err, "failed to connect to database")
	defer client.Close()

	sqlDB, err := client.DB().DB()
	exitOn(err, "failed to unwrap sql.DB")
	runner, err := migrate.NewRunner(sqlDB)
	exitOn(err, "failed to prepare migrations")

	switch args[0] {
	case "up":
		applied, err := runner.Up(ctx)
		exitOn(err, "migrate up failed")
		logg.Info(logg.WithField(ctx, "applied", applied), "migrations applied")
	case "down":
		version, err := runner.Down(ctx)
		exitOn(err, "migrate down failed")
		logg.Info(logg.WithField(ctx, "version", version), "migration rolled back")
	case "to":
		if len(args) < 2 {
			flag.Usage()
			os.Exit(2)
		}
		target, err := migrate.ParseVersion(args[1])
		exitOn(err, "invalid version")
		moved, err := runner.To(ctx, target)
		exitOn(err, "migrate to version failed")
		logg.Info(logg.WithFields(ctx, map[string]any{"target": target, "moved": moved}), "schema at target version")
	case "status":
		rows, err := runner.Status(ctx)
		exitOn(err, "migrate status failed")
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tSTATE\tFILE")
		for _, row := range rows {
			state := "pending"
			if row.Applied {
				state = "applied"
			}
			fmt.Fprintf(w, "%d\t%s\t%s\n", row.Version, state, row.Path)
		}
		_ = w.Flush()
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func exitOn(err error, msg string) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}
