package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/convertflow/pkg/config"
	"github.com/angelmondragon/convertflow/pkg/db"
	"github.com/angelmondragon/convertflow/pkg/logger"
	"github.com/angelmondragon/convertflow/pkg/migrate"
)

type options struct {
	dir     string
	name    string
	version string
}

// offline commands never open a database connection.
var offline = map[string]func(ctx context.Context, logg *logger.Logger, opts options) error{
	"create": func(ctx context.Context, logg *logger.Logger, opts options) error {
		if opts.name == "" {
			return fmt.Errorf("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name, time.Now())
		if err != nil {
			return err
		}
		logg.Info(logg.WithField(ctx, "path", path), "migration created")
		return nil
	},
	"validate": func(ctx context.Context, logg *logger.Logger, opts options) error {
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return err
		}
		logg.Info(ctx, "migration validation passed")
		return nil
	},
}

var online = map[string]func(ctx context.Context, m *migrate.Migrator, opts options) error{
	"up":     func(ctx context.Context, m *migrate.Migrator, _ options) error { return m.Up(ctx) },
	"down":   func(ctx context.Context, m *migrate.Migrator, _ options) error { return m.Down(ctx) },
	"status": func(ctx context.Context, m *migrate.Migrator, _ options) error { return m.Status(ctx) },
	"version": func(ctx context.Context, m *migrate.Migrator, opts options) error {
		if opts.version == "" {
			return fmt.Errorf("missing -version for version command")
		}
		return m.MigrateTo(ctx, opts.version)
	},
}

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	_ = godotenv.Load()

	var opts options
	cmd := flag.String("cmd", "up", "migration command: "+commandList())
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	if run, ok := offline[*cmd]; ok {
		fail(ctx, logg, *cmd, run(logg.WithField(ctx, "dir", opts.dir), logg, opts))
		return
	}
	run, ok := online[*cmd]
	if !ok {
		fail(ctx, logg, *cmd, fmt.Errorf("unknown -cmd %q (want %s)", *cmd, commandList()))
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx = logg.WithFields(ctx, map[string]any{
		"env":    cfg.App.Env,
		"cmd":    *cmd,
		"dir":    opts.dir,
		"driver": cfg.DB.Driver,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	requireResource(ctx, logg, "sql database", err)

	migrator, err := migrate.New(sqlDB, cfg.DB.Driver, opts.dir, logg)
	requireResource(ctx, logg, "migrator", err)

	fail(ctx, logg, *cmd, run(ctx, migrator, opts))
}

func commandList() string {
	names := make([]string, 0, len(offline)+len(online))
	for name := range offline {
		names = append(names, name)
	}
	for name := range online {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

func fail(ctx context.Context, logg *logger.Logger, cmd string, err error) {
	if err == nil {
		return
	}
	logg.Error(logg.WithField(ctx, "cmd", cmd), "migrate command failed", err)
	os.Exit(1)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
