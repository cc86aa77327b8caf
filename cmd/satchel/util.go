package main

import (
	"context"
	"fmt"

	goredis "github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"

	"github.com/oriys/satchel/internal/config"
	"github.com/oriys/satchel/internal/domain"
	"github.com/oriys/satchel/internal/ledger"
	"github.com/oriys/satchel/internal/pool"
	"github.com/oriys/satchel/internal/store"
)

// loadConfig loads the config file (if any), applies env overrides, then
// applies the persistent CLI flags on top only where explicitly set — the
// same file < env < explicit-flag precedence the teacher's daemonCmd uses,
// via cmd.Flags().Changed so an unset --redis flag doesn't clobber a value
// the config file or environment already set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var cfg *config.Config
	if configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("%w: load config: %v", domain.ErrValidation, err)
		}
	} else {
		cfg = config.DefaultConfig()
	}
	config.LoadFromEnv(cfg)

	flags := cmd.Flags()
	if flags.Changed("redis") {
		cfg.Redis.Addr = redisAddr
	}
	if flags.Changed("redis-pass") {
		cfg.Redis.Password = redisPass
	}
	if flags.Changed("redis-db") {
		cfg.Redis.DB = redisDB
	}
	if flags.Changed("postgres-dsn") {
		cfg.Postgres.DSN = pgDSN
	}
	if flags.Changed("categories") {
		cfg.Categories.File = categoryFile
	}
	return cfg, nil
}

// deps bundles the backend connections a command needs. Close releases
// both.
type deps struct {
	redis      *goredis.Client
	pg         *store.Postgres
	pool       pool.Index
	ledger     ledger.Store
	locker     store.Locker
	categories domain.CategoryTable
}

func (d *deps) Close() {
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.pg != nil {
		_ = d.pg.Close()
	}
}

// connect wires Redis and Postgres backends and loads the category table,
// per cfg. Most commands need both; Close must be called when done.
func connect(ctx context.Context, cfg *config.Config) (*deps, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pg, err := store.NewPostgres(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: connect postgres: %v", domain.ErrPoolUnavailable, err)
	}

	categories, err := config.LoadCategoryTable(cfg.Categories.File)
	if err != nil {
		pg.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: load category table: %v", domain.ErrValidation, err)
	}

	return &deps{
		redis:      rdb,
		pg:         pg,
		pool:       pool.NewRedisIndex(rdb),
		ledger:     ledger.NewRedisLedger(rdb),
		locker:     store.NewPostgresLocker(pg),
		categories: categories,
	}, nil
}
