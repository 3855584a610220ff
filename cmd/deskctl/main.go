// Command deskctl is the operator CLI for campus-desk: queue inspection and repair, token
// minting for scripts, schema migration and mapping checks. It reads the same configuration
// as the service (defaults, CONF_FILE, environment).
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gogogo1024/campus-desk/internal/common"
	"github.com/gogogo1024/campus-desk/internal/queue"
	"github.com/gogogo1024/campus-desk/internal/refdata"
	"github.com/gogogo1024/campus-desk/internal/sqlrepo"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var confFile string
	root := &cobra.Command{
		Use:          "deskctl",
		Short:        "campus-desk operator tool",
		Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage: true,
	}
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if confFile != "" {
			return os.Setenv("CONF_FILE", confFile)
		}
		return nil
	}
	root.PersistentFlags().StringVar(&confFile, "config", "", "YAML config file (same keys as the service)")
	root.AddCommand(newQueueCmd(), newTokenCmd(), newMigrateCmd(), newMappingCmd())
	return root
}

// env is what a subcommand needs from the service configuration.
type env struct {
	cfg   *common.Config
	repo  *sqlrepo.Repo
	ref   *refdata.Store
	close func()
}

func loadConfig() (*common.Config, error) {
	cfg, err := common.LoadConfig()
	if err != nil {
		return nil, err
	}
	common.InitLogger(cfg.LogLevel)
	return cfg, nil
}

// openRepo opens the configured SQL store. The memory store lives inside one service
// process, so there is nothing for the CLI to inspect.
func openRepo(ctx context.Context, cfg *common.Config) (*sqlrepo.Repo, error) {
	switch cfg.StoreBackend {
	case common.StoreSQLite:
		return sqlrepo.Open(ctx, sqlrepo.DriverSQLite, cfg.DBDSN)
	case common.StorePostgres:
		return sqlrepo.Open(ctx, sqlrepo.DriverPostgres, cfg.DBDSN)
	case "", common.StoreMemory:
		return nil, errors.New("store_backend is memory; deskctl needs sqlite or postgres")
	default:
		return nil, fmt.Errorf("unknown store_backend %q", cfg.StoreBackend)
	}
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	ref, err := refdata.Open(cfg.RefDataPath)
	if err != nil {
		return nil, fmt.Errorf("load reference data: %w", err)
	}
	repo, err := openRepo(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, repo: repo, ref: ref, close: func() { _ = repo.Close() }}, nil
}

// manager builds a queue manager that takes the same office locks as the running service.
func (e *env) manager(ctx context.Context) (*queue.Manager, error) {
	if e.cfg.LockBackend != "redis" {
		return queue.NewManager(e.repo, e.ref), nil
	}
	rdb, err := queue.NewRedisClient(ctx, e.cfg.RedisAddr, e.cfg.RedisPassword, e.cfg.RedisDB)
	if err != nil {
		return nil, err
	}
	prev := e.close
	e.close = func() { _ = rdb.Close(); prev() }
	return queue.NewManager(e.repo, e.ref, queue.WithLocker(queue.NewRedisLocker(rdb, e.cfg.LockTTL))), nil
}
