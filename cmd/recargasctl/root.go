package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"recargas/internal/auth"
	"recargas/internal/backend"
	"recargas/internal/cli"
	"recargas/internal/config"
	"recargas/internal/console"
	"recargas/internal/core"
	"recargas/internal/locale"
	applog "recargas/internal/log"
	"recargas/internal/services"
	"recargas/internal/store"
)

var (
	cfgFile     string
	backendName string
	dbPath      string
	databaseURL string
	langFlag    string
)

var rootCmd = &cobra.Command{
	Use:   "recargasctl",
	Short: "Manage EV recharge data from the command line",
	Long: `recargasctl imports, reports and exports EV recharge history and manages
user accounts, using the same storage as the recargas web server.`,
	SilenceUsage: true,
}

var (
	out    = console.New(os.Stdout)
	logger *applog.Logger
)

func init() {
	cli.LoadEnvFile()
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file overlay (.toml, .yaml or .json)")
	rootCmd.PersistentFlags().StringVar(&backendName, "backend", "", "storage backend: sqlite, postgres or memory (default from DATA_BACKEND)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database file (default from SQLITE_DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (default from DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&langFlag, "lang", "pt-BR", "language for numbers and dates")
}

// loadConfig layers the environment, the --config file and the flags.
func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	if cfgFile != "" {
		f, err := config.LoadFile(cfgFile)
		if err != nil {
			return nil, err
		}
		if err := cfg.Apply(f); err != nil {
			return nil, err
		}
	}
	if backendName != "" {
		cfg.DataBackend = backendName
	}
	if dbPath != "" {
		cfg.SQLiteDBPath = dbPath
	}
	if databaseURL != "" {
		cfg.DatabaseURL = databaseURL
	}
	logger = cli.SetupLogger(cfg.LogLevel, applog.ComponentCLI)
	return cfg, nil
}

// openStore opens the configured backend. The caller closes it.
func openStore(ctx context.Context) (*config.Config, *backend.BackendResult, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	res, err := cli.OpenStore(ctx, logger.Logger, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, res, nil
}

func closeStore(res *backend.BackendResult) {
	if err := res.Cleanup(); err != nil {
		out.Warning("closing storage: %v", err)
	}
}

func lookupUser(ctx context.Context, users store.UserStore, username string) (core.User, error) {
	if username == "" {
		return core.User{}, fmt.Errorf("--user is required")
	}
	u, err := users.GetUserByUsername(ctx, username)
	if err != nil {
		return core.User{}, fmt.Errorf("user %q: %w", username, err)
	}
	return u, nil
}

func newAccounts(cfg *config.Config, users store.UserStore) *services.AccountService {
	return services.NewAccountService(users, auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL))
}

func formatter() locale.Formatter {
	return locale.New(locale.Match(langFlag, ""))
}
