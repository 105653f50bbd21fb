package commands

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kontoplan/kontoplan/internal/buildinfo"
	"github.com/kontoplan/kontoplan/internal/config"
	"github.com/kontoplan/kontoplan/internal/database"
	"github.com/kontoplan/kontoplan/internal/database/repository"
	"github.com/kontoplan/kontoplan/internal/service"
)

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "kontoplan",
		Short:   "Bank statement import, recurring payment detection and liquidity forecasting",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", buildinfo.Version, buildinfo.Commit, buildinfo.Date),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newMigrateCommand())
	rootCmd.AddCommand(newImportCommand())
	rootCmd.AddCommand(newDetectCommand())
	rootCmd.AddCommand(newForecastCommand())

	return rootCmd
}

// env holds everything a command needs after setup.
type env struct {
	cfg            config.Config
	db             *sql.DB
	accounts       *repository.AccountRepo
	counterparties *repository.CounterpartyRepo
	transactions   *repository.TransactionRepo
	patterns       *repository.PatternRepo
}

func setup() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:            cfg,
		db:             db,
		accounts:       repository.NewAccountRepo(db),
		counterparties: repository.NewCounterpartyRepo(db),
		transactions:   repository.NewTransactionRepo(db),
		patterns:       repository.NewPatternRepo(db),
	}, nil
}

func (e *env) close() {
	_ = e.db.Close()
}

func (e *env) importer() *service.ImportService {
	return &service.ImportService{
		DB:             e.db,
		Accounts:       e.accounts,
		Counterparties: e.counterparties,
		Transactions:   e.transactions,
		MaxRecords:     e.cfg.Import.MaxRecords,
	}
}

func (e *env) detector() *service.DetectionService {
	return &service.DetectionService{
		DB:             e.db,
		Transactions:   e.transactions,
		Patterns:       e.patterns,
		LookbackMonths: e.cfg.Detection.LookbackMonths,
	}
}

func (e *env) forecaster() *service.ForecastService {
	return &service.ForecastService{
		Accounts: e.accounts,
		Patterns: e.patterns,
	}
}
