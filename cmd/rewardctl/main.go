package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/rewards/internal/audit"
	"github.com/MarkoPoloResearchLab/rewards/internal/config"
	"github.com/MarkoPoloResearchLab/rewards/internal/database"
	"github.com/MarkoPoloResearchLab/rewards/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/rewards/pkg/ledger"
	"github.com/MarkoPoloResearchLab/rewards/pkg/quota"
	"github.com/MarkoPoloResearchLab/rewards/pkg/redeem"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "rewardctl: %v\n", err)
		os.Exit(1)
	}
}

// application holds what every subcommand shares. The database opens on first use so that
// quota lookups run without one.
type application struct {
	source  *viper.Viper
	cfg     config.Config
	logger  *zap.Logger
	db      *gorm.DB
	cleanup func() error
}

type domainServices struct {
	store  *gormstore.Store
	ledger *ledger.Service
	redeem *redeem.Service
	gacha  *redeem.Gacha
}

func newRootCommand() *cobra.Command {
	app := &application{source: viper.New()}
	cmd := &cobra.Command{
		Use:           "rewardctl",
		Short:         "Points ledger, redemption codes, gacha and quota lookups",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.load(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.close()
		},
	}

	flags := cmd.PersistentFlags()
	flags.String(config.KeyDatabaseURL, "", "database URL (postgres://..., sqlite://path or a file path)")
	flags.String(config.KeyLogLevel, "", "log level (debug, info, warn, error)")
	flags.String(config.KeyLogFile, "", "write logs to a rotating file instead of stderr")
	flags.Int64(config.KeyGachaCost, 0, "gacha entry fee in points")
	flags.String(config.KeyQuotaBaseURLs, "", "comma-separated quota endpoints")
	flags.String(config.KeyQuotaQueryOrder, "", "comma-separated quota strategies (openai, newapi)")
	flags.Duration(config.KeyQuotaTimeout, 0, "quota request timeout")
	flags.Int(config.KeyQuotaMaxConcurrency, 0, "parallel quota lookups in a batch")
	flags.Duration(config.KeyQuotaTTLOK, 0, "fresh window after a successful quota lookup")
	flags.Duration(config.KeyQuotaTTLStale, 0, "stale window that follows the fresh window")
	flags.Duration(config.KeyQuotaTTLError, 0, "negative cache lifetime after a failed lookup")
	flags.Duration(config.KeyQuotaTTLAuthError, 0, "negative cache lifetime after a rejected key")
	flags.Int(config.KeyQuotaUsageLookbackDays, 0, "usage window for the billing strategy")
	flags.Float64(config.KeyQuotaPerUSD, 0, "quota units per dollar for the self-profile strategy")
	flags.Int(config.KeyQuotaMaxEntries, 0, "quota cache capacity")

	cmd.AddCommand(
		newMigrateCommand(app),
		newCodesCommand(app),
		newBadgeCommand(app),
		newRedeemCommand(app),
		newGachaCommand(app),
		newBalanceCommand(app),
		newGrantCommand(app),
		newHistoryCommand(app),
		newRecordsCommand(app),
		newInventoryCommand(app),
		newQuotaCommand(app),
	)
	return cmd
}

func (app *application) load(cmd *cobra.Command) error {
	if err := app.source.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	cfg, err := config.Load(app.source)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger, err := audit.NewZapLogger(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	app.cfg = cfg
	app.logger = logger
	return nil
}

func (app *application) close() error {
	if app.logger != nil {
		_ = app.logger.Sync()
	}
	if app.cleanup != nil {
		return app.cleanup()
	}
	return nil
}

func (app *application) openDatabase(ctx context.Context) (*gorm.DB, error) {
	if app.db != nil {
		return app.db, nil
	}
	db, cleanup, driver, err := database.Open(ctx, app.cfg.DatabaseURL, app.logger)
	if err != nil {
		return nil, fmt.Errorf("database open: %w", err)
	}
	if driver == database.DriverSQLite {
		if err := gormstore.Migrate(ctx, db); err != nil {
			_ = cleanup()
			return nil, err
		}
	}
	app.db = db
	app.cleanup = cleanup
	return db, nil
}

func (app *application) domainServices(ctx context.Context) (domainServices, error) {
	db, err := app.openDatabase(ctx)
	if err != nil {
		return domainServices{}, err
	}
	store := gormstore.New(db)
	ledgerClock := func() int64 { return time.Now().UTC().Unix() }
	ledgerService, err := ledger.NewService(store.Ledger(), ledgerClock, ledger.WithOperationLogger(audit.NewLedgerLogger(app.logger)))
	if err != nil {
		return domainServices{}, fmt.Errorf("ledger service init: %w", err)
	}
	now := func() time.Time { return time.Now().UTC() }
	redeemLogger := redeem.WithOperationLogger(audit.NewRedeemLogger(app.logger))
	issuer, err := redeem.NewIssuer(store, ledgerService, now, redeemLogger)
	if err != nil {
		return domainServices{}, fmt.Errorf("issuer init: %w", err)
	}
	redeemService, err := redeem.NewService(store, issuer, now, redeemLogger)
	if err != nil {
		return domainServices{}, fmt.Errorf("redeem service init: %w", err)
	}
	cost, err := ledger.NewPositivePoints(app.cfg.GachaCost)
	if err != nil {
		return domainServices{}, fmt.Errorf("gacha cost: %w", err)
	}
	gacha, err := redeem.NewGacha(store, ledgerService, cost, now, redeemLogger)
	if err != nil {
		return domainServices{}, fmt.Errorf("gacha init: %w", err)
	}
	return domainServices{store: store, ledger: ledgerService, redeem: redeemService, gacha: gacha}, nil
}

func (app *application) quotaService(registerer prometheus.Registerer) (*quota.Service, error) {
	return quota.NewService(app.cfg.Quota,
		quota.WithOutcomeLogger(audit.NewQuotaLogger(app.logger)),
		quota.WithMetricsRegisterer(registerer),
	)
}
